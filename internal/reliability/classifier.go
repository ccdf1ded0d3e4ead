package reliability

import (
	"context"
	"errors"
	"net"
)

// IsRetryableHTTPStatus classifies provider status codes worth a client retry.
// 529 is Anthropic's "overloaded" status.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// IsTransient reports timeouts and network errors that may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
