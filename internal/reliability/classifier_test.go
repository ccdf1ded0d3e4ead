package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
		{529, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatalf("IsTransient(nil) = true")
	}
	if !IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)) {
		t.Fatalf("wrapped deadline should be transient")
	}
	if IsTransient(errors.New("bad request")) {
		t.Fatalf("plain error should not be transient")
	}
}
