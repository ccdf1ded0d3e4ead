package policy

import (
	"regexp"

	"github.com/ent0n29/chatline/internal/session"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	// Cards before phones, otherwise card numbers match the phone pattern.
	for _, r := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// RedactTranscript returns a redacted copy of msgs; the input is not modified.
func RedactTranscript(msgs []session.Message) ([]session.Message, bool) {
	out := make([]session.Message, len(msgs))
	var changed bool
	for i, m := range msgs {
		content, c := RedactPII(m.Content)
		m.Content = content
		out[i] = m
		changed = changed || c
	}
	return out, changed
}
