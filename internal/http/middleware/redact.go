package middleware

import (
	"regexp"
	"strings"
)

// Placeholders written in place of scrubbed values.
const (
	redacted      = "[REDACTED]"
	redactedID    = "[REDACTED:id]"
	redactedEmail = "[REDACTED:email]"
	redactedPhone = "[REDACTED:phone]"
	redactedToken = "[REDACTED:token]"
)

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside ids are never taken for phone numbers.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redactor scrubs personal data and credentials from request metadata
// before it reaches the logs. Bodies are never logged, so only paths, query
// strings and headers pass through it.
type Redactor struct {
	maskHeaders map[string]struct{}
	// secretSegments are path segments whose successor is a credential, such
	// as the invite token in /invites/<token>.
	secretSegments map[string]struct{}
}

// RedactOptions configures a Redactor.
type RedactOptions struct {
	// MaskHeaders are extra header names (case-insensitive) whose values are
	// replaced wholesale. Authorization, Cookie and Set-Cookie always are.
	MaskHeaders []string
	// SecretSegments are extra path segments followed by a secret. "invites"
	// (invite tokens) and "sessions" (session public ids) always are.
	SecretSegments []string
}

// NewRedactor builds a Redactor from opts.
func NewRedactor(opts RedactOptions) *Redactor {
	r := &Redactor{
		maskHeaders:    map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}},
		secretSegments: map[string]struct{}{"invites": {}, "sessions": {}},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.maskHeaders[h] = struct{}{}
		}
	}
	for _, s := range opts.SecretSegments {
		if s = strings.Trim(strings.TrimSpace(s), "/"); s != "" {
			r.secretSegments[s] = struct{}{}
		}
	}
	return r
}

// Text replaces ids, email addresses and phone numbers in s. UUIDs go first
// so the phone pattern never bites into their digit groups.
func (r *Redactor) Text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, redactedID)
	s = emailRE.ReplaceAllString(s, redactedEmail)
	return phoneRE.ReplaceAllString(s, redactedPhone)
}

// Path masks the segment after each secret segment, then applies Text.
// Route templates (":token") pass through unchanged.
func (r *Redactor) Path(p string) string {
	parts := strings.Split(p, "/")
	for i := 0; i+1 < len(parts); i++ {
		if _, ok := r.secretSegments[parts[i]]; !ok {
			continue
		}
		if next := parts[i+1]; next != "" && !strings.HasPrefix(next, ":") {
			parts[i+1] = redactedToken
		}
	}
	return r.Text(strings.Join(parts, "/"))
}

// Headers flattens h into a loggable map with masked and scrubbed values.
func (r *Redactor) Headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.maskHeaders[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = r.Text(strings.Join(vv, ", "))
	}
	return out
}
