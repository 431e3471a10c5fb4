package dispatch

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// APIError is a non-200 answer from QuickBooks.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	return fmt.Sprintf("quickbooks api error status %d: %s", e.Status, Truncate(body, 512))
}

// Truncate shortens s to at most n bytes plus an ellipsis, never splitting
// a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// TypeMismatchError is returned when a decoded response is neither an
// object nor a list.
type TypeMismatchError struct {
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("unexpected response type %s: want object or list", e.Got)
}

// UninitializedSessionError is returned by every call made before the
// session could be established.
type UninitializedSessionError struct {
	Missing []string
	Cause   error
}

func (e *UninitializedSessionError) Error() string {
	var b strings.Builder
	b.WriteString("quickbooks session is not initialized")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	b.WriteString("; set the QUICKBOOKS_* environment variables or run `qbmcp init` and edit ~/.qbmcp/config.yaml")
	return b.String()
}

func (e *UninitializedSessionError) Unwrap() error {
	return e.Cause
}
