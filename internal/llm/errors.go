package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies provider failures.
type Kind int

const (
	// KindUnavailable covers network failures and 5xx replies.
	KindUnavailable Kind = iota
	// KindRateLimited is a 429 reply.
	KindRateLimited
	// KindInvalidResponse is a reply that is not the requested JSON.
	KindInvalidResponse
	// KindTruncated is a reply cut off by the token limit.
	KindTruncated
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate limited"
	case KindInvalidResponse:
		return "invalid response"
	case KindTruncated:
		return "truncated response"
	default:
		return "unavailable"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string

	// RetryAfter is the wait a rate limited provider asked for.
	RetryAfter time.Duration

	// Content is the offending reply for invalid or truncated responses.
	Content json.RawMessage

	Err error
}

func (e *Error) Error() string {
	msg := "llm"
	if e.Provider != "" {
		msg += " " + e.Provider
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// classifyStatus maps an HTTP status of a failed call. Statuses without a
// better fit count as unavailable.
func classifyStatus(provider string, status int, err error) *Error {
	kind := KindUnavailable
	if status == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func invalidResponse(provider, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidResponse, Provider: provider, Err: fmt.Errorf(format, args...)}
}
