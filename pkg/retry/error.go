package retry

import (
	"errors"
	"fmt"
	"time"
)

// Kind closes the set of outcomes an operation can report.
type Kind int

const (
	KindFatal Kind = iota
	KindRetryable
)

func (k Kind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "fatal"
}

// Error is the tagged failure an operation returns to steer the retry loop.
// Status is an HTTP status code when one is known, zero otherwise.
// RetryAfter is a server supplied hint and only honoured for 429.
type Error struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Message    string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s (status %d): %s", msg, e.Status, e.Body)
		}
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable marks a transient failure.
func Retryable(status int, retryAfter time.Duration, message string) *Error {
	return &Error{Kind: KindRetryable, Status: status, RetryAfter: retryAfter, Message: message}
}

// Fatal marks a failure that must not be retried. body keeps the raw response
// text for diagnosis.
func Fatal(status int, message, body string) *Error {
	return &Error{Kind: KindFatal, Status: status, Message: message, Body: body}
}

// StatusOf extracts the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
