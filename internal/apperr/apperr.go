// Package apperr defines the failure taxonomy shared by the gateway and the
// card, gift and referral clients. Callers classify failures with errors.Is
// against the sentinel kinds.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is an expired or rejected access credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired means the credential could not be renewed. The
	// caller must sign out.
	ErrSessionExpired = errors.New("session expired")

	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrGone       = errors.New("gone")
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient failure")

	// ErrAlreadyClaimed and ErrGiftCancelled are conflicts specific to gift
	// claims. Both also match ErrConflict.
	ErrAlreadyClaimed = errors.New("gift already claimed")
	ErrGiftCancelled  = errors.New("gift cancelled")

	// ErrStaleView is returned when a card's local view must be re-fetched
	// before another action on it is allowed.
	ErrStaleView = errors.New("card view is stale")
)

// Server error codes carried in the JSON error body.
const (
	CodeAlreadyClaimed = "already_claimed"
	CodeGiftCancelled  = "gift_cancelled"
)

// Error is a classified failure. Status is zero for failures that never
// reached the server.
type Error struct {
	Kind    error
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	if target == ErrConflict {
		return e.Kind == ErrAlreadyClaimed || e.Kind == ErrGiftCancelled
	}
	return false
}

// New builds a client-side error of the given kind.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports input rejected before submission.
func Validation(format string, args ...any) *Error {
	return New(ErrValidation, format, args...)
}

// Transient wraps a network failure or timeout.
func Transient(cause error) *Error {
	return &Error{Kind: ErrTransient, Cause: cause}
}

// SessionExpired wraps the failure that ended the session.
func SessionExpired(cause error) *Error {
	return &Error{Kind: ErrSessionExpired, Cause: cause}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// FromResponse classifies a non-2xx response. The body is the raw response
// payload; a JSON {"error","code"} body is used when present.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Message = eb.Error
		e.Code = eb.Code
	} else {
		e.Message = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status == http.StatusGone:
		e.Kind = ErrGone
	case status == http.StatusConflict:
		switch e.Code {
		case CodeAlreadyClaimed:
			e.Kind = ErrAlreadyClaimed
		case CodeGiftCancelled:
			e.Kind = ErrGiftCancelled
		default:
			e.Kind = ErrConflict
		}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		e.Kind = ErrValidation
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		e.Kind = ErrTransient
	default:
		e.Kind = ErrValidation
	}
	return e
}

// StatusOf returns the HTTP status for err, or zero.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
