package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification carried by every
// user-visible failure.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindConflictBlocking ErrorKind = "conflict_blocking"
	KindLLMTimeout       ErrorKind = "llm_timeout"
	KindSchemaParse      ErrorKind = "schema_parse"
	KindGateDenied       ErrorKind = "gate_denied"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflictBlocking = &Error{Kind: KindConflictBlocking}
	ErrLLMTimeout       = &Error{Kind: KindLLMTimeout}
	ErrSchemaParse      = &Error{Kind: KindSchemaParse}
)

type Error struct {
	Kind        ErrorKind
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so callers can test
// errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, msg, remediation string) *Error {
	return &Error{Kind: kind, Message: msg, Remediation: remediation}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RemediationOf returns the remediation hint of the first *Error in err's chain.
func RemediationOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Remediation
	}
	return ""
}
