package domain

import "errors"

// Kind classifies terminal failures so callers branch on structure rather
// than on error text.
type Kind string

const (
    KindInvalidInput       Kind = "invalid_input"
    KindPaymentFailed      Kind = "payment_failed"
    KindProtocolViolation  Kind = "protocol_violation"
    KindPaymentRejected    Kind = "payment_rejected"
    KindProtocolFailed     Kind = "protocol_failed"
    KindPersistenceFailure Kind = "persistence_failure"
)

type Error struct {
    Kind    Kind
    Message string
    Err     error
}

func (e *Error) Error() string {
    if e.Err != nil {
        return e.Message + ": " + e.Err.Error()
    }
    return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
    return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the classification from err, or "" for unclassified errors.
func KindOf(err error) Kind {
    var de *Error
    if errors.As(err, &de) {
        return de.Kind
    }
    return ""
}
