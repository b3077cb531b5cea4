package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote operation
type Kind string

const (
	// KindUnauthenticated means no credential was available; nothing was sent
	KindUnauthenticated Kind = "unauthenticated"
	// KindUnauthorized means the server rejected the credential (HTTP 401)
	KindUnauthorized Kind = "unauthorized"
	// KindRejected means a 2xx response carried status:false
	KindRejected Kind = "rejected"
	// KindTransport covers network errors, timeouts, non-2xx and malformed bodies
	KindTransport Kind = "transport"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRejected        = errors.New("rejected by server")
	ErrTransport       = errors.New("transport failure")
)

// Error is the uniform failure shape of every transport call
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRejected:
		return ErrRejected
	case KindTransport:
		return ErrTransport
	}
	return nil
}

// KindOf returns the Kind of err, or "" when err is not a transport error
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
