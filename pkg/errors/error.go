// Package errors defines the error categories surfaced by the client.
// Every message starts with the category name so callers can tell a
// transport failure from a server reported one by reading it.
package errors

import (
	goerrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindProtocol
	KindServer
	KindConfig
	KindListener
)

var kindNames = map[Kind]string{
	KindTransport: "transport error",
	KindProtocol:  "protocol error",
	KindServer:    "server error",
	KindConfig:    "configuration error",
	KindListener:  "listener error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error(%d)", uint8(k))
}

type Error struct {
	kind  Kind
	what  string
	cause error
}

func New(kind Kind, what string) *Error {
	return &Error{kind: kind, what: what}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, what: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a stack trace (github.com/pkg/errors) and
// classifies it. A nil cause yields nil.
func Wrap(kind Kind, cause error, what string) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if goerrors.As(cause, &e) && e.kind == kind && what == "" {
		return cause
	}
	return &Error{kind: kind, what: what, cause: pkgerrors.WithStack(cause)}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if d := e.detail(); d != "" {
		return e.kind.String() + ": " + d
	}
	return e.kind.String()
}

// detail is the message without the kind prefix. A cause of the same kind
// contributes its own detail so the prefix is not repeated.
func (e *Error) detail() string {
	if e.cause == nil {
		return e.what
	}
	var d string
	cause := unstack(e.cause)
	if inner, ok := cause.(*Error); ok && inner.kind == e.kind {
		d = inner.detail()
	} else {
		d = cause.Error()
	}
	if e.what == "" {
		return d
	}
	return e.what + ": " + d
}

// unstack drops the stack trace annotation added by Wrap.
func unstack(err error) error {
	for {
		if _, ok := err.(interface{ StackTrace() pkgerrors.StackTrace }); !ok {
			return err
		}
		inner := goerrors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) What() string {
	return e.what
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the same request may be sent again on another
// connection. Only transport failures qualify.
func (e *Error) Retryable() bool {
	return e.kind == KindTransport
}

// KindOf returns the category of err, or 0 if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if goerrors.As(err, &e) {
		return e.kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
