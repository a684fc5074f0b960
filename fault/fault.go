// Package fault defines the rejection taxonomy shared by every operation:
// authorization, precondition, invariant, and external-dependency failures.
// A rejected operation leaves all state untouched; callers may retry against
// freshly validated state, the service never retries on its own.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthorization: the caller lacks the identity or role the
	// operation requires.
	KindAuthorization
	// KindPrecondition: an entity is missing, in the wrong status, outside
	// a window, or the input is malformed.
	KindPrecondition
	// KindInvariant: the operation would break fund conservation or a
	// uniqueness guarantee (overdraw, duplicate pending offer, ...).
	KindInvariant
	// KindDependency: a collaborator returned unexpected or missing data.
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindInvariant:
		return "invariant"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

type faultError struct {
	kind Kind
	msg  string
}

func (e *faultError) Error() string { return e.msg }

// Authorization builds a new sentinel of kind authorization.
func Authorization(msg string) error { return &faultError{kind: KindAuthorization, msg: msg} }

// Precondition builds a new sentinel of kind precondition.
func Precondition(msg string) error { return &faultError{kind: KindPrecondition, msg: msg} }

// Invariant builds a new sentinel of kind invariant.
func Invariant(msg string) error { return &faultError{kind: KindInvariant, msg: msg} }

// Dependency builds a new sentinel of kind dependency.
func Dependency(msg string) error { return &faultError{kind: KindDependency, msg: msg} }

// Dependencyf wraps err as a dependency failure, preserving the chain.
func Dependencyf(format string, args ...any) error {
	return &wrapped{kind: KindDependency, err: fmt.Errorf(format, args...)}
}

type wrapped struct {
	kind Kind
	err  error
}

func (e *wrapped) Error() string { return e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }

// KindOf walks the chain and reports the first classified kind found.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *faultError:
			return e.kind
		case *wrapped:
			return e.kind
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsRejection reports whether err is a classified rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool { return KindOf(err) != KindUnknown }
