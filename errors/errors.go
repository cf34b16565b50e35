package errors

import (
	"errors"
	"fmt"
)

// Error kinds used across the authentication backend.
const (
	KindConnection           = "connection"
	KindNotFound             = "not-found"
	KindUserExists           = "user-exists"
	KindRepository           = "repository"
	KindUnsupportedMechanism = "unsupported-mechanism"
	KindMalformedFrame       = "malformed-frame"
)

// AuthError is the base error for all authentication backend failures
type AuthError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ConnectionError means the database session could not be established or the
// statement set could not be recompiled. The connection handle is cleared by
// the repository before this is returned, so the next call retries from scratch.
type ConnectionError struct {
	AuthError
	URI string `json:"uri,omitempty"`
}

func NewConnectionError(uri string, cause error) *ConnectionError {
	return &ConnectionError{
		AuthError: AuthError{
			Kind:    KindConnection,
			Message: fmt.Sprintf("problem initializing database connection: %s", uri),
			Cause:   cause,
		},
		URI: uri,
	}
}

// UserNotFoundError covers both an absent identity and a credential mismatch.
// Callers must not distinguish the two beyond "authentication failed".
type UserNotFoundError struct {
	AuthError
	User string `json:"user"`
}

func NewUserNotFound(user string) *UserNotFoundError {
	return &UserNotFoundError{
		AuthError: AuthError{
			Kind:    KindNotFound,
			Message: fmt.Sprintf("user does not exist: %s", user),
		},
		User: user,
	}
}

// UserExistsError is returned when add-user violates a uniqueness constraint.
type UserExistsError struct {
	AuthError
	User string `json:"user"`
}

func NewUserExists(user string, cause error) *UserExistsError {
	return &UserExistsError{
		AuthError: AuthError{
			Kind:    KindUserExists,
			Message: fmt.Sprintf("error adding user to repository, user exists? %s", user),
			Cause:   cause,
		},
		User: user,
	}
}

// RepositoryError wraps any other store-side failure (query error, timeout).
type RepositoryError struct {
	AuthError
	Operation string `json:"operation,omitempty"`
}

func NewRepositoryError(operation string, cause error) *RepositoryError {
	return &RepositoryError{
		AuthError: AuthError{
			Kind:    KindRepository,
			Message: "problem accessing repository",
			Cause:   cause,
		},
		Operation: operation,
	}
}

// UnsupportedMechanismError names the protocol/mechanism combination that is
// not configured. It is a capability-negotiation failure, not a credential one.
type UnsupportedMechanismError struct {
	AuthError
	Protocol  string `json:"protocol,omitempty"`
	Mechanism string `json:"mechanism,omitempty"`
}

func NewUnsupportedMechanism(mechanism string) *UnsupportedMechanismError {
	return &UnsupportedMechanismError{
		AuthError: AuthError{
			Kind:    KindUnsupportedMechanism,
			Message: fmt.Sprintf("mechanism is not supported: %s", mechanism),
		},
		Mechanism: mechanism,
	}
}

func NewUnsupportedProtocol(protocol string) *UnsupportedMechanismError {
	return &UnsupportedMechanismError{
		AuthError: AuthError{
			Kind:    KindUnsupportedMechanism,
			Message: fmt.Sprintf("protocol is not supported: %s", protocol),
		},
		Protocol: protocol,
	}
}

// MalformedFrameError means a SASL payload could not be decoded.
type MalformedFrameError struct {
	AuthError
}

func NewMalformedFrame(message string) *MalformedFrameError {
	return &MalformedFrameError{
		AuthError: AuthError{
			Kind:    KindMalformedFrame,
			Message: message,
		},
	}
}

// Classification helpers. Callers use these instead of type-asserting so that
// wrapped errors classify correctly.

func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *UserNotFoundError
	return errors.As(err, &e)
}

func IsUserExists(err error) bool {
	var e *UserExistsError
	return errors.As(err, &e)
}

func IsRepositoryError(err error) bool {
	var e *RepositoryError
	return errors.As(err, &e)
}

func IsUnsupportedMechanism(err error) bool {
	var e *UnsupportedMechanismError
	return errors.As(err, &e)
}

func IsMalformedFrame(err error) bool {
	var e *MalformedFrameError
	return errors.As(err, &e)
}
