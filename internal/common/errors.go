// Package common defines shared constants and sentinel errors used across
// the account service layers. Callers should use errors.Is to match these
// values and errors.As to unwrap a CollaboratorError.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAccount = errors.New("account already exists")

	// Workflow errors.
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidOldPassword  = errors.New("invalid old password")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrTooManyAttempts     = errors.New("too many attempts")

	// Narrower forms of the workflow errors above; errors.Is matches both.
	ErrMissingCredentials       = fmt.Errorf("%w: email and password", ErrMissingFields)
	ErrInvalidOrExpiredResetOTP = fmt.Errorf("%w: reset", ErrInvalidOrExpiredOTP)

	// Auth errors (missing, malformed or expired token).
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// CollaboratorError reports a failure of a downstream dependency (database,
// mailer, image store, hasher, limiter backend). Error returns the wrapped
// message text so it can be echoed to operators.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Collaborator wraps err into a CollaboratorError tagged with op. Domain
// errors and already wrapped errors pass through untouched; nil stays nil.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) || IsDomain(err) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}

// IsDomain reports whether err belongs to the workflow's own taxonomy.
func IsDomain(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var domainErrors = []error{
	ErrNotFound,
	ErrDuplicateAccount,
	ErrMissingFields,
	ErrInvalidCredentials,
	ErrInvalidOldPassword,
	ErrInvalidOrExpiredOTP,
	ErrTooManyAttempts,
	ErrUnauthorized,
	ErrInvalidToken,
	ErrTokenExpired,
}
