// Package common defines shared constants and sentinel errors used across
// the ramd daemon and the ramctl client. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Startup errors. The daemon must not start when one of these is returned.
	ErrConfiguration = errors.New("configuration error")

	// Registry errors.
	ErrCapacity   = errors.New("capacity exceeded")
	ErrUserExists = errors.New("user already exists")
	ErrNotFound   = errors.New("not found")

	// Input errors.
	ErrValidation = errors.New("validation error")

	// Gate decisions.
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrTooManyConnections = errors.New("too many connections")

	// Lifecycle / generic.
	ErrClosed   = errors.New("security context closed")
	ErrInternal = errors.New("internal error")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
