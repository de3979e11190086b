package domain

import "errors"

// Authentication failures from magic-link verification.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenReused  = errors.New("auth: token already used")
)

// Intent extraction failures. These are never retried; the user has to
// rephrase.
var (
	ErrUnsupportedOperation = errors.New("intent: unsupported operation")
	ErrUnknownEntity        = errors.New("intent: unknown entity")
	ErrMalformedResponse    = errors.New("intent: malformed model response")
	ErrAmbiguousIntent      = errors.New("intent: ambiguous request")
)

// Authorization failure from the role/operation table.
var ErrForbidden = errors.New("authz: forbidden")

// Validation failures from the query builder.
var (
	ErrUnknownField     = errors.New("validate: unknown field")
	ErrInvalidValueType = errors.New("validate: invalid value type")
)

// Execution failures mapped from the relational store.
var (
	ErrConstraintViolation = errors.New("exec: constraint violation")
	ErrNotFound            = errors.New("exec: not found")
)

// External service failures (language model, messaging). Retried a bounded
// number of times before surfacing.
var (
	ErrServiceTimeout     = errors.New("service: timeout")
	ErrServiceUnavailable = errors.New("service: unavailable")
)
