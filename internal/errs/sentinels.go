// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Storage sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")
)

// Credential lifecycle sentinels.
var (
	// ErrUnauthorized indicates a missing or invalid session credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession indicates that no token record exists for the principal.
	ErrNoSession = errors.New("no session")

	// ErrRefreshFailed indicates a terminal refresh failure; the principal must sign in again.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrInvalidGrant indicates a sign-in grant that cannot start a session.
	ErrInvalidGrant = errors.New("invalid grant")
)

// Document validation sentinels.
var (
	// ErrMissingField indicates an absent, empty or wrong-shaped required field.
	ErrMissingField = errors.New("missing field")

	// ErrIndexMismatch indicates a declared location index that differs from the item position.
	ErrIndexMismatch = errors.New("index mismatch")

	// ErrUnrecognizedVariant indicates a question with zero or several recognized kinds.
	ErrUnrecognizedVariant = errors.New("unrecognized or ambiguous question variant")

	// ErrMalformed indicates a structurally valid document whose question payload cannot be decoded.
	ErrMalformed = errors.New("malformed question payload")
)
