// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers.
var (
	ErrInvalidAPIKey   = errors.New("invalid api key format")
	ErrInvalidAction   = errors.New("invalid action")
	ErrMissingAction   = errors.New("missing action")
	ErrInvalidService  = errors.New("invalid service name")
	ErrNotFound        = errors.New("api key not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")
	ErrOriginRejected  = errors.New("origin not allowed")
)
