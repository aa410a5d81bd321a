// Package sentinel defines sentinel errors for infrastructure facts.
//
// Stores return these (optionally wrapped) so services can translate them into
// domain errors. They represent factual states about stored resources, not
// validation failures:
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: a concurrent writer won (version mismatch, duplicate key)
//   - ErrInvalidState: entity is in the wrong state for the requested change
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
