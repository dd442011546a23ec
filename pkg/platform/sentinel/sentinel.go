package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, leases and transports return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrConflict: unique key or lease already held
//   - ErrInvalidState: entity in wrong lifecycle state for the requested write
//   - ErrUnavailable: backend or upstream source temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
