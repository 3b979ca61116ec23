package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: record or object does not exist
// - ErrUnavailable: remote dependency could not be reached
// - ErrMissingCredentials: object store has no usable credentials
// - ErrAlreadyExists: a unique key is already taken
var (
	ErrNotFound           = errors.New("not found")
	ErrUnavailable        = errors.New("unavailable")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrAlreadyExists      = errors.New("already exists")
)
