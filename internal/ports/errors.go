package ports

import "errors"

// Infrastructure errors for the adapter layer.
//
// These represent storage and transport concerns and are separate from
// domain errors, which represent business or semantic failures. A use-case
// that meets one of these returns it wrapped in ErrInternal; it never turns
// an infrastructure failure into a verdict.

// ErrNotFound indicates the requested row does not exist.
//
// Used by:
//   - DeviceStore.GetDevice, PolicyStore.GetPolicy/ActivePolicy,
//     VerificationStore.GetVerification, TransparencyLog.LookupEntry/EntryAt
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness violation on insert.
//
// Used by:
//   - DeviceStore.CreateDevice when the id or key fingerprint exists
//   - VerificationStore.CreateVerification/CommitVerified when the id exists
var ErrConflict = errors.New("conflict")

// ErrInternal marks an infrastructure failure surfaced by a use-case.
// Transports map it to an internal_error response.
var ErrInternal = errors.New("internal error")

// Compile-time check that errors implement error interface
var (
	_ error = ErrNotFound
	_ error = ErrConflict
	_ error = ErrInternal
)
