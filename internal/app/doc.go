// Package app contains the verification engine use-cases and the
// application's composition root.
//
// Responsibilities
//   - Engine implements ports.Engine: Verify, Enroll, Revoke and GetEvidence.
//     It owns a request end to end and talks to storage only through ports.
//   - Bootstrap wires configuration into adapters (store, blob store,
//     attestation verifier, forensic analyzer, metrics) and returns an
//     Application.
//
// Files
// - engine.go
//   - Engine, Deps and the shared helpers (active policy, record persistence).
//
// - verify.go
//   - The verification pipeline. Steps run in a fixed order and each one may
//     end the call with a verdict. Only infrastructure failures return an
//     error, always wrapping ports.ErrInternal, and no record is written then.
//
// - enroll.go
//   - Enroll admits a device from its attestation evidence; Revoke records
//     a one-way revocation.
//
// - evidence.go
//   - GetEvidence loads the rows linked to a verification and hands them to
//     the evidence assembler.
//
// - application.go, bootstrap.go
//   - Application holds the bootstrapped components and releases them in
//     Close.
//
// Architectural notes
//   - Keep adapter-specific I/O out of this package; adapters are thin
//     layers that call into the Engine.
//   - The device sequence counter is only ever advanced through
//     VerificationStore.CommitVerified, together with the log entry and the
//     record it authorizes.
package app
