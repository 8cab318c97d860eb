// Package inmemory contains an in-process implementation of ports.Store.
//
// Purpose
// -------
// The store lets the engine run without external dependencies. It backs the
// `popc verify` command, local development and the app package tests. State
// is lost when the process exits.
//
// Files and responsibilities
// --------------------------
//   - store.go
//     Store: devices, certificate chains, revocations, policies and
//     verification records behind one RWMutex. CommitVerified holds the
//     lock across the sequence compare-and-set, the log append and the
//     record insert, which is what guards replay protection.
//
//   - translog.go
//     Transparency log entries over a translog.Memory Merkle tree.
//
//   - usage.go
//     Usage events, retained for inspection by tests.
//
// Values are copied on the way in and on the way out so callers never alias
// stored state.
package inmemory
