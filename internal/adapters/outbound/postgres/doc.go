// Package postgres implements ports.Store on PostgreSQL with sqlx and lib/pq.
//
// Files and responsibilities
// --------------------------
//   - schema.sql
//     Embedded DDL applied by Store.Migrate.
//
//   - store.go
//     Connection handling, transactions and error mapping.
//
//   - devices.go
//     Devices, certificate chains, revocations and the photo sequence
//     compare-and-set, a single conditional UPDATE.
//
//   - records.go
//     Policies, verification records and usage events. CommitVerified runs
//     the sequence update, the log append and the record insert in one
//     transaction; the device row is locked before the log lock.
//
//   - translog.go
//     The transparency log. Appends serialize on a transaction-scoped
//     advisory lock; Merkle hashes live in tlog_hashes keyed by their
//     storage index.
package postgres
