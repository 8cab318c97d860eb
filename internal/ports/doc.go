// Package ports defines the inbound and outbound ports (interfaces and types)
// used to decouple the verification engine from its adapters.
//
// Files and responsibilities
// --------------------------
//   - inbound.go
//   - Use-cases the engine exposes to transports: Verifier, Enroller,
//     Revoker and EvidenceProvider. Inputs and outputs are plain values,
//     never framework types.
//   - outbound.go
//   - Collaborators the engine drives: DeviceStore, PolicyStore,
//     VerificationStore, TransparencyLog, BlobStore and UsageLogger.
//   - Each interface includes an "Error Contract" in comments describing
//     sentinel errors returned by implementations.
//   - types.go
//   - Request/outcome values shared by inbound ports and transports.
//   - errors.go
//   - Infrastructure sentinel errors, separate from domain errors.
//
// notes
// ------------
//   - The device sequence counter only moves inside
//     VerificationStore.CommitVerified, as a compare-and-set committed with
//     the record and log leaf it belongs to. There is no "update sequence"
//     method that could be paired with a separate read or left behind by a
//     failed record write.
//   - Keep domain logic free of adapter concerns. Ports pass domain types
//     (defined under internal/domain) and plain data structures.
package ports
