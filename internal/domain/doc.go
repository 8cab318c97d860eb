// Package domain contains the domain model for the media authenticity engine.
//
// This package is the CORE of the hexagonal architecture - it defines business
// entities and value objects with ZERO dependencies on external frameworks,
// SDKs, or infrastructure.
//
// Hexagonal Architecture Boundaries:
//   - Domain NEVER imports from: internal/adapters, internal/ports, external SDKs
//   - Domain ONLY imports from: standard library, other domain types
//   - Domain exposes: value objects, entities, verdicts, reason codes, domain errors
//   - Domain does NOT: perform I/O, parse binary formats, verify signatures
//
// Files and types
// -----------------------
//   - asset.go: HashAlgorithm and AssetHash, the content identity of an asset.
//   - manifest.go: ContentBinding, Signature, SignerChainEntry and the
//     immutable ParsedManifest produced by the manifest codec.
//   - attestation.go: SecurityLevel, CertificateInfo, the AttestationResult
//     and its tagged Attestation variants (Android, Apple, SoftwareKey).
//   - device.go: Device, DeviceCert and Revocation.
//   - policy.go: Policy and its decoded PolicyRules.
//   - verification.go: Verdict, VerificationRecord, TransparencyLogEntry.
//   - signals.go: forensic HeuristicSignals and CVAnalysisResult.
//   - codes.go: machine-checkable reason and error codes.
//   - errors.go: sentinel errors for business failures.
package domain
