package ports

import (
	"context"

	"github.com/sufield/popc/internal/domain"
)

// Verifier runs the verification pipeline.
//
// Error Contract:
// - Returns an error wrapping ErrInternal when a store or blob operation
//   fails; no record is written in that case
// - Every other outcome, including malformed input, is a verdict
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerificationOutcome, error)
}

// Enroller admits devices on the strength of their attestation.
//
// Error Contract:
// - Returns domain.ErrUnsupportedPlatform for an unknown platform
// - Returns ErrConflict if the attested key is already enrolled
// - Returns an error wrapping ErrInternal when persistence fails
type Enroller interface {
	Enroll(ctx context.Context, req EnrollRequest) (*EnrollOutcome, error)
}

// Revoker revokes devices. Revocation is one-way and idempotent.
//
// Error Contract:
// - Returns ErrNotFound if the device does not exist
type Revoker interface {
	Revoke(ctx context.Context, req RevokeRequest) (domain.Revocation, error)
}

// EvidenceProvider assembles evidence documents.
//
// Error Contract:
// - Returns ErrNotFound if the verification does not exist
type EvidenceProvider interface {
	GetEvidence(ctx context.Context, verificationID string) (*domain.EvidenceDocument, error)
}

// Engine is the full inbound surface transports depend on.
type Engine interface {
	Verifier
	Enroller
	Revoker
	EvidenceProvider
}
