package ports

import (
	"context"
	"time"

	"github.com/sufield/popc/internal/domain"
)

// DeviceStore persists enrolled devices, their certificate chains and
// revocations.
//
// Error Contract:
// - GetDevice returns ErrNotFound if no device has the id
// - CreateDevice returns ErrConflict if the id or key fingerprint exists
// - CreateDevice returns domain.ErrDeviceInvalid if the device fails Validate
// - RevokeDevice returns ErrNotFound if no device has the id
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*domain.Device, error)

	// CreateDevice inserts the device and its chain in one unit.
	CreateDevice(ctx context.Context, device *domain.Device, certs []domain.DeviceCert) error

	// RevokeDevice appends rev and sets RevokedAt if it is not already set.
	// It returns the revocation in effect and whether this call created it.
	RevokeDevice(ctx context.Context, rev domain.Revocation) (domain.Revocation, bool, error)

	// ListDeviceCerts returns the chain ordered by position. Unknown devices
	// yield an empty list.
	ListDeviceCerts(ctx context.Context, id string) ([]domain.DeviceCert, error)
}

// PolicyStore reads and seeds policies.
//
// Error Contract:
// - ActivePolicy returns ErrNotFound if no policy is active
// - GetPolicy returns ErrNotFound if no policy has the id
// - SavePolicy returns domain.ErrInvalidPolicy if the rules do not decode
type PolicyStore interface {
	ActivePolicy(ctx context.Context) (*domain.Policy, error)
	GetPolicy(ctx context.Context, id string) (*domain.Policy, error)

	// SavePolicy inserts or replaces a policy. Activating one deactivates
	// the others.
	SavePolicy(ctx context.Context, policy *domain.Policy) error
}

// VerificationStore holds the immutable audit records.
//
// Error Contract:
// - CreateVerification and CommitVerified return ErrConflict if the id exists
// - CreateVerification and CommitVerified return domain.ErrRecordInvalid if
//   the record fails Validate
// - GetVerification returns ErrNotFound if no record has the id
type VerificationStore interface {
	CreateVerification(ctx context.Context, rec *domain.VerificationRecord) error
	GetVerification(ctx context.Context, id string) (*domain.VerificationRecord, error)

	// CommitVerified writes a verified record as one unit: the sequence
	// claim, the transparency log leaf and the record itself. The claim is a
	// compare-and-set that succeeds only if the sequence is greater than the
	// device's stored photo sequence and the device is not revoked. When it
	// fails nothing is written and CommitVerified reports false. On success
	// the record's LogLeafIndex names the appended leaf.
	CommitVerified(ctx context.Context, c VerifiedCommit) (*domain.TransparencyLogEntry, bool, error)
}

// VerifiedCommit is everything a verified verdict persists.
type VerifiedCommit struct {
	Record *domain.VerificationRecord

	// Claim is nil when the record is not bound to an enrolled device or
	// the manifest carries no sequence.
	Claim *SequenceClaim

	// LogFingerprint is the key fingerprint the log leaf is filed under.
	LogFingerprint string
}

// SequenceClaim asks to advance a device's photo sequence to Sequence.
type SequenceClaim struct {
	DeviceID string
	Sequence int64
}

// TransparencyLog is an append-only Merkle log of verified assets.
//
// Error Contract:
// - LookupEntry returns ErrNotFound if the pair was never appended
// - EntryAt returns ErrNotFound if no leaf has the index
// - InclusionProof returns ErrNotFound if leafIndex >= treeSize or treeSize
//   exceeds the current log size
type TransparencyLog interface {
	// AppendEntry adds a leaf for (assetHash, certFingerprint) and returns it
	// with the new root and tree size.
	AppendEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error)

	// LookupEntry returns the most recent entry for the pair.
	LookupEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error)

	// EntryAt returns the entry of one leaf.
	EntryAt(ctx context.Context, leafIndex int64) (*domain.TransparencyLogEntry, error)

	// InclusionProof returns the hex hashes proving leafIndex is in the
	// tree of size treeSize.
	InclusionProof(ctx context.Context, leafIndex, treeSize int64) ([]string, error)
}

// BlobStore saves verified asset bytes.
type BlobStore interface {
	// Put stores data under key and returns a URL the asset can be
	// retrieved from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// UsageLogger records authenticated API calls.
type UsageLogger interface {
	LogUsage(ctx context.Context, ev domain.UsageEvent) error
}

// Store is the full persistence surface. The in-memory and Postgres
// adapters both implement it.
type Store interface {
	DeviceStore
	PolicyStore
	VerificationStore
	TransparencyLog
	UsageLogger
	Close() error
}

// MetricsRecorder receives engine outcomes for export.
type MetricsRecorder interface {
	ObserveVerification(verdict domain.Verdict, elapsed time.Duration)
	ObserveEnrollment(platform domain.Platform, accepted bool)
}
