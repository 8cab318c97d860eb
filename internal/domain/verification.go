package domain

import (
	"fmt"
	"time"
)

// Verdict is the terminal outcome of one verification call.
type Verdict string

const (
	VerdictVerified Verdict = "verified"
	VerdictTampered Verdict = "tampered"
	VerdictUnsigned Verdict = "unsigned"
	VerdictInvalid  Verdict = "invalid"
	VerdictRevoked  Verdict = "revoked"
)

// VerificationRecord is the immutable audit row written once per verify call.
type VerificationRecord struct {
	ID                 string             `json:"id"`
	AssetHash          string             `json:"assetHash"`
	HashAlgorithm      HashAlgorithm      `json:"hashAlgorithm"`
	Verdict            Verdict            `json:"verdict"`
	Reasons            []string           `json:"reasons"`
	DeviceID           string             `json:"deviceId,omitempty"`
	PolicyID           string             `json:"policyId,omitempty"`
	CapturedAt         *time.Time         `json:"capturedAt,omitempty"`
	SignatureAlgorithm SignatureAlgorithm `json:"signatureAlgorithm,omitempty"`
	SequenceNumber     *int64             `json:"sequenceNumber,omitempty"`
	SignerFingerprint  string             `json:"signerFingerprint,omitempty"`
	ContentBinding     *ContentBinding    `json:"contentBinding,omitempty"`
	BindingMatch       bool               `json:"contentBindingMatch"`
	SignatureValid     bool               `json:"signatureValid"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`

	// LogLeafIndex is the transparency log leaf appended for this record.
	// Only verified records have one.
	LogLeafIndex *int64 `json:"logLeafIndex,omitempty"`
}

// Validate checks the fields a store requires before insert.
func (r *VerificationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrRecordInvalid)
	}
	if r.AssetHash == "" {
		return fmt.Errorf("%w: asset hash is required", ErrRecordInvalid)
	}
	switch r.Verdict {
	case VerdictVerified, VerdictTampered, VerdictUnsigned, VerdictInvalid, VerdictRevoked:
	default:
		return fmt.Errorf("%w: unknown verdict %q", ErrRecordInvalid, r.Verdict)
	}
	return nil
}

// TransparencyLogEntry is an append-only Merkle log leaf, looked up by
// (AssetHash, DeviceCertFingerprint).
type TransparencyLogEntry struct {
	AssetHash             string    `json:"assetHash"`
	DeviceCertFingerprint string    `json:"deviceCertFingerprint"`
	MerkleLeaf            string    `json:"merkleLeaf"`
	MerkleRoot            string    `json:"merkleRoot,omitempty"`
	TreeSize              int64     `json:"treeSize,omitempty"`
	LeafIndex             int64     `json:"leafIndex"`
	CreatedAt             time.Time `json:"createdAt"`
}
