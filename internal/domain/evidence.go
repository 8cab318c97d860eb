package domain

import "time"

// Custody events, in the order they appear in an evidence document.
const (
	CustodyCaptured          = "captured"
	CustodyVerified          = "verified"
	CustodyEvidenceGenerated = "evidence_generated"
)

// TimestampUnverified is the status of evidence without an RFC 3161 token.
const TimestampUnverified = "unverified"

// EvidenceDocument is the shareable summary of one verification decision.
// It is assembled from stored rows and never persisted itself.
type EvidenceDocument struct {
	VerificationID   string                `json:"verificationId"`
	GeneratedAt      time.Time             `json:"generatedAt"`
	Asset            EvidenceAsset         `json:"asset"`
	Verdict          Verdict               `json:"verdict"`
	Reasons          []string              `json:"reasons"`
	ContentBinding   *EvidenceBinding      `json:"contentBinding,omitempty"`
	Signature        EvidenceSignature     `json:"signature"`
	Device           *EvidenceDevice       `json:"device,omitempty"`
	CertificateChain []EvidenceCertificate `json:"certificateChain"`
	Attestation      *EvidenceAttestation  `json:"attestation,omitempty"`
	Policy           *EvidencePolicy       `json:"policy,omitempty"`
	Transparency     *EvidenceTransparency `json:"transparency,omitempty"`
	Timestamp        EvidenceTimestamp     `json:"timestamp"`
	Custody          []CustodyEvent        `json:"chainOfCustody"`
}

type EvidenceAsset struct {
	Hash      string        `json:"hash"`
	Algorithm HashAlgorithm `json:"algorithm"`
}

type EvidenceBinding struct {
	Algorithm HashAlgorithm `json:"algorithm"`
	Hash      string        `json:"hash"`
	Match     bool          `json:"match"`
}

type EvidenceSignature struct {
	Algorithm         SignatureAlgorithm `json:"algorithm,omitempty"`
	SignerFingerprint string             `json:"signerFingerprint,omitempty"`
	Valid             bool               `json:"valid"`
}

type EvidenceDevice struct {
	ID              string        `json:"id"`
	AttestationType string        `json:"attestationType"`
	SecurityLevel   SecurityLevel `json:"securityLevel"`
	EnrolledAt      time.Time     `json:"enrolledAt"`
	RevokedAt       *time.Time    `json:"revokedAt,omitempty"`
	PhotoSequence   int64         `json:"photoSequence"`
}

// EvidenceCertificate reports a chain certificate and whether it was valid
// when the verification was recorded.
type EvidenceCertificate struct {
	Position int `json:"position"`
	CertificateInfo
	ValidAtVerification bool `json:"validAtVerification"`
}

type EvidenceAttestation struct {
	Type             string        `json:"type"`
	SecurityLevel    SecurityLevel `json:"securityLevel"`
	CertificateCount int           `json:"certificateCount"`
	ChainValid       bool          `json:"chainValid"`
}

type EvidencePolicy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type EvidenceTransparency struct {
	LeafHash  string    `json:"leafHash"`
	RootHash  string    `json:"rootHash,omitempty"`
	TreeSize  int64     `json:"treeSize,omitempty"`
	LeafIndex int64     `json:"leafIndex"`
	Proof     []string  `json:"inclusionProof,omitempty"`
	LoggedAt  time.Time `json:"loggedAt"`
}

type EvidenceTimestamp struct {
	Status    string     `json:"status"`
	Time      *time.Time `json:"time,omitempty"`
	Authority string     `json:"authority,omitempty"`
}

type CustodyEvent struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
}
