package ports

import (
	"time"

	"github.com/sufield/popc/internal/domain"
)

// VerifyRequest is one asset with an optional manifest.
type VerifyRequest struct {
	Asset []byte
	// Manifest is nil or empty for heuristic mode.
	Manifest []byte
	// ContentType is stored with the asset blob when it is saved.
	ContentType string
}

// VerificationOutcome is the result of a verify call.
type VerificationOutcome struct {
	ID             string                       `json:"id"`
	Verdict        domain.Verdict               `json:"verdict"`
	Reasons        []string                     `json:"reasons"`
	AssetHash      domain.AssetHash             `json:"assetHash"`
	DeviceID       string                       `json:"deviceId,omitempty"`
	PolicyID       string                       `json:"policyId,omitempty"`
	CapturedAt     *time.Time                   `json:"capturedAt,omitempty"`
	SequenceNumber *int64                       `json:"sequenceNumber,omitempty"`
	Manifest       *domain.ManifestCheck        `json:"manifest,omitempty"`
	Heuristics     *domain.HeuristicReport      `json:"heuristics,omitempty"`
	AssetURL       string                       `json:"assetUrl,omitempty"`
	LogEntry       *domain.TransparencyLogEntry `json:"transparencyLog,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
}

// EnrollRequest carries attestation evidence for one platform.
type EnrollRequest struct {
	Platform domain.Platform

	// Android
	ChainPEM  []string
	Challenge []byte

	// Apple
	AttestationObject []byte
	ClientDataJSON    []byte
	BundleID          string
}

// EnrollOutcome reports an enrollment decision. Accepted=false carries the
// attestation error codes; nothing is persisted in that case.
type EnrollOutcome struct {
	Accepted      bool                     `json:"accepted"`
	DeviceID      string                   `json:"deviceId,omitempty"`
	SecurityLevel domain.SecurityLevel     `json:"securityLevel"`
	Warnings      []string                 `json:"warnings"`
	Errors        []string                 `json:"errors"`
	Attestation   domain.AttestationResult `json:"attestation"`
}

// RevokeRequest revokes a device.
type RevokeRequest struct {
	DeviceID  string
	Reason    string
	RevokedBy string
}
