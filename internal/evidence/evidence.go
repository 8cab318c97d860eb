// Package evidence projects a stored verification and its linked rows into an
// evidence document. Assemble has no side effects and may be called any
// number of times for the same inputs.
package evidence

import (
	"slices"
	"time"

	"github.com/sufield/popc/internal/domain"
)

// Actor names recorded on custody events.
const (
	ActorDevice = "device"
	ActorEngine = "popc"
)

// Input is everything known about one verification. Only Record is required.
type Input struct {
	Record   *domain.VerificationRecord
	Device   *domain.Device
	Certs    []domain.DeviceCert
	Policy   *domain.Policy
	LogEntry *domain.TransparencyLogEntry
	// Proof is the hex inclusion proof of LogEntry, when one was computed.
	Proof []string
}

// Assemble builds the evidence document for in.Record.
func Assemble(in Input, generatedAt time.Time) domain.EvidenceDocument {
	rec := in.Record
	doc := domain.EvidenceDocument{
		VerificationID: rec.ID,
		GeneratedAt:    generatedAt.UTC(),
		Asset: domain.EvidenceAsset{
			Hash:      rec.AssetHash,
			Algorithm: rec.HashAlgorithm,
		},
		Verdict: rec.Verdict,
		Reasons: slices.Clone(rec.Reasons),
		Signature: domain.EvidenceSignature{
			Algorithm:         rec.SignatureAlgorithm,
			SignerFingerprint: rec.SignerFingerprint,
			Valid:             rec.SignatureValid,
		},
		CertificateChain: certificates(in.Certs, rec.CreatedAt),
		Timestamp:        domain.EvidenceTimestamp{Status: domain.TimestampUnverified},
	}
	if doc.Reasons == nil {
		doc.Reasons = []string{}
	}

	if b := rec.ContentBinding; b != nil {
		doc.ContentBinding = &domain.EvidenceBinding{
			Algorithm: b.Algorithm,
			Hash:      b.Hash,
			Match:     rec.BindingMatch,
		}
	}

	if d := in.Device; d != nil {
		doc.Device = &domain.EvidenceDevice{
			ID:              d.ID,
			AttestationType: d.AttestationType,
			SecurityLevel:   d.SecurityLevel,
			EnrolledAt:      d.EnrolledAt.UTC(),
			RevokedAt:       d.RevokedAt,
			PhotoSequence:   d.PhotoSequence,
		}
		doc.Attestation = &domain.EvidenceAttestation{
			Type:             d.AttestationType,
			SecurityLevel:    d.SecurityLevel,
			CertificateCount: len(doc.CertificateChain),
			ChainValid:       chainValid(doc.CertificateChain),
		}
	}

	if p := in.Policy; p != nil {
		doc.Policy = &domain.EvidencePolicy{ID: p.ID, Name: p.Name, Version: p.Version}
	}

	if e := in.LogEntry; e != nil {
		doc.Transparency = &domain.EvidenceTransparency{
			LeafHash:  e.MerkleLeaf,
			RootHash:  e.MerkleRoot,
			TreeSize:  e.TreeSize,
			LeafIndex: e.LeafIndex,
			Proof:     slices.Clone(in.Proof),
			LoggedAt:  e.CreatedAt.UTC(),
		}
	}

	doc.Custody = custody(rec, generatedAt)
	return doc
}

func certificates(certs []domain.DeviceCert, at time.Time) []domain.EvidenceCertificate {
	sorted := slices.Clone(certs)
	slices.SortStableFunc(sorted, func(a, b domain.DeviceCert) int {
		return a.Position - b.Position
	})
	out := make([]domain.EvidenceCertificate, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, domain.EvidenceCertificate{
			Position:            c.Position,
			CertificateInfo:     c.CertificateInfo,
			ValidAtVerification: c.ValidAt(at),
		})
	}
	return out
}

func chainValid(chain []domain.EvidenceCertificate) bool {
	if len(chain) == 0 {
		return false
	}
	for _, c := range chain {
		if !c.ValidAtVerification {
			return false
		}
	}
	return true
}

// custody is always captured, verified, evidence_generated. A record without
// a capture time uses the verification time for the capture event.
func custody(rec *domain.VerificationRecord, generatedAt time.Time) []domain.CustodyEvent {
	captured := rec.CreatedAt
	if rec.CapturedAt != nil {
		captured = *rec.CapturedAt
	}
	capturedBy := ActorDevice
	if rec.DeviceID != "" {
		capturedBy = rec.DeviceID
	}
	return []domain.CustodyEvent{
		{Event: domain.CustodyCaptured, At: captured.UTC(), Actor: capturedBy},
		{Event: domain.CustodyVerified, At: rec.CreatedAt.UTC(), Actor: ActorEngine},
		{Event: domain.CustodyEvidenceGenerated, At: generatedAt.UTC(), Actor: ActorEngine},
	}
}
