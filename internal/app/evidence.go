package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/evidence"
	"github.com/sufield/popc/internal/ports"
)

// GetEvidence assembles the evidence document of a stored verification.
// Linked rows that no longer exist are left out of the document.
func (e *Engine) GetEvidence(ctx context.Context, verificationID string) (*domain.EvidenceDocument, error) {
	rec, err := e.verifications.GetVerification(ctx, verificationID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("evidence: %w", err)
	}
	if err != nil {
		return nil, internal("load verification", err)
	}

	in := evidence.Input{Record: rec}

	if rec.DeviceID != "" {
		dev, err := e.devices.GetDevice(ctx, rec.DeviceID)
		switch {
		case errors.Is(err, ports.ErrNotFound):
		case err != nil:
			return nil, internal("load device", err)
		default:
			in.Device = dev
			if in.Certs, err = e.devices.ListDeviceCerts(ctx, dev.ID); err != nil {
				return nil, internal("load device certificates", err)
			}
		}
	}

	if rec.PolicyID != "" {
		p, err := e.policies.GetPolicy(ctx, rec.PolicyID)
		switch {
		case errors.Is(err, ports.ErrNotFound):
		case err != nil:
			return nil, internal("load policy", err)
		default:
			in.Policy = p
		}
	}

	if rec.Verdict == domain.VerdictVerified {
		if err := e.attachLogEntry(ctx, &in); err != nil {
			return nil, err
		}
	}

	doc := evidence.Assemble(in, e.now())
	return &doc, nil
}

func (e *Engine) attachLogEntry(ctx context.Context, in *evidence.Input) error {
	if idx := in.Record.LogLeafIndex; idx != nil {
		entry, err := e.tlog.EntryAt(ctx, *idx)
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		if err != nil {
			return internal("load transparency log entry", err)
		}
		return e.attachProof(ctx, in, entry)
	}

	// records written before leaf indexes were stored
	var candidates []string
	if in.Device != nil {
		candidates = append(candidates, in.Device.PublicKeyFingerprint)
	}
	candidates = append(candidates, in.Record.SignerFingerprint)

	for _, fp := range candidates {
		entry, err := e.tlog.LookupEntry(ctx, in.Record.AssetHash, fp)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return internal("lookup transparency log", err)
		}
		return e.attachProof(ctx, in, entry)
	}
	return nil
}

func (e *Engine) attachProof(ctx context.Context, in *evidence.Input, entry *domain.TransparencyLogEntry) error {
	in.LogEntry = entry
	proof, err := e.tlog.InclusionProof(ctx, entry.LeafIndex, entry.TreeSize)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return internal("inclusion proof", err)
	}
	in.Proof = proof
	return nil
}
