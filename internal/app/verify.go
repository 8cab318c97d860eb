package app

import (
	"context"
	"errors"

	"github.com/sufield/popc/internal/assert"
	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/logging"
	"github.com/sufield/popc/internal/manifest"
	"github.com/sufield/popc/internal/ports"
)

// Metadata keys written into verification records.
const (
	MetaHeuristics = "heuristics"
	MetaManifest   = "manifest"
	MetaAssetURL   = "assetUrl"
)

// inspection is the manifest parse and check, computed together on the pool.
type inspection struct {
	parsed *domain.ParsedManifest
	check  domain.ManifestCheck
}

// verification accumulates one call's state until a verdict is reached.
type verification struct {
	rec     *domain.VerificationRecord
	out     *ports.VerificationOutcome
	device  *domain.Device
	unknown bool
	// passed is set when every check succeeded and the verdict now depends
	// on the commit.
	passed bool
}

func (v *verification) conclude(verdict domain.Verdict, reasons ...string) {
	v.rec.Verdict = verdict
	v.rec.Reasons = append(v.rec.Reasons, reasons...)
}

// Verify runs the pipeline on one asset.
func (e *Engine) Verify(ctx context.Context, req ports.VerifyRequest) (*ports.VerificationOutcome, error) {
	start := e.now()

	v, err := e.decide(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Msg("verification aborted")
		return nil, err
	}
	if v.passed {
		err = e.accept(ctx, req, v)
	} else {
		err = e.persist(ctx, v)
	}
	if err != nil {
		e.log.Error().Err(err).Str(logging.FieldVerificationID, v.rec.ID).Msg("verification aborted")
		return nil, err
	}

	e.metrics.ObserveVerification(v.rec.Verdict, e.now().Sub(start))
	e.log.Info().
		Str(logging.FieldVerificationID, v.rec.ID).
		Str(logging.FieldVerdict, string(v.rec.Verdict)).
		Str(logging.FieldDeviceID, v.rec.DeviceID).
		Strs("reasons", v.rec.Reasons).
		Msg("verification complete")

	return v.outcome(), nil
}

// decide walks the steps in order. It returns an error only for
// infrastructure failures.
func (e *Engine) decide(ctx context.Context, req ports.VerifyRequest) (*verification, error) {
	// 1. Asset hash.
	hash, err := crypto.HashAsset(e.hashAlg, req.Asset)
	if err != nil {
		return nil, internal("hash asset", err)
	}
	policy, rules, err := e.activePolicy(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	v := &verification{
		rec: &domain.VerificationRecord{
			ID:            e.newID(),
			AssetHash:     hash.Hex,
			HashAlgorithm: hash.Algorithm,
			Reasons:       []string{},
			Metadata:      map[string]any{},
			CreatedAt:     now,
		},
		out: &ports.VerificationOutcome{AssetHash: hash},
	}
	if policy != nil {
		v.rec.PolicyID = policy.ID
	}

	// 2. Heuristic mode.
	if len(req.Manifest) == 0 {
		report, err := e.analyzer.Analyze(ctx, req.Asset)
		if err != nil {
			return nil, internal("analyze asset", err)
		}
		v.rec.Metadata[MetaHeuristics] = report
		v.out.Heuristics = &report
		v.conclude(domain.VerdictUnsigned, report.Notes...)
		return v, nil
	}

	// 3. Parse, 4. binding and signature.
	insp, err := bg.Do(ctx, e.pool, func() inspection {
		pm, check := manifest.Inspect(req.Asset, req.Manifest)
		return inspection{parsed: pm, check: check}
	})
	if err != nil {
		return nil, internal("inspect manifest", err)
	}
	pm := insp.parsed
	v.fromManifest(pm)

	if !pm.Valid {
		verdict := domain.VerdictInvalid
		if pm.HasError(domain.CodeManifestBindingMissing) && !pm.HasError(domain.CodeInvalidManifestFormat) {
			verdict = domain.VerdictUnsigned
		}
		v.conclude(verdict, pm.Errors...)
		return v, nil
	}

	check := insp.check
	v.out.Manifest = &check
	v.rec.BindingMatch = check.ContentBindingMatch
	v.rec.SignatureValid = check.SignatureValid
	if !check.ContentBindingMatch {
		v.conclude(domain.VerdictTampered, check.Errors...)
		return v, nil
	}
	if !check.SignatureValid {
		v.conclude(domain.VerdictInvalid, check.Errors...)
		return v, nil
	}

	// 5. Device resolution and replay.
	if pm.DeviceID == "" {
		if rules.RequireDeviceBinding {
			v.conclude(domain.VerdictInvalid, domain.CodeDeviceBindingRequired)
			return v, nil
		}
	} else {
		dev, err := e.devices.GetDevice(ctx, pm.DeviceID)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			v.unknown = true
		case err != nil:
			return nil, internal("load device", err)
		default:
			v.device = dev
		}
	}
	if v.device != nil && v.rec.SignerFingerprint != v.device.PublicKeyFingerprint {
		v.conclude(domain.VerdictInvalid, domain.CodeDeviceKeyMismatch)
		return v, nil
	}
	seq := pm.SequenceNumber
	if v.device != nil && seq != nil && *seq <= v.device.PhotoSequence {
		v.conclude(domain.VerdictInvalid, domain.CodeReplayDetected)
		return v, nil
	}

	// 6. Revocation.
	if v.device != nil && v.device.Revoked() {
		v.conclude(domain.VerdictRevoked, domain.CodeDeviceRevoked)
		return v, nil
	}

	// 7. Verified: committed by accept.
	v.passed = true
	return v, nil
}

func (e *Engine) persist(ctx context.Context, v *verification) error {
	if err := e.verifications.CreateVerification(ctx, v.rec); err != nil {
		return internal("persist verification", err)
	}
	return nil
}

// accept saves the asset, then claims the sequence, appends the log entry
// and stores the record in one commit. Losing the claim to a concurrent
// call turns the verdict into replay or revoked.
func (e *Engine) accept(ctx context.Context, req ports.VerifyRequest, v *verification) error {
	if e.blobs != nil {
		url, err := e.blobs.Put(ctx, v.rec.AssetHash, req.Asset, req.ContentType)
		if err != nil {
			return internal("save asset", err)
		}
		v.out.AssetURL = url
		v.rec.Metadata[MetaAssetURL] = url
	}

	v.conclude(domain.VerdictVerified, domain.CodeContentBindingOK, domain.CodeSignatureOK, domain.CodeCertChainOK)
	if v.device != nil {
		v.rec.Reasons = append(v.rec.Reasons, domain.CodeAttestationPresent)
	}
	if v.unknown {
		v.rec.Reasons = append(v.rec.Reasons, domain.CodeDeviceUnknown)
	}

	c := ports.VerifiedCommit{Record: v.rec, LogFingerprint: v.logFingerprint()}
	seq := v.rec.SequenceNumber
	if v.device != nil && seq != nil {
		c.Claim = &ports.SequenceClaim{DeviceID: v.device.ID, Sequence: *seq}
	}
	entry, ok, err := e.verifications.CommitVerified(ctx, c)
	if err != nil {
		return internal("commit verification", err)
	}
	if ok {
		if c.Claim != nil {
			assert.Invariant(*seq > v.device.PhotoSequence, "accepted sequence must exceed the previous photo sequence")
			v.device.PhotoSequence = *seq
		}
		v.out.LogEntry = entry
		return nil
	}
	if c.Claim == nil {
		return internal("commit verification", errors.New("commit without a sequence claim was refused"))
	}

	current, err := e.devices.GetDevice(ctx, v.device.ID)
	if err != nil {
		return internal("reload device", err)
	}
	// the stored blob stays, the record no longer points at it
	delete(v.rec.Metadata, MetaAssetURL)
	v.out.AssetURL = ""
	v.rec.Reasons = []string{}
	if current.Revoked() {
		v.conclude(domain.VerdictRevoked, domain.CodeDeviceRevoked)
	} else {
		v.conclude(domain.VerdictInvalid, domain.CodeReplayDetected)
	}
	return e.persist(ctx, v)
}

// fromManifest copies the claim fields onto the record.
func (v *verification) fromManifest(pm *domain.ParsedManifest) {
	r := v.rec
	r.DeviceID = pm.DeviceID
	r.CapturedAt = pm.CapturedAt
	r.SequenceNumber = pm.SequenceNumber
	r.SignerFingerprint = pm.PrimarySignerFingerprint()
	if pm.Signature.Algorithm.Supported() {
		r.SignatureAlgorithm = pm.Signature.Algorithm
	}
	if pm.ContentBinding.Present() {
		b := pm.ContentBinding
		r.ContentBinding = &b
	}
	if len(pm.Metadata) > 0 {
		r.Metadata[MetaManifest] = pm.Metadata
	}
}

// logFingerprint is the key a transparency log entry is filed under: the
// enrolled device key when the device is known, else the manifest signer.
func (v *verification) logFingerprint() string {
	if v.device != nil {
		return v.device.PublicKeyFingerprint
	}
	return v.rec.SignerFingerprint
}

func (v *verification) outcome() *ports.VerificationOutcome {
	r := v.rec
	o := v.out
	o.ID = r.ID
	o.Verdict = r.Verdict
	o.Reasons = r.Reasons
	o.DeviceID = r.DeviceID
	o.PolicyID = r.PolicyID
	o.CapturedAt = r.CapturedAt
	o.SequenceNumber = r.SequenceNumber
	o.CreatedAt = r.CreatedAt
	return o
}
