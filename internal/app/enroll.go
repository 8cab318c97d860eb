package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sufield/popc/internal/assert"
	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/logging"
	"github.com/sufield/popc/internal/ports"
)

// Enroll verifies attestation evidence and, when it holds up under the
// active policy, persists the device with its certificate chain.
func (e *Engine) Enroll(ctx context.Context, req ports.EnrollRequest) (*ports.EnrollOutcome, error) {
	var verify func() domain.AttestationResult
	switch req.Platform {
	case domain.PlatformAndroid:
		verify = func() domain.AttestationResult {
			return e.attest.VerifyAndroid(req.ChainPEM, req.Challenge)
		}
	case domain.PlatformApple:
		verify = func() domain.AttestationResult {
			return e.attest.VerifyApple(req.AttestationObject, req.ClientDataJSON, req.BundleID)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, req.Platform)
	}

	res, err := bg.Do(ctx, e.pool, verify)
	if err != nil {
		return nil, internal("verify attestation", err)
	}
	_, rules, err := e.activePolicy(ctx)
	if err != nil {
		return nil, err
	}

	out := &ports.EnrollOutcome{
		Accepted:      res.OK,
		SecurityLevel: res.SecurityLevel,
		Warnings:      nonNil(slices.Clone(res.Warnings)),
		Errors:        nonNil(slices.Clone(res.Errors)),
		Attestation:   res,
	}
	if out.Accepted && rules.RejectSoftwareKeys && res.SecurityLevel == domain.SecuritySoftware {
		out.Accepted = false
		out.Errors = append(out.Errors, domain.CodeAttestationSoftwareRejected)
	}
	if out.Accepted && rules.MinSecurityLevel != "" && res.SecurityLevel.Rank() < rules.MinSecurityLevel.Rank() {
		out.Warnings = append(out.Warnings, domain.CodeAttestationBelowPolicy)
	}

	if !out.Accepted {
		e.metrics.ObserveEnrollment(req.Platform, false)
		e.log.Info().
			Str("platform", string(req.Platform)).
			Strs("errors", out.Errors).
			Msg("enrollment rejected")
		return out, nil
	}

	assert.Invariant(res.PublicKeyFingerprint != "", "accepted attestation must carry a leaf key fingerprint")
	dev := &domain.Device{
		ID:                   e.newID(),
		PublicKeyFingerprint: res.PublicKeyFingerprint,
		AttestationType:      string(req.Platform),
		SecurityLevel:        res.SecurityLevel,
		EnrolledAt:           e.now().UTC(),
	}
	if res.Evidence != nil {
		dev.AttestationType = res.Evidence.Kind()
	}
	if leaf, ok := res.Leaf(); ok {
		expiry := leaf.NotAfter
		dev.CertExpiry = &expiry
	}
	certs := make([]domain.DeviceCert, len(res.CertificateChain))
	for i, c := range res.CertificateChain {
		certs[i] = domain.DeviceCert{DeviceID: dev.ID, Position: i, CertificateInfo: c}
	}

	if err := e.devices.CreateDevice(ctx, dev, certs); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, fmt.Errorf("enroll device: %w", err)
		}
		return nil, internal("create device", err)
	}

	out.DeviceID = dev.ID
	e.metrics.ObserveEnrollment(req.Platform, true)
	e.log.Info().
		Str(logging.FieldDeviceID, dev.ID).
		Str("platform", string(req.Platform)).
		Str("security_level", string(dev.SecurityLevel)).
		Strs("warnings", out.Warnings).
		Msg("device enrolled")
	return out, nil
}

// Revoke records a revocation. Revoking an already revoked device returns
// the revocation in effect.
func (e *Engine) Revoke(ctx context.Context, req ports.RevokeRequest) (domain.Revocation, error) {
	rev := domain.Revocation{
		DeviceID:  req.DeviceID,
		Reason:    req.Reason,
		RevokedBy: req.RevokedBy,
		At:        e.now().UTC(),
	}
	got, created, err := e.devices.RevokeDevice(ctx, rev)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.Revocation{}, fmt.Errorf("revoke device: %w", err)
	}
	if err != nil {
		return domain.Revocation{}, internal("revoke device", err)
	}
	if created {
		e.log.Warn().
			Str(logging.FieldDeviceID, got.DeviceID).
			Str("reason", got.Reason).
			Str("revoked_by", got.RevokedBy).
			Msg("device revoked")
	}
	return got, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
