package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sufield/popc/internal/domain"
)

func TestNormalizeHashAlgorithm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want domain.HashAlgorithm
	}{
		{"", domain.HashSHA256},
		{"sha256", domain.HashSHA256},
		{"SHA-256", domain.HashSHA256},
		{"sha_512", domain.HashSHA512},
		{" SHA512 ", domain.HashSHA512},
		{"md5", domain.HashAlgorithm("md5")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.NormalizeHashAlgorithm(tt.in))
		})
	}
}

func TestSecurityLevel_Rank(t *testing.T) {
	t.Parallel()

	assert.Less(t, domain.SecurityUnknown.Rank(), domain.SecuritySoftware.Rank())
	assert.Less(t, domain.SecuritySoftware.Rank(), domain.SecurityTEE.Rank())
	assert.Less(t, domain.SecurityTEE.Rank(), domain.SecurityStrongBox.Rank())
}

func TestCertificateInfo_ValidAt(t *testing.T) {
	t.Parallel()

	nb := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	na := nb.AddDate(1, 0, 0)
	ci := domain.CertificateInfo{NotBefore: nb, NotAfter: na}

	assert.True(t, ci.ValidAt(nb), "window is inclusive at notBefore")
	assert.True(t, ci.ValidAt(na), "window is inclusive at notAfter")
	assert.False(t, ci.ValidAt(nb.Add(-time.Second)))
	assert.False(t, ci.ValidAt(na.Add(time.Second)))
}

func TestPolicy_DecodeRules(t *testing.T) {
	t.Parallel()

	var nilPolicy *domain.Policy
	rules, err := nilPolicy.DecodeRules()
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyRules{}, rules)

	p := &domain.Policy{Name: "default", Rules: json.RawMessage(`{"minSecurityLevel":"tee","requireDeviceBinding":true}`)}
	rules, err = p.DecodeRules()
	require.NoError(t, err)
	assert.Equal(t, domain.SecurityTEE, rules.MinSecurityLevel)
	assert.True(t, rules.RequireDeviceBinding)

	bad := &domain.Policy{Name: "broken", Rules: json.RawMessage(`{`)}
	_, err = bad.DecodeRules()
	assert.True(t, errors.Is(err, domain.ErrInvalidPolicy))
}

func TestVerificationRecord_Validate(t *testing.T) {
	t.Parallel()

	ok := &domain.VerificationRecord{ID: "v1", AssetHash: "abc", Verdict: domain.VerdictVerified}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		rec  domain.VerificationRecord
	}{
		{"missing id", domain.VerificationRecord{AssetHash: "abc", Verdict: domain.VerdictUnsigned}},
		{"missing hash", domain.VerificationRecord{ID: "v", Verdict: domain.VerdictUnsigned}},
		{"unknown verdict", domain.VerificationRecord{ID: "v", AssetHash: "abc", Verdict: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rec.Validate()
			assert.True(t, errors.Is(err, domain.ErrRecordInvalid))
		})
	}
}

func TestDevice_ValidateAndRevoked(t *testing.T) {
	t.Parallel()

	d := &domain.Device{ID: "dev-1", PublicKeyFingerprint: "ff"}
	require.NoError(t, d.Validate())
	assert.False(t, d.Revoked())

	now := time.Now()
	d.RevokedAt = &now
	assert.True(t, d.Revoked())

	assert.ErrorIs(t, (&domain.Device{PublicKeyFingerprint: "ff"}).Validate(), domain.ErrDeviceInvalid)
	assert.ErrorIs(t, (&domain.Device{ID: "x", PublicKeyFingerprint: "ff", PhotoSequence: -1}).Validate(), domain.ErrDeviceInvalid)
}

func TestAttestation_TaggedVariants(t *testing.T) {
	t.Parallel()

	variants := []domain.Attestation{
		domain.AndroidAttestation{BootState: domain.BootVerified},
		domain.AppleAttestation{TeamID: "TEAM"},
		domain.SoftwareKeyAttestation{Reason: "no extension"},
	}
	kinds := make([]string, 0, len(variants))
	for _, v := range variants {
		kinds = append(kinds, v.Kind())
	}
	assert.Equal(t, []string{"android", "apple", "software_key"}, kinds)
}

func TestExifData_Camera(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Google Pixel 8", domain.ExifData{Make: "Google", Model: "Pixel 8"}.Camera())
	assert.Equal(t, "Canon", domain.ExifData{Make: "Canon"}.Camera())
	assert.Equal(t, "", domain.ExifData{}.Camera())
}
