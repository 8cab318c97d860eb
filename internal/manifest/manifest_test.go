package manifest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

func signedManifest(t *testing.T, asset []byte, alg domain.SignatureAlgorithm, claim Claim) []byte {
	t.Helper()

	m, err := Bind(asset, domain.HashSHA256, claim)
	require.NoError(t, err)

	switch alg {
	case domain.AlgEdDSA:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		require.NoError(t, m.Sign(alg, priv))
	default:
		curve := map[domain.SignatureAlgorithm]elliptic.Curve{
			domain.AlgES256: elliptic.P256(),
			domain.AlgES384: elliptic.P384(),
			domain.AlgES512: elliptic.P521(),
		}[alg]
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, m.Sign(alg, priv))
	}

	out, err := Serialize(m)
	require.NoError(t, err)
	return out
}

func TestVerify_BoundAndSigned(t *testing.T) {
	t.Parallel()

	for _, alg := range []domain.SignatureAlgorithm{domain.AlgES256, domain.AlgES384, domain.AlgES512, domain.AlgEdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			t.Parallel()
			asset := []byte("pixels of a real photo")
			raw := signedManifest(t, asset, alg, Claim{DeviceID: "dev-1"})

			res := Verify(asset, raw)
			assert.True(t, res.Valid)
			assert.True(t, res.ContentBindingMatch)
			assert.True(t, res.SignatureValid)
			assert.Empty(t, res.Errors)
		})
	}
}

func TestVerify_OtherAssetIsMismatch(t *testing.T) {
	t.Parallel()
	raw := signedManifest(t, []byte("original"), domain.AlgES256, Claim{})

	res := Verify([]byte("edited"), raw)
	assert.False(t, res.Valid)
	assert.False(t, res.ContentBindingMatch)
	assert.True(t, res.SignatureValid)
	assert.Equal(t, []string{domain.CodeContentBindingMismatch}, res.Errors)
}

func TestVerify_ReportsBothFailures(t *testing.T) {
	t.Parallel()
	raw := signedManifest(t, []byte("original"), domain.AlgES256, Claim{})

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["assertions"].(map[string]any)["note"] = "added after signing"
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)

	res := Verify([]byte("edited"), tampered)
	assert.False(t, res.ContentBindingMatch)
	assert.False(t, res.SignatureValid)
	assert.Equal(t, []string{domain.CodeContentBindingMismatch, domain.CodeSignatureInvalid}, res.Errors)
}

func TestVerify_HashComparisonIsCaseSensitive(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	doc := map[string]any{
		"version":   "1",
		"signature": map[string]any{"alg": "ES256", "publicKey": "x", "value": "y"},
		"assertions": map[string]any{
			LabelHashData: map[string]any{"alg": "sha256", "hash": upper(crypto.SHA256Hex(asset))},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	res := Verify(asset, raw)
	assert.False(t, res.ContentBindingMatch)
	assert.False(t, res.SignatureValid)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func TestVerify_CompactToken(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	m, err := Bind(asset, domain.HashSHA256, Claim{DeviceID: "dev-1"})
	require.NoError(t, err)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, m.SignCompact(domain.AlgES256, priv))
	raw, err := Serialize(m)
	require.NoError(t, err)

	res := Verify(asset, raw)
	assert.True(t, res.SignatureValid)
	assert.True(t, res.Valid)

	// Same token attached to different assertions.
	m.Assertions["note"] = "swapped"
	swapped, err := Serialize(m)
	require.NoError(t, err)
	assert.False(t, Verify(asset, swapped).SignatureValid)
}

func TestVerify_MalformedSignatureDoesNotPanic(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	for _, sig := range []map[string]any{
		{"alg": "ES256", "publicKey": "garbage", "value": "AAAA"},
		{"alg": "RS256", "publicKey": "", "value": ""},
		{"alg": "EdDSA", "publicKey": base64.StdEncoding.EncodeToString(make([]byte, 32)), "value": "!!"},
		{"alg": "ES256", "publicKey": "garbage", "value": "a.b.c"},
	} {
		raw, err := json.Marshal(map[string]any{
			"version":    "1",
			"signature":  sig,
			"assertions": map[string]any{LabelHashData: map[string]any{"hash": crypto.SHA256Hex(asset)}},
		})
		require.NoError(t, err)
		res := Verify(asset, raw)
		assert.True(t, res.ContentBindingMatch)
		assert.False(t, res.SignatureValid)
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`{}`,
		`{"version":"1","signature":{`,
		`not json at all`,
		`{"version":"1","assertions":{}}`,
		`{"version":"1","signature":{},"assertions":null}`,
		``,
	} {
		pm := Parse([]byte(in))
		assert.False(t, pm.Valid, in)
		assert.Contains(t, pm.Errors, domain.CodeInvalidManifestFormat, in)
	}
}

func TestParse_BindingMissing(t *testing.T) {
	t.Parallel()
	pm := Parse([]byte(`{"version":"1","signature":{"alg":"ES256"},"assertions":{}}`))
	assert.False(t, pm.Valid)
	assert.Contains(t, pm.Errors, domain.CodeManifestBindingMissing)
	assert.NotContains(t, pm.Errors, domain.CodeInvalidManifestFormat)
}

func TestParse_ClaimAssertionFallback(t *testing.T) {
	t.Parallel()
	pm := Parse([]byte(`{
		"version": "1",
		"signature": {"alg": "ES256"},
		"assertions": {"stds.exif": {"Make": "Pixel"}},
		"claim": {"assertions": [
			{"label": "c2pa.actions", "data": {}},
			{"label": "c2pa.hash.data", "data": {"algorithm": "SHA-512", "hash": "abcd", "name": "jumbf"}}
		]}
	}`))
	require.True(t, pm.Valid, pm.Errors)
	assert.Equal(t, domain.HashSHA512, pm.ContentBinding.Algorithm)
	assert.Equal(t, "abcd", pm.ContentBinding.Hash)
	assert.Equal(t, "jumbf", pm.ContentBinding.Location)
	assert.Contains(t, pm.Metadata, "stds.exif")
}

func TestParse_Fields(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	seq := int64(7)
	captured := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	raw := signedManifest(t, asset, domain.AlgES256, Claim{
		DeviceID:   "dev-42",
		CapturedAt: captured,
		Sequence:   &seq,
		Extra:      map[string]any{"stds.exif": map[string]any{"Model": "X"}},
	})

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "json", input: raw},
		{name: "base64", input: []byte(base64.StdEncoding.EncodeToString(raw))},
		{name: "base64url unpadded", input: []byte(base64.RawURLEncoding.EncodeToString(raw))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pm := Parse(tt.input)
			require.True(t, pm.Valid, pm.Errors)
			assert.Equal(t, "1", pm.Version)
			assert.Equal(t, "dev-42", pm.DeviceID)
			require.NotNil(t, pm.CapturedAt)
			assert.True(t, captured.Equal(*pm.CapturedAt))
			assert.Equal(t, time.UTC, pm.CapturedAt.Location())
			require.NotNil(t, pm.SequenceNumber)
			assert.Equal(t, int64(7), *pm.SequenceNumber)
			assert.Equal(t, crypto.SHA256Hex(asset), pm.ContentBinding.Hash)
			assert.Contains(t, pm.Metadata, "stds.exif")
			assert.NotContains(t, pm.Metadata, LabelHashData)
			require.Len(t, pm.SignerChain, 1)
			assert.Equal(t, "ES256", pm.SignerChain[0].Alg)
			assert.Len(t, pm.PrimarySignerFingerprint(), 64)
		})
	}
}

func TestParse_SignerChainSkipsBadCerts(t *testing.T) {
	t.Parallel()
	certPEM := selfSigned(t, "Capture CA")
	raw, err := json.Marshal(map[string]any{
		"version": "1",
		"signature": map[string]any{
			"alg":       "ES256",
			"publicKey": "k",
			"value":     "v",
			"certChain": []string{"not a cert", certPEM},
		},
		"assertions": map[string]any{LabelHashData: map[string]any{"hash": "aa"}},
	})
	require.NoError(t, err)

	pm := Parse(raw)
	require.Len(t, pm.SignerChain, 2)
	assert.Equal(t, crypto.SHA256Hex([]byte("k")), pm.SignerChain[0].Fingerprint)
	assert.Contains(t, pm.SignerChain[1].Subject, "Capture CA")
	assert.NotNil(t, pm.SignerChain[1].NotAfter)
}

func selfSigned(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
