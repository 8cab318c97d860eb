package manifest

import (
	gocrypto "crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// Version is written into manifests produced by this package.
const Version = "1"

// Manifest is a manifest under construction.
type Manifest struct {
	Version    string           `json:"version"`
	Signature  domain.Signature `json:"signature"`
	Assertions map[string]any   `json:"assertions"`
}

// Claim describes what a capture asserts about an asset.
type Claim struct {
	DeviceID   string
	CapturedAt time.Time
	Sequence   *int64
	Extra      map[string]any
}

// Bind creates an unsigned manifest whose content binding matches asset.
func Bind(asset []byte, alg domain.HashAlgorithm, claim Claim) (*Manifest, error) {
	h, err := crypto.HashAsset(alg, asset)
	if err != nil {
		return nil, err
	}

	assertions := make(map[string]any, len(claim.Extra)+4)
	for k, v := range claim.Extra {
		assertions[k] = v
	}
	assertions[LabelHashData] = map[string]any{"alg": string(h.Algorithm), "hash": h.Hex}
	if claim.DeviceID != "" {
		assertions[LabelDeviceID] = claim.DeviceID
	}
	if !claim.CapturedAt.IsZero() {
		assertions[LabelTimestamp] = claim.CapturedAt.UTC().Format(time.RFC3339)
	}
	if claim.Sequence != nil {
		assertions[LabelSequence] = *claim.Sequence
	}

	return &Manifest{Version: Version, Assertions: assertions}, nil
}

// Sign sets a raw base64 signature over the assertions.
func (m *Manifest) Sign(alg domain.SignatureAlgorithm, priv gocrypto.Signer) error {
	raw, err := m.rawAssertions()
	if err != nil {
		return err
	}
	digest, err := SigningDigest(raw)
	if err != nil {
		return err
	}
	sig, err := crypto.SignRaw(alg, priv, digest)
	if err != nil {
		return err
	}
	return m.setSignature(alg, priv, base64.StdEncoding.EncodeToString(sig))
}

// SignCompact sets a compact JWS whose payload is the canonical assertions.
func (m *Manifest) SignCompact(alg domain.SignatureAlgorithm, priv gocrypto.Signer) error {
	raw, err := m.rawAssertions()
	if err != nil {
		return err
	}
	payload, err := SigningPayload(raw)
	if err != nil {
		return err
	}
	token, err := crypto.SignCompact(alg, priv, payload)
	if err != nil {
		return err
	}
	return m.setSignature(alg, priv, token)
}

func (m *Manifest) rawAssertions() (json.RawMessage, error) {
	raw, err := json.Marshal(m.Assertions)
	if err != nil {
		return nil, fmt.Errorf("encode assertions: %w", err)
	}
	return raw, nil
}

func (m *Manifest) setSignature(alg domain.SignatureAlgorithm, priv gocrypto.Signer, value string) error {
	pub, err := crypto.EncodePublicKey(priv.Public())
	if err != nil {
		return err
	}
	chain := m.Signature.CertChain
	m.Signature = domain.Signature{Algorithm: alg, PublicKey: pub, Value: value, CertChain: chain}
	return nil
}

// Serialize renders the manifest as JSON.
func Serialize(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("serialize: nil manifest")
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return out, nil
}
