package domain

import "time"

// SignatureAlgorithm is one of the JOSE algorithm names accepted for manifests.
type SignatureAlgorithm string

const (
	AlgES256 SignatureAlgorithm = "ES256"
	AlgES384 SignatureAlgorithm = "ES384"
	AlgES512 SignatureAlgorithm = "ES512"
	AlgEdDSA SignatureAlgorithm = "EdDSA"
)

// Supported reports whether the algorithm is one the engine verifies.
func (a SignatureAlgorithm) Supported() bool {
	switch a {
	case AlgES256, AlgES384, AlgES512, AlgEdDSA:
		return true
	}
	return false
}

// ContentBinding is the hash a manifest claims the asset must match.
type ContentBinding struct {
	Algorithm HashAlgorithm `json:"algorithm"`
	Hash      string        `json:"hash"`
	Location  string        `json:"location,omitempty"`
}

// Present reports whether the binding carries a hash.
func (b ContentBinding) Present() bool {
	return b.Hash != ""
}

// Signature is the claim signature carried by a manifest.
type Signature struct {
	Algorithm SignatureAlgorithm `json:"alg"`
	PublicKey string             `json:"publicKey"`
	Value     string             `json:"value"`
	CertChain []string           `json:"certChain,omitempty"`
}

// SignerChainEntry describes one signer, ordered leaf-to-root.
type SignerChainEntry struct {
	Alg         string     `json:"alg"`
	Fingerprint string     `json:"fingerprint"`
	Subject     string     `json:"subject,omitempty"`
	Issuer      string     `json:"issuer,omitempty"`
	NotBefore   *time.Time `json:"notBefore,omitempty"`
	NotAfter    *time.Time `json:"notAfter,omitempty"`
}

// ParsedManifest is the result of decoding a manifest container.
// It is never mutated after construction; re-verification re-parses.
type ParsedManifest struct {
	Valid          bool               `json:"valid"`
	Version        string             `json:"version,omitempty"`
	ContentBinding ContentBinding     `json:"contentBinding"`
	Signature      Signature          `json:"signature"`
	SignerChain    []SignerChainEntry `json:"signerChain,omitempty"`
	DeviceID       string             `json:"deviceId,omitempty"`
	CapturedAt     *time.Time         `json:"capturedAt,omitempty"`
	SequenceNumber *int64             `json:"sequenceNumber,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	Assertions     map[string]any     `json:"assertions,omitempty"`
	Errors         []string           `json:"errors,omitempty"`
}

// HasError reports whether code is among the parse errors.
func (m *ParsedManifest) HasError(code string) bool {
	for _, e := range m.Errors {
		if e == code {
			return true
		}
	}
	return false
}

// PrimarySignerFingerprint returns the fingerprint of the leaf signer, or "".
func (m *ParsedManifest) PrimarySignerFingerprint() string {
	if len(m.SignerChain) == 0 {
		return ""
	}
	return m.SignerChain[0].Fingerprint
}

// ManifestCheck is the outcome of checking a manifest against asset bytes.
type ManifestCheck struct {
	Valid               bool     `json:"valid"`
	ContentBindingMatch bool     `json:"contentBindingMatch"`
	SignatureValid      bool     `json:"signatureValid"`
	Errors              []string `json:"errors"`
}
