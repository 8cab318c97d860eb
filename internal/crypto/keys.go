package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/sufield/popc/internal/domain"
)

// PublicKey is an imported verification key together with its SPKI DER.
// Bare Ed25519 keys are re-encoded as SPKI so every encoding of a key yields
// the fingerprint its certificate would.
type PublicKey struct {
	Key gocrypto.PublicKey
	Raw []byte
}

// Fingerprint returns the SHA-256 hex of the key's SPKI DER.
func (k PublicKey) Fingerprint() string {
	return Fingerprint(k.Raw)
}

// ParsePublicKey imports a key given as PEM (SPKI or certificate), JWK JSON,
// base64/base64url SPKI DER, or a base64 raw Ed25519 key.
func ParsePublicKey(encoded string) (PublicKey, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return PublicKey{}, fmt.Errorf("%w: empty key", domain.ErrInvalidPublicKey)
	}

	switch {
	case strings.HasPrefix(s, "-----BEGIN"):
		return parsePEMKey(s)
	case strings.HasPrefix(s, "{"):
		return parseJWK(s)
	}

	raw, err := DecodeBase64(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	if len(raw) == ed25519.PublicKeySize {
		key := ed25519.PublicKey(raw)
		der, err := x509.MarshalPKIXPublicKey(key)
		if err != nil {
			return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
		}
		return PublicKey{Key: key, Raw: der}, nil
	}
	return parseSPKI(raw)
}

func parsePEMKey(s string) (PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return PublicKey{}, fmt.Errorf("%w: malformed PEM", domain.ErrInvalidPublicKey)
	}
	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
		}
		return PublicKey{Key: cert.PublicKey, Raw: cert.RawSubjectPublicKeyInfo}, nil
	}
	return parseSPKI(block.Bytes)
}

func parseSPKI(der []byte) (PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	switch key.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
	default:
		return PublicKey{}, fmt.Errorf("%w: unsupported key type %T", domain.ErrInvalidPublicKey, key)
	}
	return PublicKey{Key: key, Raw: der}, nil
}

func parseJWK(s string) (PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON([]byte(s)); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	if !jwk.Valid() {
		return PublicKey{}, fmt.Errorf("%w: invalid JWK", domain.ErrInvalidPublicKey)
	}
	pub := jwk.Public()
	der, err := x509.MarshalPKIXPublicKey(pub.Key)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	return PublicKey{Key: pub.Key, Raw: der}, nil
}

var errNotBase64 = errors.New("not base64")

// DecodeBase64 accepts standard or URL alphabets, padded or not.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errNotBase64
}

// EncodePublicKey renders pub the way manifests carry it: the raw 32 bytes for
// Ed25519, SPKI DER otherwise, base64 encoded.
func EncodePublicKey(pub gocrypto.PublicKey) (string, error) {
	if ed, ok := pub.(ed25519.PublicKey); ok {
		return base64.StdEncoding.EncodeToString(ed), nil
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePrivateKey reads a PEM encoded PKCS#8 or SEC 1 EC private key.
func ParsePrivateKey(data []byte) (gocrypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := k.(gocrypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", k)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// AlgorithmFor picks the manifest algorithm matching priv.
func AlgorithmFor(priv gocrypto.Signer) (domain.SignatureAlgorithm, error) {
	switch k := priv.Public().(type) {
	case *ecdsa.PublicKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return domain.AlgES256, nil
		case 384:
			return domain.AlgES384, nil
		case 521:
			return domain.AlgES512, nil
		}
	case ed25519.PublicKey:
		return domain.AlgEdDSA, nil
	}
	return "", fmt.Errorf("%w: no algorithm for %T", domain.ErrUnsupportedAlgorithm, priv.Public())
}
