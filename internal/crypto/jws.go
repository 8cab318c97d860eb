package crypto

import (
	gocrypto "crypto"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/sufield/popc/internal/domain"
)

// IsCompactToken reports whether value looks like a compact JWS
// (three dot-separated segments).
func IsCompactToken(value string) bool {
	return strings.Contains(value, ".")
}

// VerifyCompact verifies a compact JWS against pub. The protected header must
// declare alg; any other algorithm is rejected by the parser. Returns the
// verified payload.
func VerifyCompact(alg domain.SignatureAlgorithm, pub gocrypto.PublicKey, token string) ([]byte, error) {
	if !alg.Supported() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, alg)
	}
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: compact token must have three segments", ErrSignatureMismatch)
	}
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(alg)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	return payload, nil
}

// SignCompact produces a compact JWS over payload. Used by tooling that
// mints manifests.
func SignCompact(alg domain.SignatureAlgorithm, priv gocrypto.Signer, payload []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: priv}, nil)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return obj.CompactSerialize()
}
