package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/sufield/popc/internal/domain"
)

// Digest returns the lower-case hex digest of data under alg.
func Digest(alg domain.HashAlgorithm, data []byte) (string, error) {
	switch domain.NormalizeHashAlgorithm(string(alg)) {
	case domain.HashSHA256:
		return SHA256Hex(data), nil
	case domain.HashSHA512:
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedHash, alg)
	}
}

// HashAsset computes the content identity of an asset.
func HashAsset(alg domain.HashAlgorithm, data []byte) (domain.AssetHash, error) {
	norm := domain.NormalizeHashAlgorithm(string(alg))
	h, err := Digest(norm, data)
	if err != nil {
		return domain.AssetHash{}, err
	}
	return domain.AssetHash{Algorithm: norm, Hex: h}, nil
}

// SHA256Hex returns the lower-case hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint is the SHA-256 hex of a DER structure (certificate or SPKI).
func Fingerprint(der []byte) string {
	return SHA256Hex(der)
}
