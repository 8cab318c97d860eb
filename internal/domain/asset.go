package domain

import "strings"

// HashAlgorithm names a content digest algorithm.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
)

// NormalizeHashAlgorithm maps the spellings found in manifests
// ("SHA-256", "sha_256", "SHA256") onto the canonical names.
// Unknown names are returned lower-cased and unchanged otherwise.
func NormalizeHashAlgorithm(name string) HashAlgorithm {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "", "_", "").Replace(n)
	switch n {
	case "", "sha256":
		return HashSHA256
	case "sha512":
		return HashSHA512
	default:
		return HashAlgorithm(n)
	}
}

// AssetHash identifies an asset by the digest of its bytes.
type AssetHash struct {
	Algorithm HashAlgorithm `json:"algorithm"`
	Hex       string        `json:"hex"`
}

// String returns "alg:hex".
func (h AssetHash) String() string {
	return string(h.Algorithm) + ":" + h.Hex
}
