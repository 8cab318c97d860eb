package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// Verify checks asset against the manifest: the content binding and the
// signature are evaluated independently so both failures are reported.
func Verify(asset, manifestBytes []byte) domain.ManifestCheck {
	d := decode(manifestBytes)
	return check(asset, d)
}

// Inspect parses the manifest once and checks asset against it. The check is
// only meaningful when the parsed manifest is valid.
func Inspect(asset, manifestBytes []byte) (*domain.ParsedManifest, domain.ManifestCheck) {
	d := decode(manifestBytes)
	return d.manifest, check(asset, d)
}

func check(asset []byte, d decoded) domain.ManifestCheck {
	res := domain.ManifestCheck{Errors: []string{}}
	if !d.formatOK {
		res.Errors = append(res.Errors, d.manifest.Errors...)
		return res
	}
	pm := d.manifest

	if pm.ContentBinding.Present() {
		got, err := crypto.Digest(pm.ContentBinding.Algorithm, asset)
		res.ContentBindingMatch = err == nil && got == pm.ContentBinding.Hash
		if !res.ContentBindingMatch {
			res.Errors = append(res.Errors, domain.CodeContentBindingMismatch)
		}
	} else {
		res.Errors = append(res.Errors, domain.CodeManifestBindingMissing)
	}

	res.SignatureValid = verifySignature(pm.Signature, d.assertions) == nil
	if !res.SignatureValid {
		res.Errors = append(res.Errors, domain.CodeSignatureInvalid)
	}

	res.Valid = res.ContentBindingMatch && res.SignatureValid
	return res
}

func verifySignature(sig domain.Signature, assertions json.RawMessage) error {
	if !sig.Algorithm.Supported() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, sig.Algorithm)
	}
	key, err := crypto.ParsePublicKey(sig.PublicKey)
	if err != nil {
		return err
	}
	payload, err := SigningPayload(assertions)
	if err != nil {
		return err
	}

	if crypto.IsCompactToken(sig.Value) {
		signed, err := crypto.VerifyCompact(sig.Algorithm, key.Key, sig.Value)
		if err != nil {
			return err
		}
		canonical, err := jcs.Transform(signed)
		if err != nil || !bytes.Equal(canonical, payload) {
			return fmt.Errorf("%w: token payload does not match assertions", crypto.ErrSignatureMismatch)
		}
		return nil
	}

	raw, err := crypto.DecodeBase64(sig.Value)
	if err != nil {
		return fmt.Errorf("%w: signature value is not base64", crypto.ErrSignatureMismatch)
	}
	digest := sha256.Sum256(payload)
	return crypto.VerifyRaw(sig.Algorithm, key.Key, digest[:], raw)
}

// SigningPayload returns the JCS canonical form of an assertions object with
// any "signature" member removed.
func SigningPayload(assertions json.RawMessage) ([]byte, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(assertions, &members); err != nil {
		return nil, fmt.Errorf("decode assertions: %w", err)
	}
	delete(members, "signature")
	raw, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("encode assertions: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize assertions: %w", err)
	}
	return canonical, nil
}

// SigningDigest is SHA-256 over SigningPayload, the message raw signatures cover.
func SigningDigest(assertions json.RawMessage) ([]byte, error) {
	payload, err := SigningPayload(assertions)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	return sum[:], nil
}
