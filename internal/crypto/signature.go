package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"math/big"

	"github.com/sufield/popc/internal/domain"
)

// ErrSignatureMismatch indicates a well-formed signature that does not verify.
var ErrSignatureMismatch = errors.New("signature does not verify")

// curveFor returns the curve and digest the JOSE algorithm binds together.
func curveFor(alg domain.SignatureAlgorithm) (elliptic.Curve, func() hash.Hash, error) {
	switch alg {
	case domain.AlgES256:
		return elliptic.P256(), sha256.New, nil
	case domain.AlgES384:
		return elliptic.P384(), sha512.New384, nil
	case domain.AlgES512:
		return elliptic.P521(), sha512.New, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, alg)
	}
}

// VerifyRaw checks sig over message. For ES* the message is hashed with the
// algorithm's digest and sig may be fixed-width r||s or ASN.1 DER. For EdDSA
// the message is verified directly with Ed25519.
func VerifyRaw(alg domain.SignatureAlgorithm, pub gocrypto.PublicKey, message, sig []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: verifier panic: %v", ErrSignatureMismatch, r)
		}
	}()

	if alg == domain.AlgEdDSA {
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: EdDSA requires an Ed25519 key, got %T", domain.ErrInvalidPublicKey, pub)
		}
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(edPub, message, sig) {
			return ErrSignatureMismatch
		}
		return nil
	}

	curve, newHash, err := curveFor(alg)
	if err != nil {
		return err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: %s requires an ECDSA key, got %T", domain.ErrInvalidPublicKey, alg, pub)
	}
	if ecPub.Curve != curve {
		return fmt.Errorf("%w: %s requires curve %s", domain.ErrInvalidPublicKey, alg, curve.Params().Name)
	}

	h := newHash()
	h.Write(message)
	digest := h.Sum(nil)

	size := (curve.Params().BitSize + 7) / 8
	if len(sig) == 2*size {
		r := new(big.Int).SetBytes(sig[:size])
		s := new(big.Int).SetBytes(sig[size:])
		if ecdsa.Verify(ecPub, digest, r, s) {
			return nil
		}
		return ErrSignatureMismatch
	}
	if ecdsa.VerifyASN1(ecPub, digest, sig) {
		return nil
	}
	return ErrSignatureMismatch
}

// SignRaw produces a signature VerifyRaw accepts: fixed-width r||s for ES*,
// a plain Ed25519 signature for EdDSA.
func SignRaw(alg domain.SignatureAlgorithm, priv gocrypto.Signer, message []byte) ([]byte, error) {
	if alg == domain.AlgEdDSA {
		edPriv, ok := priv.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: EdDSA requires an Ed25519 key", domain.ErrInvalidPublicKey)
		}
		return ed25519.Sign(edPriv, message), nil
	}

	curve, newHash, err := curveFor(alg)
	if err != nil {
		return nil, err
	}
	ecPriv, ok := priv.(*ecdsa.PrivateKey)
	if !ok || ecPriv.Curve != curve {
		return nil, fmt.Errorf("%w: %s requires a %s key", domain.ErrInvalidPublicKey, alg, curve.Params().Name)
	}

	h := newHash()
	h.Write(message)
	r, s, err := ecdsa.Sign(rand.Reader, ecPriv, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	size := (curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}
