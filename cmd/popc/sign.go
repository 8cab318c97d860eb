package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/manifest"
)

func signCommand(args []string, out io.Writer) error {
	fs := newFlagSet("sign", out)
	assetPath := fs.String("asset", "", "Asset file to bind (required)")
	keyPath := fs.String("key", "", "PEM private key, PKCS#8 or SEC 1 (required)")
	deviceID := fs.String("device-id", "", "Enrolled device id to claim")
	seq := fs.Int64("seq", -1, "Per-device capture sequence; omitted when negative")
	hashAlg := fs.String("hash", "sha256", "Content binding hash: sha256 or sha512")
	capturedAt := fs.String("captured-at", "", "Capture time, RFC 3339; now when empty")
	compact := fs.Bool("compact", false, "Sign with a compact JWS instead of a raw signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *assetPath == "" || *keyPath == "" {
		fs.Usage()
		return fmt.Errorf("--asset and --key are required")
	}

	asset, err := os.ReadFile(filepath.Clean(*assetPath))
	if err != nil {
		return fmt.Errorf("read asset: %w", err)
	}
	keyPEM, err := os.ReadFile(filepath.Clean(*keyPath))
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	priv, err := crypto.ParsePrivateKey(keyPEM)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}
	alg, err := crypto.AlgorithmFor(priv)
	if err != nil {
		return err
	}

	claim := manifest.Claim{DeviceID: *deviceID, CapturedAt: time.Now().UTC()}
	if *capturedAt != "" {
		if claim.CapturedAt, err = time.Parse(time.RFC3339, *capturedAt); err != nil {
			return fmt.Errorf("invalid --captured-at: %w", err)
		}
	}
	if *seq >= 0 {
		claim.Sequence = seq
	}

	m, err := manifest.Bind(asset, domain.NormalizeHashAlgorithm(*hashAlg), claim)
	if err != nil {
		return err
	}
	if *compact {
		err = m.SignCompact(alg, priv)
	} else {
		err = m.Sign(alg, priv)
	}
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	data, err := manifest.Serialize(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
