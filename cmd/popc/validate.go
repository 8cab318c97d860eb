package main

import (
	"fmt"
	"io"

	"github.com/sufield/popc/internal/config"
)

func validateCommand(args []string, out io.Writer) error {
	fs := newFlagSet("validate", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("config file path required")
	}
	path := fs.Arg(0)

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "✓ Valid configuration: %s\n", path)
	fmt.Fprintln(out, "\nHTTP settings:")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.HTTP.Address)
	if cfg.HTTP.TLS.Mode == "spiffe" {
		fmt.Fprintf(out, "  Transport: mTLS via SPIRE (%s)\n", cfg.HTTP.TLS.SocketPath)
		fmt.Fprintf(out, "    Allowed client trust domain: %s\n", cfg.HTTP.TLS.AllowedClientTrustDomain)
	} else {
		fmt.Fprintln(out, "  Transport: plain HTTP")
	}
	if len(cfg.Auth.Keys) == 0 {
		fmt.Fprintln(out, "  API keys: none (⚠ every route is open)")
	} else {
		fmt.Fprintf(out, "  API keys: %d\n", len(cfg.Auth.Keys))
	}

	fmt.Fprintln(out, "\nStorage:")
	fmt.Fprintf(out, "  Driver: %s\n", cfg.Storage.Driver)
	fmt.Fprintf(out, "  Blob driver: %s\n", cfg.Blob.Driver)

	fmt.Fprintln(out, "\nAttestation:")
	fmt.Fprintf(out, "  Root trust: %s\n", cfg.Attestation.RootTrust)
	fmt.Fprintf(out, "  Parse mode: %s\n", cfg.Attestation.ParseMode)

	if cfg.Policy.Name != "" {
		fmt.Fprintf(out, "\nSeeded policy: %s v%d\n", cfg.Policy.Name, cfg.Policy.Version)
	}
	return nil
}
