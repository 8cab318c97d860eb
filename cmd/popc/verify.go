package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/logging"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/pkg/popcclient"
)

func verifyCommand(args []string, out io.Writer) error {
	fs := newFlagSet("verify", out)
	configPath := fs.String("config", "", "Optional popc.yaml for policy and detector tuning")
	assetPath := fs.String("asset", "", "Asset file to verify (required)")
	manifestPath := fs.String("manifest", "", "Manifest file")
	contentType := fs.String("content-type", "", "Asset media type; detected when empty")
	server := fs.String("server", "", "Verify against a running popc server instead of in-process")
	apiKey := fs.String("api-key", os.Getenv("POPC_API_KEY"), "Bearer key for --server")
	serverID := fs.String("server-id", "", "Expected server SPIFFE ID; enables mTLS for --server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *assetPath == "" {
		fs.Usage()
		return fmt.Errorf("--asset is required")
	}

	req, err := readVerifyRequest(*assetPath, *manifestPath, *contentType)
	if err != nil {
		return err
	}
	ctx := context.Background()

	var outcome *ports.VerificationOutcome
	if *server != "" {
		outcome, err = verifyRemote(ctx, popcclient.Config{BaseURL: *server, APIKey: *apiKey, ServerID: *serverID}, req)
	} else {
		outcome, err = verifyLocal(ctx, *configPath, req)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}

func verifyRemote(ctx context.Context, cfg popcclient.Config, req ports.VerifyRequest) (*ports.VerificationOutcome, error) {
	client, err := popcclient.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Verify(ctx, req)
}

// verifyLocal runs the engine in-process over the memory store.
func verifyLocal(ctx context.Context, configPath string, req ports.VerifyRequest) (*ports.VerificationOutcome, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// One-shot runs keep nothing.
	cfg.Storage = config.StorageConfig{Driver: "memory"}
	cfg.Blob = config.BlobConfig{Driver: "none"}

	logger := zerolog.Nop()
	if cfg.Log.Level == "debug" || cfg.Log.Level == "trace" {
		if logger, err = logging.New(cfg.Log, os.Stderr); err != nil {
			return nil, err
		}
	}

	application, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Close()
	return application.Engine.Verify(ctx, req)
}

func readVerifyRequest(assetPath, manifestPath, contentType string) (ports.VerifyRequest, error) {
	asset, err := os.ReadFile(filepath.Clean(assetPath))
	if err != nil {
		return ports.VerifyRequest{}, fmt.Errorf("read asset: %w", err)
	}
	req := ports.VerifyRequest{Asset: asset, ContentType: contentType}
	if manifestPath != "" {
		if req.Manifest, err = os.ReadFile(filepath.Clean(manifestPath)); err != nil {
			return req, fmt.Errorf("read manifest: %w", err)
		}
	}
	return req, nil
}
