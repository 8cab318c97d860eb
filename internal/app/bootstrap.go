package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/adapters/outbound/blob"
	"github.com/sufield/popc/internal/adapters/outbound/inmemory"
	"github.com/sufield/popc/internal/adapters/outbound/postgres"
	"github.com/sufield/popc/internal/attestation"
	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/forensics"
	"github.com/sufield/popc/internal/logging"
	"github.com/sufield/popc/internal/metrics"
	"github.com/sufield/popc/internal/ports"
)

// Bootstrap wires application components:
// - Validates cfg
// - Opens the store (and migrates Postgres when asked)
// - Opens the blob store
// - Seeds the configured policy
// - Builds the engine on a shared CPU pool
//
// The returned Application owns the store; call Close when done.
func Bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Step 1: Attestation and forensic tuning
	attestOpts, err := AttestationOptions(cfg.Attestation)
	if err != nil {
		return nil, err
	}
	pool := bg.NewPool(cfg.Workers.CPU)
	analyzer := forensics.NewAnalyzer(Thresholds(cfg.Forensics), pool)

	// Step 2: Persistence
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	// Step 3: Blob store (optional)
	blobs, err := openBlobs(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Step 4: SEED active policy (configuration, not runtime)
	if err := SeedPolicy(ctx, store, cfg.Policy); err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New()
	deps := Deps{
		Devices:       store,
		Policies:      store,
		Verifications: store,
		Log:           store,
		Blobs:         blobs,
		Metrics:       m,
		Attestation:   attestation.New(attestOpts),
		Analyzer:      analyzer,
		Pool:          pool,
		Logger:        logging.Component(logger, "engine"),
	}
	engine, err := NewEngine(deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("blob", cfg.Blob.Driver).
		Int("cpu_workers", pool.Size()).
		Msg("engine ready")

	return &Application{
		Config:  cfg,
		Engine:  engine,
		Store:   store,
		Metrics: m,
		Pool:    pool,
		Logger:  logger,
	}, nil
}

// AttestationOptions maps configuration onto verifier options.
func AttestationOptions(c config.AttestationConfig) (attestation.Options, error) {
	opts := attestation.DefaultOptions()
	var err error
	if c.RootTrust != "" {
		if opts.RootTrust, err = attestation.ParseRootTrust(c.RootTrust); err != nil {
			return opts, err
		}
	}
	if c.MissingExtension != "" {
		if opts.MissingExtension, err = attestation.ParseMissingExtension(c.MissingExtension); err != nil {
			return opts, err
		}
	}
	if c.ParseMode != "" {
		if opts.ParseMode, err = attestation.ParseParseMode(c.ParseMode); err != nil {
			return opts, err
		}
	}
	opts.TrustedRoots = c.TrustedRoots
	opts.AppleTeamID = c.AppleTeamID
	return opts, nil
}

// Thresholds maps configuration onto detector thresholds. Zero fields keep
// the calibrated defaults.
func Thresholds(c config.ForensicsConfig) forensics.Thresholds {
	th := forensics.DefaultThresholds()
	if c.MinBin > 0 {
		th.MinBin = c.MinBin
	}
	if c.MoireRatio > 0 {
		th.Moire = c.MoireRatio
	}
	if c.PixelGridRatio > 0 {
		th.PixelGrid = c.PixelGridRatio
	}
	if c.GlareLuma > 0 {
		th.GlareLuma = c.GlareLuma
	}
	if c.GlareFraction > 0 {
		th.GlareFraction = c.GlareFraction
	}
	if c.DepthMeanMin > 0 {
		th.DepthMeanMin = c.DepthMeanMin
	}
	if c.DepthVarOfVarMax > 0 {
		th.DepthVarOfVarMax = c.DepthVarOfVarMax
	}
	return th
}

// SeedPolicy saves the configured policy as the active one. An empty name
// leaves the store untouched. The policy id is derived from name and
// version, so restarts update the same row.
func SeedPolicy(ctx context.Context, store ports.PolicyStore, c config.PolicyConfig) error {
	if c.Name == "" {
		return nil
	}
	rules, err := json.Marshal(domain.PolicyRules{
		MinSecurityLevel:     domain.SecurityLevel(c.MinSecurityLevel),
		RejectSoftwareKeys:   c.RejectSoftwareKeys,
		RequireDeviceBinding: c.RequireDeviceBinding,
	})
	if err != nil {
		return fmt.Errorf("encode policy rules: %w", err)
	}
	policy := &domain.Policy{
		ID:       PolicyID(c.Name, c.Version),
		Name:     c.Name,
		Version:  c.Version,
		Rules:    rules,
		IsActive: true,
	}
	if err := store.SavePolicy(ctx, policy); err != nil {
		return fmt.Errorf("seed policy %s: %w", c.Name, err)
	}
	return nil
}

// PolicyID is the stable id of a named policy version.
func PolicyID(name string, version int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("popc:policy:"+name+":"+strconv.Itoa(version))).String()
}

func openStore(ctx context.Context, c config.StorageConfig) (ports.Store, error) {
	switch c.Driver {
	case "postgres":
		store, err := postgres.Open(ctx, c.DSN, c.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if c.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return store, nil
	case "memory", "":
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: storage: unknown driver %q", config.ErrInvalidConfig, c.Driver)
	}
}

// openBlobs returns nil when blobs are disabled.
func openBlobs(ctx context.Context, c config.BlobConfig) (ports.BlobStore, error) {
	switch c.Driver {
	case "fs":
		return blob.NewFS(c.Dir, c.BaseURL)
	case "s3":
		return blob.NewS3(ctx, blob.S3Options{
			Bucket: c.Bucket,
			Region: c.Region,
			Prefix: c.Prefix,
			URLTTL: c.URLTTL,
		})
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: blob: unknown driver %q", config.ErrInvalidConfig, c.Driver)
	}
}
