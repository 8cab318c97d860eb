package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
)

func parseConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestBootstrap_MemoryWithPolicyAndBlobs(t *testing.T) {
	dir := t.TempDir()
	cfg := parseConfig(t, `
storage:
  driver: memory
blob:
  driver: fs
  dir: `+dir+`
  base_url: https://media.example.com
policy:
  name: default
  version: 3
  require_device_binding: true
`)

	a, err := app.Bootstrap(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	p, err := a.Store.ActivePolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, app.PolicyID("default", 3), p.ID)
	rules, err := p.DecodeRules()
	require.NoError(t, err)
	assert.True(t, rules.RequireDeviceBinding)

	asset := []byte("photo")
	out, err := a.Engine.Verify(context.Background(), ports.VerifyRequest{
		Asset:    asset,
		Manifest: signedManifest(t, asset, newKey(t), "", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInvalid, out.Verdict)
	assert.Equal(t, []string{domain.CodeDeviceBindingRequired}, out.Reasons)

	dev := enrollVia(t, a.Engine)
	out, err = a.Engine.Verify(context.Background(), ports.VerifyRequest{
		Asset:    asset,
		Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(1)),
	})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictVerified, out.Verdict)
	assert.Equal(t, "https://media.example.com/"+crypto.SHA256Hex(asset), out.AssetURL)

	saved, err := os.ReadFile(filepath.Join(dir, crypto.SHA256Hex(asset)))
	require.NoError(t, err)
	assert.Equal(t, asset, saved)
}

func TestBootstrap_RestartKeepsPolicyID(t *testing.T) {
	cfg := parseConfig(t, "policy:\n  name: default\n  version: 1\n")
	a, err := app.Bootstrap(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	// Seeding again updates the same row instead of adding a second policy.
	require.NoError(t, app.SeedPolicy(context.Background(), a.Store, cfg.Policy))
	p, err := a.Store.ActivePolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, app.PolicyID("default", 1), p.ID)
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	cfg := parseConfig(t, "storage:\n  driver: postgres\n")

	_, err := app.Bootstrap(context.Background(), cfg, zerolog.Nop())
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = app.Bootstrap(context.Background(), nil, zerolog.Nop())
	require.Error(t, err)
}

func TestPolicyID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, app.PolicyID("default", 1), app.PolicyID("default", 1))
	assert.NotEqual(t, app.PolicyID("default", 1), app.PolicyID("default", 2))
	assert.NotEqual(t, app.PolicyID("default", 1), app.PolicyID("strict", 1))
}

func TestSeedPolicy_EmptyNameIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.NoError(t, app.SeedPolicy(context.Background(), h.store, config.PolicyConfig{}))
	_, err := h.store.ActivePolicy(context.Background())
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestThresholds_ZeroKeepsDefaults(t *testing.T) {
	t.Parallel()
	th := app.Thresholds(config.ForensicsConfig{GlareLuma: 240})
	assert.Equal(t, 240.0, th.GlareLuma)
	assert.Equal(t, config.DefaultMinBin, th.MinBin)
}

func TestAttestationOptions_RejectsUnknownMode(t *testing.T) {
	t.Parallel()
	_, err := app.AttestationOptions(config.AttestationConfig{RootTrust: "sometimes"})
	require.Error(t, err)
}

// enrollVia enrolls a fresh Android device through engine.
func enrollVia(t *testing.T, engine *app.Engine) device {
	t.Helper()
	chain := androidChain(t, 1)
	out, err := engine.Enroll(context.Background(), ports.EnrollRequest{
		Platform:  domain.PlatformAndroid,
		ChainPEM:  chain.PEM,
		Challenge: enrollChallenge,
	})
	require.NoError(t, err)
	require.True(t, out.Accepted, "enrollment errors: %v", out.Errors)
	return device{ID: out.DeviceID, Chain: chain}
}
