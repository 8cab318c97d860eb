package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
)

// Scopes an API key may carry.
const (
	ScopeVerify   = "verify"
	ScopeEnroll   = "enroll"
	ScopeEvidence = "evidence"
	ScopeAdmin    = "admin"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		check func() error
	}{
		{"http", c.HTTP.Validate},
		{"storage", c.Storage.Validate},
		{"blob", c.Blob.Validate},
		{"attestation", c.Attestation.Validate},
		{"forensics", c.Forensics.Validate},
		{"workers", c.Workers.Validate},
		{"auth", c.Auth.Validate},
		{"policy", c.Policy.Validate},
		{"log", c.Log.Validate},
	}
	for _, s := range sections {
		if err := s.check(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, s.name, err)
		}
	}
	return nil
}

// Validate checks if HTTP configuration is valid.
func (h *HTTPConfig) Validate() error {
	if strings.TrimSpace(h.Address) == "" {
		return fmt.Errorf("address is required")
	}
	_, portStr, err := net.SplitHostPort(h.Address)
	if err != nil {
		return fmt.Errorf("address %q must be host:port format: %w", h.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %q (must be 0-65535)", portStr)
	}

	// Validate timeouts are non-negative
	for name, d := range map[string]int64{
		"read_header_timeout": int64(h.ReadHeaderTimeout),
		"read_timeout":        int64(h.ReadTimeout),
		"write_timeout":       int64(h.WriteTimeout),
		"idle_timeout":        int64(h.IdleTimeout),
		"shutdown_timeout":    int64(h.ShutdownTimeout),
	} {
		if d < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	if h.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", h.MaxBodyBytes)
	}
	return h.TLS.Validate()
}

// Validate checks if TLS configuration is valid.
func (t *TLSConfig) Validate() error {
	switch t.Mode {
	case "none":
		return nil
	case "spiffe":
	default:
		return fmt.Errorf("invalid tls.mode %q (expected: none, spiffe)", t.Mode)
	}
	if t.SocketPath != "" && !strings.HasPrefix(t.SocketPath, "unix://") {
		return fmt.Errorf("tls.socket_path must start with 'unix://', got %q", t.SocketPath)
	}
	if t.AllowedClientTrustDomain == "" {
		return fmt.Errorf("tls.mode=spiffe requires tls.allowed_client_trust_domain")
	}
	if _, err := spiffeid.TrustDomainFromString(t.AllowedClientTrustDomain); err != nil {
		return fmt.Errorf("invalid tls.allowed_client_trust_domain %q: %w", t.AllowedClientTrustDomain, err)
	}
	return nil
}

// Validate checks if storage configuration is valid.
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("driver=postgres requires dsn")
		}
	default:
		return fmt.Errorf("invalid driver %q (expected: memory, postgres)", s.Driver)
	}
	if s.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns must be non-negative, got %d", s.MaxOpenConns)
	}
	return nil
}

// Validate checks if blob configuration is valid.
func (b *BlobConfig) Validate() error {
	switch b.Driver {
	case "none":
	case "fs":
		if strings.TrimSpace(b.Dir) == "" {
			return fmt.Errorf("driver=fs requires dir")
		}
	case "s3":
		if strings.TrimSpace(b.Bucket) == "" {
			return fmt.Errorf("driver=s3 requires bucket")
		}
		if b.URLTTL <= 0 {
			return fmt.Errorf("url_ttl must be positive, got %v", b.URLTTL)
		}
	default:
		return fmt.Errorf("invalid driver %q (expected: none, fs, s3)", b.Driver)
	}
	return nil
}

// Validate checks if attestation configuration is valid.
func (a *AttestationConfig) Validate() error {
	switch norm(a.RootTrust) {
	case "allow_all":
	case "reject_unknown":
		if len(a.TrustedRoots) == 0 {
			return fmt.Errorf("root_trust=reject_unknown requires trusted_roots")
		}
	default:
		return fmt.Errorf("invalid root_trust %q (expected: allow_all, reject_unknown)", a.RootTrust)
	}
	for i, fp := range a.TrustedRoots {
		if len(fp) != 64 || strings.Trim(strings.ToLower(fp), "0123456789abcdef") != "" {
			return fmt.Errorf("trusted_roots[%d] must be a SHA-256 hex fingerprint, got %q", i, fp)
		}
	}
	switch norm(a.MissingExtension) {
	case "allow_software", "reject":
	default:
		return fmt.Errorf("invalid missing_extension %q (expected: allow_software, reject)", a.MissingExtension)
	}
	switch norm(a.ParseMode) {
	case "strict", "legacy":
	default:
		return fmt.Errorf("invalid parse_mode %q (expected: strict, legacy)", a.ParseMode)
	}
	return nil
}

// Validate checks if forensic thresholds are valid.
func (f *ForensicsConfig) Validate() error {
	if f.MinBin < 1 || f.MinBin >= 256 {
		return fmt.Errorf("min_bin must be in [1, 256), got %d", f.MinBin)
	}
	if f.MoireRatio <= 0 || f.PixelGridRatio <= 0 {
		return fmt.Errorf("moire_ratio and pixel_grid_ratio must be positive")
	}
	if f.PixelGridRatio < f.MoireRatio {
		return fmt.Errorf("pixel_grid_ratio (%v) must not be below moire_ratio (%v)", f.PixelGridRatio, f.MoireRatio)
	}
	if f.GlareLuma <= 0 || f.GlareLuma > 255 {
		return fmt.Errorf("glare_luma must be in (0, 255], got %v", f.GlareLuma)
	}
	if f.GlareFraction <= 0 || f.GlareFraction >= 1 {
		return fmt.Errorf("glare_fraction must be in (0, 1), got %v", f.GlareFraction)
	}
	if f.DepthMeanMin < 0 || f.DepthVarOfVarMax <= 0 {
		return fmt.Errorf("depth thresholds must be positive")
	}
	return nil
}

// Validate checks if worker configuration is valid.
func (w *WorkersConfig) Validate() error {
	if w.CPU < 0 {
		return fmt.Errorf("cpu must be non-negative, got %d", w.CPU)
	}
	return nil
}

// Validate checks if the API keys are valid.
func (a *AuthConfig) Validate() error {
	names := make(map[string]bool, len(a.Keys))
	keys := make(map[string]bool, len(a.Keys))
	for i, k := range a.Keys {
		if k.Name == "" {
			return fmt.Errorf("keys[%d].name is required", i)
		}
		if len(k.Key) < 16 {
			return fmt.Errorf("keys[%d] (%s): key must be at least 16 characters", i, k.Name)
		}
		if names[k.Name] {
			return fmt.Errorf("keys[%d]: duplicate name %q", i, k.Name)
		}
		if keys[k.Key] {
			return fmt.Errorf("keys[%d] (%s): duplicate key", i, k.Name)
		}
		names[k.Name], keys[k.Key] = true, true
		if len(k.Scopes) == 0 {
			return fmt.Errorf("keys[%d] (%s): at least one scope is required", i, k.Name)
		}
		for _, s := range k.Scopes {
			switch s {
			case ScopeVerify, ScopeEnroll, ScopeEvidence, ScopeAdmin:
			default:
				return fmt.Errorf("keys[%d] (%s): unknown scope %q", i, k.Name, s)
			}
		}
		if k.PerMinute < 0 {
			return fmt.Errorf("keys[%d] (%s): per_minute must be non-negative", i, k.Name)
		}
		if k.PerDay < 0 {
			return fmt.Errorf("keys[%d] (%s): per_day must be non-negative", i, k.Name)
		}
	}
	return nil
}

// Validate checks if the seeded policy is valid.
func (p *PolicyConfig) Validate() error {
	switch p.MinSecurityLevel {
	case "", "software", "tee", "strongbox":
	default:
		return fmt.Errorf("invalid min_security_level %q (expected: software, tee, strongbox)", p.MinSecurityLevel)
	}
	if p.Name == "" && (p.MinSecurityLevel != "" || p.RejectSoftwareKeys || p.RequireDeviceBinding) {
		return fmt.Errorf("policy rules require a name")
	}
	return nil
}

// Validate checks if log configuration is valid.
func (l *LogConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid format %q (expected: json, console)", l.Format)
	}
	return nil
}

func norm(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
