package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POPC_"

// applyEnvOverrides overrides config values with environment variables if set
// Returns error for invalid environment variable values to fail fast
func applyEnvOverrides(cfg *Config) error {
	setString("HTTP_ADDRESS", &cfg.HTTP.Address)
	setString("HTTP_TLS_MODE", &cfg.HTTP.TLS.Mode)
	setString("HTTP_TLS_SOCKET_PATH", &cfg.HTTP.TLS.SocketPath)
	setString("HTTP_TLS_ALLOWED_CLIENT_TRUST_DOMAIN", &cfg.HTTP.TLS.AllowedClientTrustDomain)
	for name, dst := range map[string]*time.Duration{
		"HTTP_READ_HEADER_TIMEOUT": &cfg.HTTP.ReadHeaderTimeout,
		"HTTP_READ_TIMEOUT":        &cfg.HTTP.ReadTimeout,
		"HTTP_WRITE_TIMEOUT":       &cfg.HTTP.WriteTimeout,
		"HTTP_IDLE_TIMEOUT":        &cfg.HTTP.IdleTimeout,
		"HTTP_SHUTDOWN_TIMEOUT":    &cfg.HTTP.ShutdownTimeout,
		"BLOB_URL_TTL":             &cfg.Blob.URLTTL,
	} {
		if err := setDuration(name, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("HTTP_MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sHTTP_MAX_BODY_BYTES %q: %w", EnvPrefix, v, err)
		}
		cfg.HTTP.MaxBodyBytes = n
	}

	// Storage and blobs
	setString("STORAGE_DRIVER", &cfg.Storage.Driver)
	setString("STORAGE_DSN", &cfg.Storage.DSN)
	if err := setBool("STORAGE_MIGRATE", &cfg.Storage.Migrate); err != nil {
		return err
	}
	setString("BLOB_DRIVER", &cfg.Blob.Driver)
	setString("BLOB_DIR", &cfg.Blob.Dir)
	setString("BLOB_BASE_URL", &cfg.Blob.BaseURL)
	setString("BLOB_BUCKET", &cfg.Blob.Bucket)
	setString("BLOB_REGION", &cfg.Blob.Region)
	setString("BLOB_PREFIX", &cfg.Blob.Prefix)

	// Attestation policies
	setString("ATTESTATION_ROOT_TRUST", &cfg.Attestation.RootTrust)
	setString("ATTESTATION_MISSING_EXTENSION", &cfg.Attestation.MissingExtension)
	setString("ATTESTATION_PARSE_MODE", &cfg.Attestation.ParseMode)
	setString("ATTESTATION_APPLE_TEAM_ID", &cfg.Attestation.AppleTeamID)
	// Support comma-separated list for trusted roots
	if v, ok := lookup("ATTESTATION_TRUSTED_ROOTS"); ok {
		cfg.Attestation.TrustedRoots = splitList(v)
	}

	if v, ok := lookup("WORKERS_CPU"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWORKERS_CPU %q: %w", EnvPrefix, v, err)
		}
		cfg.Workers.CPU = n
	}

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	return nil
}

func lookup(name string) (string, bool) {
	v := os.Getenv(EnvPrefix + name)
	return v, v != ""
}

func setString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setDuration(name string, dst *time.Duration) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
	}
	*dst = d
	return nil
}

func setBool(name string, dst *bool) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := parseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
	}
	*dst = b
	return nil
}

// splitList splits a comma-separated value and trims each element.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool parses boolean environment variables
// Accepts: "true", "1", "yes", "on" for true; "false", "0", "no", "off" for false
func parseBool(value string) (bool, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}
