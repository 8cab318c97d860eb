// Package config loads popc configuration from YAML with POPC_ environment
// overrides. Load applies defaults; Validate reports the first problem
// wrapped in ErrInvalidConfig.
package config

import (
	"errors"
	"time"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the root of a popc configuration file.
type Config struct {
	// Version is the config file format version (optional, currently always 1)
	Version int `yaml:"version,omitempty"`

	HTTP        HTTPConfig        `yaml:"http"`
	Storage     StorageConfig     `yaml:"storage"`
	Blob        BlobConfig        `yaml:"blob"`
	Attestation AttestationConfig `yaml:"attestation"`
	Forensics   ForensicsConfig   `yaml:"forensics"`
	Workers     WorkersConfig     `yaml:"workers"`
	Auth        AuthConfig        `yaml:"auth"`
	Policy      PolicyConfig      `yaml:"policy"`
	Log         LogConfig         `yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Address           string        `yaml:"address"` // "host:port" format required
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	TLS               TLSConfig     `yaml:"tls"`
}

// TLSConfig selects the transport security of the HTTP listener.
type TLSConfig struct {
	// Mode is "none" or "spiffe". With "spiffe" the listener serves mTLS
	// using SVIDs from the SPIRE Workload API.
	Mode string `yaml:"mode"`
	// SocketPath is the Workload API socket, e.g. "unix:///tmp/spire-agent/public/api.sock".
	SocketPath string `yaml:"socket_path"`
	// AllowedClientTrustDomain restricts mTLS callers to one trust domain.
	AllowedClientTrustDomain string `yaml:"allowed_client_trust_domain"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // memory | postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `yaml:"migrate"`
}

// BlobConfig selects where verified assets are saved.
type BlobConfig struct {
	Driver  string        `yaml:"driver"` // none | fs | s3
	Dir     string        `yaml:"dir"`
	BaseURL string        `yaml:"base_url"`
	Bucket  string        `yaml:"bucket"`
	Region  string        `yaml:"region"`
	Prefix  string        `yaml:"prefix"`
	URLTTL  time.Duration `yaml:"url_ttl"`
}

// AttestationConfig holds the attestation trust policies.
type AttestationConfig struct {
	RootTrust        string   `yaml:"root_trust"`        // allow_all | reject_unknown
	TrustedRoots     []string `yaml:"trusted_roots"`     // SHA-256 hex fingerprints
	MissingExtension string   `yaml:"missing_extension"` // allow_software | reject
	ParseMode        string   `yaml:"parse_mode"`        // strict | legacy
	AppleTeamID      string   `yaml:"apple_team_id"`
}

// ForensicsConfig tunes the pixel-domain detectors.
type ForensicsConfig struct {
	MinBin           int     `yaml:"min_bin"`
	MoireRatio       float64 `yaml:"moire_ratio"`
	PixelGridRatio   float64 `yaml:"pixel_grid_ratio"`
	GlareLuma        float64 `yaml:"glare_luma"`
	GlareFraction    float64 `yaml:"glare_fraction"`
	DepthMeanMin     float64 `yaml:"depth_mean_min"`
	DepthVarOfVarMax float64 `yaml:"depth_var_of_var_max"`
}

// WorkersConfig sizes the CPU pool. Zero means GOMAXPROCS.
type WorkersConfig struct {
	CPU int `yaml:"cpu"`
}

// AuthConfig lists the API keys accepted by the HTTP boundary.
type AuthConfig struct {
	Keys []APIKey `yaml:"keys"`
}

// APIKey is one bearer credential.
type APIKey struct {
	Name      string   `yaml:"name"`
	Key       string   `yaml:"key"`
	Scopes    []string `yaml:"scopes"`
	PerMinute int      `yaml:"per_minute"` // 0 disables the per-minute limit
	PerDay    int      `yaml:"per_day"`    // 0 disables the per-day limit
}

// PolicyConfig seeds the active policy at startup when Name is set.
type PolicyConfig struct {
	Name                 string `yaml:"name"`
	Version              int    `yaml:"version"`
	MinSecurityLevel     string `yaml:"min_security_level"`
	RejectSoftwareKeys   bool   `yaml:"reject_software_keys"`
	RequireDeviceBinding bool   `yaml:"require_device_binding"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace | debug | info | warn | error
	Format string `yaml:"format"` // json | console
}
