package config

import "time"

// Defaults. The listener binds to loopback unless an address is configured.
const (
	DefaultHTTPAddress       = "127.0.0.1:8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultMaxBodyBytes      = 32 << 20
	DefaultTLSMode           = "none"
	DefaultStorageDriver     = "memory"
	DefaultMaxOpenConns      = 10
	DefaultBlobDriver        = "none"
	DefaultBlobURLTTL        = 15 * time.Minute
	DefaultRootTrust         = "allow_all"
	DefaultMissingExtension  = "allow_software"
	DefaultParseMode         = "strict"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
)

// Forensic detector defaults.
const (
	DefaultMinBin           = 10
	DefaultMoireRatio       = 15
	DefaultPixelGridRatio   = 30
	DefaultGlareLuma        = 250
	DefaultGlareFraction    = 0.01
	DefaultDepthMeanMin     = 10
	DefaultDepthVarOfVarMax = 100
)

// applyDefaults sets default values for unspecified configuration
func applyDefaults(cfg *Config) {
	h := &cfg.HTTP
	setDefault(&h.Address, DefaultHTTPAddress)
	setDefault(&h.ReadHeaderTimeout, DefaultReadHeaderTimeout)
	setDefault(&h.ReadTimeout, DefaultReadTimeout)
	setDefault(&h.WriteTimeout, DefaultWriteTimeout)
	setDefault(&h.IdleTimeout, DefaultIdleTimeout)
	setDefault(&h.ShutdownTimeout, DefaultShutdownTimeout)
	setDefault(&h.MaxBodyBytes, DefaultMaxBodyBytes)
	setDefault(&h.TLS.Mode, DefaultTLSMode)

	setDefault(&cfg.Storage.Driver, DefaultStorageDriver)
	setDefault(&cfg.Storage.MaxOpenConns, DefaultMaxOpenConns)

	setDefault(&cfg.Blob.Driver, DefaultBlobDriver)
	setDefault(&cfg.Blob.URLTTL, DefaultBlobURLTTL)

	setDefault(&cfg.Attestation.RootTrust, DefaultRootTrust)
	setDefault(&cfg.Attestation.MissingExtension, DefaultMissingExtension)
	setDefault(&cfg.Attestation.ParseMode, DefaultParseMode)

	f := &cfg.Forensics
	setDefault(&f.MinBin, DefaultMinBin)
	setDefault(&f.MoireRatio, DefaultMoireRatio)
	setDefault(&f.PixelGridRatio, DefaultPixelGridRatio)
	setDefault(&f.GlareLuma, DefaultGlareLuma)
	setDefault(&f.GlareFraction, DefaultGlareFraction)
	setDefault(&f.DepthMeanMin, DefaultDepthMeanMin)
	setDefault(&f.DepthVarOfVarMax, DefaultDepthVarOfVarMax)

	if cfg.Policy.Name != "" {
		setDefault(&cfg.Policy.Version, 1)
	}

	setDefault(&cfg.Log.Level, DefaultLogLevel)
	setDefault(&cfg.Log.Format, DefaultLogFormat)
}

func setDefault[T comparable](dst *T, def T) {
	var zero T
	if *dst == zero {
		*dst = def
	}
}
