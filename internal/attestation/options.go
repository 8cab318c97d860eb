package attestation

import (
	"fmt"
	"strings"
	"time"
)

// RootTrust decides how chain roots are trusted.
type RootTrust int

const (
	RootTrustAllowAll RootTrust = iota
	RootTrustRejectUnknown
)

// MissingExtension decides what an Android leaf without the attestation
// extension means.
type MissingExtension int

const (
	MissingExtensionAllowSoftware MissingExtension = iota
	MissingExtensionReject
)

// ParseMode selects how attestation payloads are interpreted.
type ParseMode int

const (
	ParseModeStrict ParseMode = iota
	ParseModeLegacy
)

// Options configures a Verifier.
type Options struct {
	RootTrust        RootTrust
	TrustedRoots     []string // SHA-256 hex fingerprints of accepted roots
	MissingExtension MissingExtension
	ParseMode        ParseMode
	// AppleTeamID is used for the rpIdHash check when the leaf certificate
	// does not name a team.
	AppleTeamID string
	Now         func() time.Time
}

// DefaultOptions trusts any root, accepts software keys and parses strictly.
func DefaultOptions() Options {
	return Options{
		RootTrust:        RootTrustAllowAll,
		MissingExtension: MissingExtensionAllowSoftware,
		ParseMode:        ParseModeStrict,
		Now:              time.Now,
	}
}

// ParseRootTrust maps a configuration value to a RootTrust.
func ParseRootTrust(s string) (RootTrust, error) {
	switch normalize(s) {
	case "", "allow_all":
		return RootTrustAllowAll, nil
	case "reject_unknown":
		return RootTrustRejectUnknown, nil
	}
	return 0, fmt.Errorf("unknown root trust policy %q", s)
}

// ParseMissingExtension maps a configuration value to a MissingExtension.
func ParseMissingExtension(s string) (MissingExtension, error) {
	switch normalize(s) {
	case "", "allow_software":
		return MissingExtensionAllowSoftware, nil
	case "reject":
		return MissingExtensionReject, nil
	}
	return 0, fmt.Errorf("unknown missing extension policy %q", s)
}

// ParseParseMode maps a configuration value to a ParseMode.
func ParseParseMode(s string) (ParseMode, error) {
	switch normalize(s) {
	case "", "strict":
		return ParseModeStrict, nil
	case "legacy":
		return ParseModeLegacy, nil
	}
	return 0, fmt.Errorf("unknown parse mode %q", s)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func (r RootTrust) String() string {
	if r == RootTrustRejectUnknown {
		return "reject_unknown"
	}
	return "allow_all"
}

func (m MissingExtension) String() string {
	if m == MissingExtensionReject {
		return "reject"
	}
	return "allow_software"
}

func (m ParseMode) String() string {
	if m == ParseModeLegacy {
		return "legacy"
	}
	return "strict"
}
