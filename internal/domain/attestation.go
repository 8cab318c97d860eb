package domain

import "time"

// Platform names the attestation scheme used at enrollment.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformApple   Platform = "apple"
)

// SecurityLevel is where a signing key lives.
type SecurityLevel string

const (
	SecuritySoftware  SecurityLevel = "software"
	SecurityTEE       SecurityLevel = "tee"
	SecurityStrongBox SecurityLevel = "strongbox"
	SecurityUnknown   SecurityLevel = "unknown"
)

// Rank orders levels for policy comparison: unknown < software < tee < strongbox.
func (l SecurityLevel) Rank() int {
	switch l {
	case SecuritySoftware:
		return 1
	case SecurityTEE:
		return 2
	case SecurityStrongBox:
		return 3
	default:
		return 0
	}
}

// BootState is the Android verified boot state.
type BootState string

const (
	BootVerified   BootState = "VERIFIED"
	BootSelfSigned BootState = "SELF_SIGNED"
	BootUnverified BootState = "UNVERIFIED"
	BootUnknown    BootState = "UNKNOWN"
)

// CertificateInfo is derived from a parsed certificate; raw bytes are not kept.
type CertificateInfo struct {
	FingerprintSHA256 string    `json:"fingerprintSha256"`
	Subject           string    `json:"subject"`
	Issuer            string    `json:"issuer"`
	NotBefore         time.Time `json:"notBefore"`
	NotAfter          time.Time `json:"notAfter"`
}

// ValidAt reports whether t falls inside [NotBefore, NotAfter].
func (c CertificateInfo) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// Attestation is the platform-specific part of an attestation result.
// Exactly one of AndroidAttestation, AppleAttestation or SoftwareKeyAttestation.
type Attestation interface {
	Kind() string
	isAttestation()
}

// AndroidAttestation carries fields decoded from the Key Attestation extension.
type AndroidAttestation struct {
	AttestationVersion int       `json:"attestationVersion,omitempty"`
	BootState          BootState `json:"verifiedBootState"`
	DeviceLocked       *bool     `json:"deviceLocked,omitempty"`
	OSVersion          string    `json:"osVersion,omitempty"`
	PatchLevel         string    `json:"patchLevel,omitempty"`
	ChallengeOK        *bool     `json:"challengeOk,omitempty"`
}

// AppleAttestation carries fields decoded from an App Attest object.
type AppleAttestation struct {
	TeamID   string `json:"teamId,omitempty"`
	BundleID string `json:"bundleId,omitempty"`
	KeyID    string `json:"keyId,omitempty"`
	NonceOK  bool   `json:"nonceOk"`
}

// SoftwareKeyAttestation marks the documented low-assurance fallback taken when
// an Android chain carries no attestation extension. Nothing attests the boot
// state, so BootState is always BootUnknown.
type SoftwareKeyAttestation struct {
	Reason    string    `json:"reason"`
	BootState BootState `json:"verifiedBootState"`
}

func (AndroidAttestation) Kind() string     { return string(PlatformAndroid) }
func (AppleAttestation) Kind() string       { return string(PlatformApple) }
func (SoftwareKeyAttestation) Kind() string { return "software_key" }

func (AndroidAttestation) isAttestation()     {}
func (AppleAttestation) isAttestation()       {}
func (SoftwareKeyAttestation) isAttestation() {}

// AttestationResult is the normalized output of every attestation verifier.
// Produced once per call and never mutated afterwards.
type AttestationResult struct {
	OK               bool              `json:"ok"`
	Errors           []string          `json:"errors"`
	Warnings         []string          `json:"warnings,omitempty"`
	SecurityLevel    SecurityLevel     `json:"securityLevel"`
	VerifiedBoot     *bool             `json:"verifiedBoot,omitempty"`
	CertificateChain []CertificateInfo `json:"certificateChainInfo"`

	// PublicKeyFingerprint is the SHA-256 of the leaf SubjectPublicKeyInfo,
	// the key a device later signs manifests with.
	PublicKeyFingerprint string      `json:"publicKeyFingerprint,omitempty"`
	Evidence             Attestation `json:"evidence,omitempty"`
}

// Leaf returns the first certificate in the chain, if any.
func (r *AttestationResult) Leaf() (CertificateInfo, bool) {
	if len(r.CertificateChain) == 0 {
		return CertificateInfo{}, false
	}
	return r.CertificateChain[0], true
}
