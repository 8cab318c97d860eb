package attestation

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"strconv"

	"github.com/sufield/popc/internal/domain"
)

// Keymaster authorization tags read from the AuthorizationLists.
const (
	tagRootOfTrust  = 704
	tagOSVersion    = 705
	tagOSPatchLevel = 706
)

var errKeyDescription = errors.New("malformed key description")

// keyDescription mirrors the KeyDescription SEQUENCE. Field names follow
// the Keymaster schema; KeyMint renamed them without changing positions.
type keyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

type rootOfTrust struct {
	VerifiedBootKey   []byte
	DeviceLocked      bool
	VerifiedBootState asn1.Enumerated
	VerifiedBootHash  []byte `asn1:"optional"`
}

// keyAttestation is the decoded subset of the extension the engine uses.
type keyAttestation struct {
	AttestationVersion int
	SecurityLevel      domain.SecurityLevel
	Challenge          []byte
	RootOfTrust        *bootInfo
	OSVersion          string
	PatchLevel         string
}

type bootInfo struct {
	BootState    domain.BootState
	DeviceLocked bool
}

// authList holds the tags of interest from one AuthorizationList.
type authList struct {
	rootOfTrust *bootInfo
	osVersion   *int
	patchLevel  *int
}

func parseKeyDescription(der []byte) (*keyAttestation, error) {
	var kd keyDescription
	rest, err := asn1.Unmarshal(der, &kd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errKeyDescription, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data", errKeyDescription)
	}

	sw, err := parseAuthList(kd.SoftwareEnforced)
	if err != nil {
		return nil, fmt.Errorf("software enforced: %w", err)
	}
	tee, err := parseAuthList(kd.TeeEnforced)
	if err != nil {
		return nil, fmt.Errorf("tee enforced: %w", err)
	}

	out := &keyAttestation{
		AttestationVersion: kd.AttestationVersion,
		SecurityLevel:      securityLevel(kd.AttestationSecurityLevel),
		Challenge:          kd.AttestationChallenge,
		RootOfTrust:        firstNonNil(tee.rootOfTrust, sw.rootOfTrust),
	}
	if v := firstNonNil(tee.osVersion, sw.osVersion); v != nil {
		out.OSVersion = formatOSVersion(*v)
	}
	if v := firstNonNil(tee.patchLevel, sw.patchLevel); v != nil {
		out.PatchLevel = formatPatchLevel(*v)
	}
	return out, nil
}

// parseAuthList walks an AuthorizationList. Every member is an EXPLICIT
// context-specific tag; tags this engine does not use are skipped.
func parseAuthList(list asn1.RawValue) (authList, error) {
	var out authList
	if list.Tag != asn1.TagSequence || !list.IsCompound {
		return out, fmt.Errorf("%w: authorization list is not a sequence", errKeyDescription)
	}

	rest := list.Bytes
	for len(rest) > 0 {
		var field asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &field)
		if err != nil {
			return out, fmt.Errorf("%w: %w", errKeyDescription, err)
		}
		if field.Class != asn1.ClassContextSpecific {
			continue
		}

		switch field.Tag {
		case tagRootOfTrust:
			var rot rootOfTrust
			if _, err := asn1.Unmarshal(field.Bytes, &rot); err != nil {
				return out, fmt.Errorf("%w: root of trust: %w", errKeyDescription, err)
			}
			out.rootOfTrust = &bootInfo{
				BootState:    bootState(rot.VerifiedBootState),
				DeviceLocked: rot.DeviceLocked,
			}
		case tagOSVersion, tagOSPatchLevel:
			var n int
			if _, err := asn1.Unmarshal(field.Bytes, &n); err != nil {
				return out, fmt.Errorf("%w: tag %d: %w", errKeyDescription, field.Tag, err)
			}
			if field.Tag == tagOSVersion {
				out.osVersion = &n
			} else {
				out.patchLevel = &n
			}
		}
	}
	return out, nil
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// securityLevel maps the SecurityLevel ENUMERATED. Unrecognised values come
// from a present extension and default to tee.
func securityLevel(e asn1.Enumerated) domain.SecurityLevel {
	switch e {
	case 0:
		return domain.SecuritySoftware
	case 2:
		return domain.SecurityStrongBox
	default:
		return domain.SecurityTEE
	}
}

func bootState(e asn1.Enumerated) domain.BootState {
	switch e {
	case 0:
		return domain.BootVerified
	case 1:
		return domain.BootSelfSigned
	case 2, 3:
		return domain.BootUnverified
	default:
		return domain.BootUnknown
	}
}

// formatOSVersion renders MMmmss (e.g. 140000) as "14", 130100 as "13.1".
func formatOSVersion(v int) string {
	if v <= 0 {
		return ""
	}
	major, minor, sub := v/10000, (v/100)%100, v%100
	switch {
	case sub != 0:
		return fmt.Sprintf("%d.%d.%d", major, minor, sub)
	case minor != 0:
		return fmt.Sprintf("%d.%d", major, minor)
	default:
		return strconv.Itoa(major)
	}
}

// formatPatchLevel renders YYYYMM as "YYYY-MM" and YYYYMMDD as "YYYY-MM-DD".
func formatPatchLevel(v int) string {
	switch {
	case v >= 10000000:
		return fmt.Sprintf("%04d-%02d-%02d", v/10000, (v/100)%100, v%100)
	case v >= 100000:
		return fmt.Sprintf("%04d-%02d", v/100, v%100)
	default:
		return ""
	}
}
