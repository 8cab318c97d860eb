package attestation

import (
	"bytes"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// OIDAndroidKeyAttestation identifies the Key Attestation extension.
var OIDAndroidKeyAttestation = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// Placeholder OS fields reported in legacy mode.
const (
	legacyOSVersion  = "14"
	legacyPatchLevel = "2024-01"
)

// VerifyAndroid checks an Android Key Attestation chain given leaf first.
// expectedChallenge is optional.
func (v *Verifier) VerifyAndroid(chainPEM []string, expectedChallenge []byte) (out domain.AttestationResult) {
	defer guard(&out)

	r := newResult()
	if len(chainPEM) == 0 {
		r.fail(domain.CodeAttestationInvalidChain)
		return r.finish()
	}

	certs := make([]*x509.Certificate, 0, len(chainPEM))
	for _, enc := range chainPEM {
		cert, err := crypto.ParseCertificate(enc)
		if err != nil {
			r.fail(domain.CodeAttestationInvalidChain)
			continue
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		r.fail(domain.CodeAttestationInvalidChain)
		return r.finish()
	}
	r.addChain(certs)

	v.checkLeafValidity(r)
	v.checkRootTrust(r)

	ext, found := findExtension(certs[0], OIDAndroidKeyAttestation)
	if !found {
		switch v.opts.MissingExtension {
		case MissingExtensionReject:
			r.fail(domain.CodeAttestationExtensionMissing)
		default:
			r.warn(domain.CodeAttestationExtensionMissing)
			r.SecurityLevel = domain.SecuritySoftware
			r.Evidence = domain.SoftwareKeyAttestation{
				Reason:    "attestation extension absent from leaf certificate",
				BootState: domain.BootUnknown,
			}
		}
		return r.finish()
	}

	var att domain.AndroidAttestation
	if v.opts.ParseMode == ParseModeLegacy {
		att = v.legacyAndroid(r, ext, expectedChallenge)
	} else {
		att = v.strictAndroid(r, ext, expectedChallenge)
	}

	verified := att.BootState == domain.BootVerified
	r.VerifiedBoot = &verified
	r.Evidence = att
	return r.finish()
}

func findExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return ext.Value, true
		}
	}
	return nil, false
}

func (v *Verifier) strictAndroid(r *result, ext, expectedChallenge []byte) domain.AndroidAttestation {
	att := domain.AndroidAttestation{BootState: domain.BootUnknown}

	kd, err := parseKeyDescription(ext)
	if err != nil {
		r.fail(domain.CodeAttestationExtensionUnparsed)
		r.SecurityLevel = domain.SecurityTEE
		return att
	}

	att.AttestationVersion = kd.AttestationVersion
	r.SecurityLevel = kd.SecurityLevel
	if kd.RootOfTrust != nil {
		att.BootState = kd.RootOfTrust.BootState
		locked := kd.RootOfTrust.DeviceLocked
		att.DeviceLocked = &locked
	}
	att.OSVersion = kd.OSVersion
	att.PatchLevel = kd.PatchLevel

	if len(expectedChallenge) > 0 {
		ok := subtle.ConstantTimeCompare(kd.Challenge, expectedChallenge) == 1
		att.ChallengeOK = &ok
		if !ok {
			r.fail(domain.CodeAttestationChallengeMismatch)
		}
	}
	return att
}

// legacyAndroid reproduces the heuristic interpretation of earlier releases:
// substring matches on the raw extension and fixed OS fields.
func (v *Verifier) legacyAndroid(r *result, ext, expectedChallenge []byte) domain.AndroidAttestation {
	lower := bytes.ToLower(ext)

	switch {
	case bytes.Contains(lower, []byte("strongbox")):
		r.SecurityLevel = domain.SecurityStrongBox
	case bytes.Contains(lower, []byte("tee")):
		r.SecurityLevel = domain.SecurityTEE
	case bytes.Contains(lower, []byte("software")):
		r.SecurityLevel = domain.SecuritySoftware
	default:
		r.SecurityLevel = domain.SecurityTEE
	}

	att := domain.AndroidAttestation{
		BootState:  domain.BootUnknown,
		OSVersion:  legacyOSVersion,
		PatchLevel: legacyPatchLevel,
	}
	switch {
	case bytes.Contains(lower, []byte("self_signed")), bytes.Contains(lower, []byte("selfsigned")):
		att.BootState = domain.BootSelfSigned
	case bytes.Contains(lower, []byte("unverified")):
		att.BootState = domain.BootUnverified
	case bytes.Contains(lower, []byte("verified")):
		att.BootState = domain.BootVerified
	}
	r.warn(domain.CodeAttestationOSVersionPlaceheld)

	if len(expectedChallenge) > 0 {
		ok := bytes.Contains(ext, expectedChallenge)
		att.ChallengeOK = &ok
		if !ok {
			r.fail(domain.CodeAttestationChallengeMismatch)
		}
	}
	return att
}
