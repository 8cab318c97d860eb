package attestation

import (
	"crypto/x509"
	"slices"
	"strings"
	"time"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// Verifier checks attestation evidence under a fixed set of Options.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	opts    Options
	trusted map[string]struct{}
}

// New returns a Verifier. A nil Now defaults to time.Now.
func New(opts Options) *Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	trusted := make(map[string]struct{}, len(opts.TrustedRoots))
	for _, fp := range opts.TrustedRoots {
		trusted[strings.ToLower(strings.TrimSpace(fp))] = struct{}{}
	}
	return &Verifier{opts: opts, trusted: trusted}
}

// Options returns the configuration the verifier was built with.
func (v *Verifier) Options() Options {
	return v.opts
}

// result accumulates errors and warnings without duplicates.
type result struct {
	domain.AttestationResult
}

func newResult() *result {
	return &result{domain.AttestationResult{
		Errors:           []string{},
		SecurityLevel:    domain.SecurityUnknown,
		CertificateChain: []domain.CertificateInfo{},
	}}
}

func (r *result) fail(code string) {
	if !slices.Contains(r.Errors, code) {
		r.Errors = append(r.Errors, code)
	}
}

func (r *result) warn(code string) {
	if !slices.Contains(r.Warnings, code) {
		r.Warnings = append(r.Warnings, code)
	}
}

func (r *result) finish() domain.AttestationResult {
	r.OK = len(r.Errors) == 0
	return r.AttestationResult
}

// addChain records a summary of every certificate and the leaf key.
func (r *result) addChain(certs []*x509.Certificate) {
	for _, c := range certs {
		r.CertificateChain = append(r.CertificateChain, crypto.DescribeCertificate(c))
	}
	if len(certs) > 0 {
		r.PublicKeyFingerprint = crypto.Fingerprint(certs[0].RawSubjectPublicKeyInfo)
	}
}

// checkLeafValidity flags an expired or not-yet-valid leaf.
func (v *Verifier) checkLeafValidity(r *result) {
	leaf, ok := r.Leaf()
	if ok && !leaf.ValidAt(v.opts.Now()) {
		r.fail(domain.CodeAttestationExpired)
	}
}

// checkRootTrust applies the RootTrust policy to the last certificate.
func (v *Verifier) checkRootTrust(r *result) {
	if v.opts.RootTrust == RootTrustAllowAll || len(r.CertificateChain) == 0 {
		return
	}
	root := r.CertificateChain[len(r.CertificateChain)-1]
	if _, ok := v.trusted[root.FingerprintSHA256]; !ok {
		r.fail(domain.CodeAttestationUntrustedRoot)
	}
}

// guard converts a panic in a verifier into an invalid-chain result.
func guard(out *domain.AttestationResult) {
	if recover() != nil {
		*out = domain.AttestationResult{
			Errors:           []string{domain.CodeAttestationInvalidChain},
			SecurityLevel:    domain.SecurityUnknown,
			CertificateChain: []domain.CertificateInfo{},
		}
	}
}
