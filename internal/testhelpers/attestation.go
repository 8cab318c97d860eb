package testhelpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	oidAndroidKeyAttestation = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}
	oidAppleNonce            = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}
)

// KeyDescription describes the Android attestation extension to embed in a
// generated leaf certificate.
type KeyDescription struct {
	SecurityLevel int // 0 software, 1 tee, 2 strongbox
	Challenge     []byte
	BootState     int // 0 verified, 1 self-signed, 2 unverified, 3 failed
	DeviceLocked  bool
	OSVersion     int // e.g. 140000
	PatchLevel    int // e.g. 202403
}

// Chain is a generated certificate chain, leaf first.
type Chain struct {
	DER  [][]byte
	PEM  []string
	Root *x509.Certificate
	Leaf *x509.Certificate
	// LeafKey signs on behalf of the device.
	LeafKey *ecdsa.PrivateKey
}

// ChainOptions control the generated chain.
type ChainOptions struct {
	RootCN     string
	LeafOU     string
	NotBefore  time.Time
	NotAfter   time.Time
	Extensions []pkix.Extension
}

// NewChain generates a two certificate chain (leaf, root) with P-256 keys.
//
// Example usage:
//
//	ext := testhelpers.AndroidExtension(t, testhelpers.KeyDescription{SecurityLevel: 2})
//	chain := testhelpers.NewChain(t, testhelpers.ChainOptions{Extensions: []pkix.Extension{ext}})
//	res := verifier.VerifyAndroid(chain.PEM, nil)
func NewChain(t *testing.T, opts ChainOptions) *Chain {
	t.Helper()

	if opts.RootCN == "" {
		opts.RootCN = "Test Attestation Root"
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(24 * time.Hour)
	}

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: opts.RootCN, Organization: []string{"Test"}},
		NotBefore:             opts.NotBefore.Add(-time.Hour),
		NotAfter:              opts.NotAfter.Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafSubject := pkix.Name{CommonName: "Test Device Key"}
	if opts.LeafOU != "" {
		leafSubject.OrganizationalUnit = []string{opts.LeafOU}
	}
	leafTmpl := &x509.Certificate{
		SerialNumber:    big.NewInt(2),
		Subject:         leafSubject,
		NotBefore:       opts.NotBefore,
		NotAfter:        opts.NotAfter,
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtraExtensions: opts.Extensions,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}

	return &Chain{
		DER:     [][]byte{leafDER, rootDER},
		PEM:     []string{encodePEM(leafDER), encodePEM(rootDER)},
		Root:    root,
		Leaf:    leaf,
		LeafKey: leafKey,
	}
}

func encodePEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// RootFingerprint returns the SHA-256 hex of the chain root.
func (c *Chain) RootFingerprint() string {
	sum := sha256.Sum256(c.Root.Raw)
	return hexString(sum[:])
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 2*len(b))
	for i, v := range b {
		out[2*i] = digits[v>>4]
		out[2*i+1] = digits[v&0x0f]
	}
	return string(out)
}

type rootOfTrust struct {
	VerifiedBootKey   []byte
	DeviceLocked      bool
	VerifiedBootState asn1.Enumerated
	VerifiedBootHash  []byte
}

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

func explicit(t *testing.T, tag int, v any) asn1.RawValue {
	t.Helper()
	inner, err := asn1.Marshal(v)
	if err != nil {
		t.Fatalf("marshal tag %d: %v", tag, err)
	}
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: inner}
}

// AndroidExtension encodes kd as a Key Attestation certificate extension.
// The RootOfTrust, osVersion and osPatchLevel live in the TEE-enforced list.
func AndroidExtension(t *testing.T, kd KeyDescription) pkix.Extension {
	t.Helper()

	tee := []asn1.RawValue{
		explicit(t, 704, rootOfTrust{
			VerifiedBootKey:   make([]byte, 32),
			DeviceLocked:      kd.DeviceLocked,
			VerifiedBootState: asn1.Enumerated(kd.BootState),
			VerifiedBootHash:  make([]byte, 32),
		}),
	}
	if kd.OSVersion != 0 {
		tee = append(tee, explicit(t, 705, kd.OSVersion))
	}
	if kd.PatchLevel != 0 {
		tee = append(tee, explicit(t, 706, kd.PatchLevel))
	}
	teeDER, err := asn1.Marshal(tee)
	if err != nil {
		t.Fatalf("marshal tee list: %v", err)
	}
	swDER, err := asn1.Marshal([]asn1.RawValue{})
	if err != nil {
		t.Fatalf("marshal software list: %v", err)
	}

	challenge := kd.Challenge
	if challenge == nil {
		challenge = []byte{}
	}
	der, err := asn1.Marshal(keyDescription{
		AttestationVersion:       200,
		AttestationSecurityLevel: asn1.Enumerated(kd.SecurityLevel),
		KeymasterVersion:         200,
		KeymasterSecurityLevel:   asn1.Enumerated(kd.SecurityLevel),
		AttestationChallenge:     challenge,
		UniqueID:                 []byte{},
		SoftwareEnforced:         asn1.RawValue{FullBytes: swDER},
		TeeEnforced:              asn1.RawValue{FullBytes: teeDER},
	})
	if err != nil {
		t.Fatalf("marshal key description: %v", err)
	}
	return pkix.Extension{Id: oidAndroidKeyAttestation, Value: der}
}

// RawAndroidExtension embeds arbitrary bytes under the attestation OID.
func RawAndroidExtension(value []byte) pkix.Extension {
	return pkix.Extension{Id: oidAndroidKeyAttestation, Value: value}
}

// AppleAuthData builds authenticator data for team.bundle with attested
// credential data carrying credentialID.
func AppleAuthData(team, bundle string, credentialID []byte) []byte {
	rp := sha256.Sum256([]byte(team + "." + bundle))
	out := make([]byte, 0, 55+len(credentialID))
	out = append(out, rp[:]...)
	// flags (attested credential data), sign count, aaguid
	out = append(out, 0x40, 0, 0, 0, 0)
	out = append(out, make([]byte, 16)...)
	out = append(out, byte(len(credentialID)>>8), byte(len(credentialID)))
	out = append(out, credentialID...)
	return out
}

// AppleNonceExtension encodes SHA-256(authData || SHA-256(clientData)) the
// way App Attest leaf certificates carry it.
func AppleNonceExtension(t *testing.T, authData, clientData []byte) pkix.Extension {
	t.Helper()
	cd := sha256.Sum256(clientData)
	nonce := sha256.Sum256(append(append([]byte{}, authData...), cd[:]...))
	val, err := asn1.Marshal([]asn1.RawValue{explicit(t, 1, nonce[:])})
	if err != nil {
		t.Fatalf("marshal nonce: %v", err)
	}
	return pkix.Extension{Id: oidAppleNonce, Value: val}
}

// AppleAttestationObject CBOR-encodes an App Attest object.
func AppleAttestationObject(t *testing.T, x5c [][]byte, authData []byte) []byte {
	t.Helper()
	out, err := cbor.Marshal(map[string]any{
		"fmt": "apple-appattest",
		"attStmt": map[string]any{
			"x5c":     x5c,
			"receipt": []byte{},
		},
		"authData": authData,
	})
	if err != nil {
		t.Fatalf("marshal attestation object: %v", err)
	}
	return out
}
