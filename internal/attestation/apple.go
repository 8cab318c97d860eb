package attestation

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// OIDAppleNonce identifies the App Attest nonce extension on the leaf.
var OIDAppleNonce = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

const appleRootMarker = "apple"

// Authenticator data layout.
const (
	rpIDHashLen   = 32
	flagsOffset   = rpIDHashLen
	counterEnd    = flagsOffset + 1 + 4
	aaguidEnd     = counterEnd + 16
	credIDLenEnd  = aaguidEnd + 2
	flagAttested  = 0x40
	keyIDFallback = counterEnd
)

type attestationObject struct {
	Fmt     string `cbor:"fmt"`
	AttStmt struct {
		X5c     [][]byte `cbor:"x5c"`
		Receipt []byte   `cbor:"receipt"`
	} `cbor:"attStmt"`
	AuthData []byte `cbor:"authData"`
}

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxArrayElements: 64,
		MaxMapPairs:      64,
		MaxNestedLevels:  8,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// VerifyApple checks an App Attest attestation object given as CBOR bytes or
// base64 of them. clientDataJSON and expectedBundleID are optional.
func (v *Verifier) VerifyApple(attestationObj, clientDataJSON []byte, expectedBundleID string) (out domain.AttestationResult) {
	defer guard(&out)

	r := newResult()

	obj, err := decodeAttestationObject(attestationObj)
	if err != nil {
		r.fail(domain.CodeAttestationInvalidChain)
		return r.finish()
	}
	if len(obj.AttStmt.X5c) == 0 {
		r.fail(domain.CodeAttestationInvalidChain)
		return r.finish()
	}

	certs := make([]*x509.Certificate, 0, len(obj.AttStmt.X5c))
	for _, der := range obj.AttStmt.X5c {
		cert, err := x509.ParseCertificate(der)
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
	r.SecurityLevel = domain.SecurityStrongBox

	v.checkLeafValidity(r)

	leaf := certs[0]
	att := domain.AppleAttestation{TeamID: teamID(leaf, v.opts.AppleTeamID)}

	if expectedBundleID != "" {
		switch v.opts.ParseMode {
		case ParseModeLegacy:
			att.BundleID = expectedBundleID
		default:
			if rpIDMatches(obj.AuthData, att.TeamID, expectedBundleID) {
				att.BundleID = expectedBundleID
			} else {
				r.fail(domain.CodeAttestationChallengeMismatch)
			}
		}
	}

	att.KeyID = keyID(obj.AuthData)

	if clientDataJSON != nil {
		att.NonceOK = v.checkClientData(r, leaf, obj.AuthData, clientDataJSON)
	}

	root := r.CertificateChain[len(r.CertificateChain)-1]
	if !strings.Contains(strings.ToLower(root.Subject), appleRootMarker) {
		r.fail(domain.CodeAttestationUntrustedRoot)
	}
	v.checkRootTrust(r)

	r.Evidence = att
	return r.finish()
}

func decodeAttestationObject(in []byte) (*attestationObject, error) {
	var obj attestationObject
	if err := decMode.Unmarshal(in, &obj); err == nil {
		return &obj, nil
	}
	raw, err := crypto.DecodeBase64(string(in))
	if err != nil {
		return nil, errors.New("attestation object is neither CBOR nor base64")
	}
	if err := decMode.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// teamID reads the team from the leaf subject OU, falling back to the
// configured team.
func teamID(leaf *x509.Certificate, fallback string) string {
	if len(leaf.Subject.OrganizationalUnit) > 0 && leaf.Subject.OrganizationalUnit[0] != "" {
		return leaf.Subject.OrganizationalUnit[0]
	}
	return fallback
}

// rpIDMatches checks authData.rpIdHash == SHA-256(teamID "." bundleID).
func rpIDMatches(authData []byte, team, bundle string) bool {
	if team == "" || len(authData) < rpIDHashLen {
		return false
	}
	want := sha256.Sum256([]byte(team + "." + bundle))
	return subtle.ConstantTimeCompare(authData[:rpIDHashLen], want[:]) == 1
}

// keyID is SHA-256 of the credential id when authData carries attested
// credential data, else SHA-256 of the fixed authData prefix.
func keyID(authData []byte) string {
	if len(authData) >= credIDLenEnd && authData[flagsOffset]&flagAttested != 0 {
		n := int(authData[aaguidEnd])<<8 | int(authData[aaguidEnd+1])
		if n > 0 && len(authData) >= credIDLenEnd+n {
			sum := sha256.Sum256(authData[credIDLenEnd : credIDLenEnd+n])
			return hex.EncodeToString(sum[:])
		}
	}
	if len(authData) >= keyIDFallback {
		sum := sha256.Sum256(authData[:keyIDFallback])
		return hex.EncodeToString(sum[:])
	}
	if len(authData) == 0 {
		return ""
	}
	sum := sha256.Sum256(authData)
	return hex.EncodeToString(sum[:])
}

// checkClientData requires a challenge member. In strict mode a nonce
// extension on the leaf must also equal SHA-256(authData || SHA-256(clientData)).
func (v *Verifier) checkClientData(r *result, leaf *x509.Certificate, authData, clientDataJSON []byte) bool {
	var cd struct {
		Challenge json.RawMessage `json:"challenge"`
	}
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil || len(cd.Challenge) == 0 || string(cd.Challenge) == "null" || string(cd.Challenge) == `""` {
		r.fail(domain.CodeAttestationChallengeMismatch)
		return false
	}
	if v.opts.ParseMode == ParseModeLegacy {
		return true
	}

	ext, found := findExtension(leaf, OIDAppleNonce)
	if !found {
		return true
	}
	nonce, err := parseAppleNonce(ext)
	if err != nil {
		r.fail(domain.CodeAttestationChallengeMismatch)
		return false
	}
	cdHash := sha256.Sum256(clientDataJSON)
	want := sha256.Sum256(append(bytes.Clone(authData), cdHash[:]...))
	if subtle.ConstantTimeCompare(nonce, want[:]) != 1 {
		r.fail(domain.CodeAttestationChallengeMismatch)
		return false
	}
	return true
}

// parseAppleNonce unwraps SEQUENCE { [1] EXPLICIT OCTET STRING }.
func parseAppleNonce(ext []byte) ([]byte, error) {
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(ext, &outer); err != nil {
		return nil, err
	}
	var tagged asn1.RawValue
	if _, err := asn1.Unmarshal(outer.Bytes, &tagged); err != nil {
		return nil, err
	}
	if tagged.Class != asn1.ClassContextSpecific || tagged.Tag != 1 {
		return nil, errors.New("unexpected nonce wrapper")
	}
	var nonce []byte
	if _, err := asn1.Unmarshal(tagged.Bytes, &nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
