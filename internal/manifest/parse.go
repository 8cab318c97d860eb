package manifest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
)

// Well-known assertion labels.
const (
	LabelHashData  = "c2pa.hash.data"
	LabelDeviceID  = "popc.device.id"
	LabelTimestamp = "c2pa.timestamp"
	LabelSequence  = "popc.sequence"
)

// wireManifest is the on-the-wire layout. Assertions stay raw so the signing
// payload is computed from exactly what the signer sent.
type wireManifest struct {
	Version    json.RawMessage `json:"version"`
	Signature  json.RawMessage `json:"signature"`
	Assertions json.RawMessage `json:"assertions"`
	Claim      *struct {
		Assertions []struct {
			Label string          `json:"label"`
			Data  json.RawMessage `json:"data"`
		} `json:"assertions"`
	} `json:"claim,omitempty"`
}

type hashData struct {
	Alg       string `json:"alg"`
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
	Location  string `json:"location"`
	Name      string `json:"name"`
}

// decoded carries what Verify needs beyond the public ParsedManifest.
type decoded struct {
	manifest   *domain.ParsedManifest
	assertions json.RawMessage
	formatOK   bool
}

// Parse decodes a manifest given as JSON text or base64 of JSON. It never
// fails: problems are reported through ParsedManifest.Errors.
func Parse(input []byte) *domain.ParsedManifest {
	return decode(input).manifest
}

func decode(input []byte) decoded {
	pm := &domain.ParsedManifest{}
	out := decoded{manifest: pm}

	text := unwrapBase64(input)

	var wire wireManifest
	if err := json.Unmarshal(text, &wire); err != nil ||
		isAbsent(wire.Version) || isAbsent(wire.Signature) || isAbsent(wire.Assertions) {
		pm.Errors = append(pm.Errors, domain.CodeInvalidManifestFormat)
		return out
	}

	var version any
	if err := json.Unmarshal(wire.Version, &version); err == nil {
		switch v := version.(type) {
		case string:
			pm.Version = v
		case float64:
			pm.Version = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	if err := json.Unmarshal(wire.Signature, &pm.Signature); err != nil {
		pm.Errors = append(pm.Errors, domain.CodeInvalidManifestFormat)
		return out
	}

	var assertions map[string]json.RawMessage
	if err := json.Unmarshal(wire.Assertions, &assertions); err != nil {
		pm.Errors = append(pm.Errors, domain.CodeInvalidManifestFormat)
		return out
	}
	out.assertions = wire.Assertions
	out.formatOK = true

	pm.Assertions = make(map[string]any, len(assertions))
	pm.Metadata = make(map[string]any)
	for label, raw := range assertions {
		v := decodeValue(raw)
		pm.Assertions[label] = v
		switch label {
		case LabelHashData, LabelDeviceID, LabelTimestamp, LabelSequence:
		default:
			pm.Metadata[label] = v
		}
	}

	binding, ok := bindingFrom(assertions[LabelHashData])
	if !ok && wire.Claim != nil {
		for _, a := range wire.Claim.Assertions {
			if a.Label != LabelHashData {
				continue
			}
			if binding, ok = bindingFrom(a.Data); ok {
				break
			}
		}
	}
	if ok {
		pm.ContentBinding = binding
	} else {
		pm.Errors = append(pm.Errors, domain.CodeManifestBindingMissing)
	}

	pm.SignerChain = signerChain(pm.Signature)
	pm.DeviceID = deviceID(assertions[LabelDeviceID])
	pm.CapturedAt = capturedAt(assertions[LabelTimestamp])
	pm.SequenceNumber = sequence(assertions[LabelSequence])

	pm.Valid = len(pm.Errors) == 0
	return out
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// unwrapBase64 returns the decoded bytes when input is base64 of a JSON
// object, otherwise the input itself.
func unwrapBase64(input []byte) []byte {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || trimmed[0] == '{' || !looksBase64(trimmed) {
		return trimmed
	}
	compact := strings.NewReplacer("\n", "", "\r", "").Replace(string(trimmed))
	raw, err := crypto.DecodeBase64(compact)
	if err != nil {
		return trimmed
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return trimmed
	}
	return raw
}

func looksBase64(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '-', c == '_', c == '=', c == '\n', c == '\r':
		default:
			return false
		}
	}
	return true
}

func decodeValue(raw json.RawMessage) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func bindingFrom(raw json.RawMessage) (domain.ContentBinding, bool) {
	if isAbsent(raw) {
		return domain.ContentBinding{}, false
	}
	var hd hashData
	if err := json.Unmarshal(raw, &hd); err != nil || strings.TrimSpace(hd.Hash) == "" {
		return domain.ContentBinding{}, false
	}
	alg := hd.Alg
	if alg == "" {
		alg = hd.Algorithm
	}
	loc := hd.Location
	if loc == "" {
		loc = hd.Name
	}
	return domain.ContentBinding{
		Algorithm: domain.NormalizeHashAlgorithm(alg),
		Hash:      hd.Hash,
		Location:  loc,
	}, true
}

// signerChain lists the primary signer then every parseable certificate.
func signerChain(sig domain.Signature) []domain.SignerChainEntry {
	var chain []domain.SignerChainEntry
	if sig.PublicKey != "" {
		fp := crypto.SHA256Hex([]byte(sig.PublicKey))
		if key, err := crypto.ParsePublicKey(sig.PublicKey); err == nil {
			fp = key.Fingerprint()
		}
		chain = append(chain, domain.SignerChainEntry{Alg: string(sig.Algorithm), Fingerprint: fp})
	}
	for _, enc := range sig.CertChain {
		cert, err := crypto.ParseCertificate(enc)
		if err != nil {
			continue
		}
		info := crypto.DescribeCertificate(cert)
		chain = append(chain, domain.SignerChainEntry{
			Alg:         cert.SignatureAlgorithm.String(),
			Fingerprint: info.FingerprintSHA256,
			Subject:     info.Subject,
			Issuer:      info.Issuer,
			NotBefore:   &info.NotBefore,
			NotAfter:    &info.NotAfter,
		})
	}
	return chain
}

func deviceID(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func capturedAt(raw json.RawMessage) *time.Time {
	if isAbsent(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var secs int64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return nil
		}
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func sequence(raw json.RawMessage) *int64 {
	if isAbsent(raw) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
