package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
)

// multipartMemory is the part of a multipart body held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// errBadRequest marks client input errors; the wrapped text is returned.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// verifyBody is the JSON form of POST /v1/verify. Manifest is either a JSON
// string (raw or base64 manifest) or the manifest object itself.
type verifyBody struct {
	Asset       string          `json:"asset"`
	Manifest    json.RawMessage `json:"manifest"`
	ContentType string          `json:"contentType"`
}

// enrollBody is POST /v1/devices. Binary fields are base64.
type enrollBody struct {
	Platform string `json:"platform"`

	CertificateChain []string `json:"certificateChain"`
	Challenge        string   `json:"challenge"`

	AttestationObject string `json:"attestationObject"`
	ClientDataJSON    string `json:"clientDataJSON"`
	BundleID          string `json:"bundleId"`
}

type revokeBody struct {
	Reason    string `json:"reason"`
	RevokedBy string `json:"revokedBy"`
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeVerify(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.engine.Verify(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) decodeVerify(w http.ResponseWriter, r *http.Request) (ports.VerifyRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req ports.VerifyRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return req, bodyError(err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		asset, hdr, err := readFormFile(r, "asset")
		if err != nil {
			return req, err
		}
		if asset == nil {
			return req, badRequest("asset is required")
		}
		req.Asset = asset
		req.ContentType = hdr.Header.Get("Content-Type")

		m, _, err := readFormFile(r, "manifest")
		if err != nil {
			return req, err
		}
		if m == nil {
			if v := r.FormValue("manifest"); v != "" {
				m = []byte(v)
			}
		}
		req.Manifest = m

	case "application/json", "":
		var body verifyBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, bodyError(err)
		}
		if body.Asset == "" {
			return req, badRequest("asset is required")
		}
		asset, err := crypto.DecodeBase64(body.Asset)
		if err != nil {
			return req, badRequest("asset must be base64")
		}
		req.Asset = asset
		req.ContentType = body.ContentType
		if req.Manifest, err = manifestBytes(body.Manifest); err != nil {
			return req, err
		}

	default:
		return req, badRequest("unsupported content type %q", mediaType)
	}

	if req.ContentType == "" {
		req.ContentType = http.DetectContentType(req.Asset)
	}
	return req, nil
}

// readFormFile returns the bytes of a file part, or nil when absent.
func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, bodyError(err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, bodyError(err)
	}
	return b, hdr, nil
}

func manifestBytes(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return []byte(raw), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, badRequest("manifest must be a string or an object")
	}
	if s == "" {
		return nil, nil
	}
	return []byte(s), nil
}

func (h *handler) enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var body enrollBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, r, bodyError(err))
		return
	}
	req, err := body.request()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.engine.Enroll(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !out.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

func (b enrollBody) request() (ports.EnrollRequest, error) {
	req := ports.EnrollRequest{
		Platform: domain.Platform(b.Platform),
		ChainPEM: b.CertificateChain,
		BundleID: b.BundleID,
	}
	fields := []struct {
		name  string
		value string
		dst   *[]byte
	}{
		{"challenge", b.Challenge, &req.Challenge},
		{"attestationObject", b.AttestationObject, &req.AttestationObject},
		{"clientDataJSON", b.ClientDataJSON, &req.ClientDataJSON},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		v, err := crypto.DecodeBase64(f.value)
		if err != nil {
			return req, badRequest("%s must be base64", f.name)
		}
		*f.dst = v
	}
	return req, nil
}

func (h *handler) revoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var body revokeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, bodyError(err))
		return
	}
	if body.RevokedBy == "" {
		if c, ok := GetCaller(r); ok {
			body.RevokedBy = c.Name
		}
	}

	rev, err := h.engine.Revoke(r.Context(), ports.RevokeRequest{
		DeviceID:  chi.URLParam(r, "id"),
		Reason:    body.Reason,
		RevokedBy: body.RevokedBy,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (h *handler) evidence(w http.ResponseWriter, r *http.Request) {
	doc, err := h.engine.GetEvidence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// bodyError classifies a request body read failure.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: body exceeds %d bytes", errTooLarge, tooLarge.Limit)
	}
	return badRequest("malformed body: %v", err)
}

var errTooLarge = errors.New("request too large")

// fail maps an error onto a status and a stable error code. Infrastructure
// failures never leak their cause to the caller.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	case errors.Is(err, errTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large")
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unsupported_platform", Message: err.Error()})
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, ports.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, domain.CodeInternalError)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
