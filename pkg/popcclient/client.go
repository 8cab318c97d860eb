package popcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
)

// DefaultTimeout bounds one API call.
const DefaultTimeout = 30 * time.Second

// Config holds client configuration. Only BaseURL is required.
type Config struct {
	// BaseURL is the server root, e.g. "https://popc.internal:8443".
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string

	// ServerID is the expected SPIFFE ID of the server. Setting it or
	// ServerTrustDomain switches the client to mTLS with SVIDs from the
	// Workload API. Mutually exclusive with ServerTrustDomain.
	ServerID string
	// ServerTrustDomain accepts any server in the trust domain.
	ServerTrustDomain string
	// SocketPath is the Workload API socket. If empty, auto-detects from
	// SPIFFE_ENDPOINT_SOCKET, SPIRE_AGENT_SOCKET and common paths.
	SocketPath string

	Timeout time.Duration
	// HTTPClient replaces the transport entirely; mTLS settings are ignored.
	HTTPClient *http.Client
}

// Client calls the /v1 API.
type Client struct {
	base       *url.URL
	apiKey     string
	http       *http.Client
	x509Source *workloadapi.X509Source
}

// New creates a client. In mTLS mode it blocks until the first SVID arrives.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.ServerID != "" && cfg.ServerTrustDomain != "" {
		return nil, fmt.Errorf("ServerID and ServerTrustDomain are mutually exclusive; specify only one")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{base: base, apiKey: cfg.APIKey, http: cfg.HTTPClient}
	if c.http != nil {
		return c, nil
	}
	c.http = &http.Client{Timeout: timeout}
	if cfg.ServerID == "" && cfg.ServerTrustDomain == "" {
		return c, nil
	}

	authorizer, err := serverAuthorizer(cfg)
	if err != nil {
		return nil, err
	}
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = selectSocket()
	}
	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to create X509Source: %w", err)
	}
	c.x509Source = source
	c.http.Transport = &http.Transport{
		TLSClientConfig:     tlsconfig.MTLSClientConfig(source, source, authorizer),
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return c, nil
}

func serverAuthorizer(cfg Config) (tlsconfig.Authorizer, error) {
	if cfg.ServerID != "" {
		id, err := spiffeid.FromString(cfg.ServerID)
		if err != nil {
			return nil, fmt.Errorf("invalid server SPIFFE ID: %w", err)
		}
		return tlsconfig.AuthorizeID(id), nil
	}
	td, err := spiffeid.TrustDomainFromString(cfg.ServerTrustDomain)
	if err != nil {
		return nil, fmt.Errorf("invalid server trust domain: %w", err)
	}
	return tlsconfig.AuthorizeMemberOf(td), nil
}

// selectSocket auto-detects the SPIRE agent socket path.
func selectSocket() string {
	candidates := []string{
		os.Getenv("SPIFFE_ENDPOINT_SOCKET"),
		os.Getenv("SPIRE_AGENT_SOCKET"),
		"unix:///tmp/spire-agent/public/api.sock",
		"unix:///var/run/spire/sockets/agent.sock",
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if !strings.HasPrefix(c, "unix://") && !strings.HasPrefix(c, "tcp://") {
			c = "unix://" + c
		}
		if path, ok := strings.CutPrefix(c, "unix://"); ok {
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}
		return c
	}
	return "unix:///tmp/spire-agent/public/api.sock"
}

// APIError is a non-2xx response. It matches ports.ErrNotFound and
// ports.ErrConflict under errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("popc: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("popc: %d %s", e.Status, e.Code)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ports.ErrNotFound:
		return e.Status == http.StatusNotFound
	case ports.ErrConflict:
		return e.Status == http.StatusConflict
	case ports.ErrInternal:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// Verify submits an asset and optional manifest.
func (c *Client) Verify(ctx context.Context, req ports.VerifyRequest) (*ports.VerificationOutcome, error) {
	body := map[string]string{"asset": base64.StdEncoding.EncodeToString(req.Asset)}
	if len(req.Manifest) > 0 {
		body["manifest"] = base64.StdEncoding.EncodeToString(req.Manifest)
	}
	if req.ContentType != "" {
		body["contentType"] = req.ContentType
	}
	var out ports.VerificationOutcome
	if err := c.call(ctx, http.MethodPost, "/v1/verify", body, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll submits attestation evidence. A rejected enrollment is returned
// as an outcome with Accepted false, not as an error.
func (c *Client) Enroll(ctx context.Context, req ports.EnrollRequest) (*ports.EnrollOutcome, error) {
	body := map[string]any{
		"platform":         req.Platform,
		"certificateChain": req.ChainPEM,
		"bundleId":         req.BundleID,
	}
	for name, v := range map[string][]byte{
		"challenge":         req.Challenge,
		"attestationObject": req.AttestationObject,
		"clientDataJSON":    req.ClientDataJSON,
	} {
		if len(v) > 0 {
			body[name] = base64.StdEncoding.EncodeToString(v)
		}
	}
	var out ports.EnrollOutcome
	if err := c.call(ctx, http.MethodPost, "/v1/devices", body, &out, http.StatusCreated, http.StatusUnprocessableEntity); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke revokes a device. RevokedBy defaults server-side to the key name.
func (c *Client) Revoke(ctx context.Context, deviceID, reason string) (domain.Revocation, error) {
	var out domain.Revocation
	path := "/v1/devices/" + url.PathEscape(deviceID) + "/revoke"
	err := c.call(ctx, http.MethodPost, path, map[string]string{"reason": reason}, &out, http.StatusOK)
	return out, err
}

// Evidence fetches the evidence document of a verification.
func (c *Client) Evidence(ctx context.Context, verificationID string) (*domain.EvidenceDocument, error) {
	var out domain.EvidenceDocument
	if err := c.call(ctx, http.MethodGet, "/v1/evidence/"+url.PathEscape(verificationID), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, status := range accept {
		if resp.StatusCode == status {
			return json.NewDecoder(resp.Body).Decode(out)
		}
	}
	apiErr := &APIError{Status: resp.StatusCode}
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e); err == nil {
		apiErr.Code, apiErr.Message = e.Error, e.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}

// Close releases idle connections and the X509Source.
// Idempotent and safe to call multiple times.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	if c.x509Source == nil {
		return nil
	}
	err := c.x509Source.Close()
	c.x509Source = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close X509Source: %w", err)
	}
	return nil
}
