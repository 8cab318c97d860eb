package httpapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/config"
)

func TestNewServer_MissingAddress(t *testing.T) {
	server, err := NewServer(context.Background(), config.HTTPConfig{}, http.NotFoundHandler(), zerolog.Nop())

	require.Error(t, err)
	assert.Nil(t, server)
	assert.Contains(t, err.Error(), "address is required")
}

func TestNewServer_MissingHandler(t *testing.T) {
	server, err := NewServer(context.Background(), config.HTTPConfig{Address: ":8443"}, nil, zerolog.Nop())

	require.Error(t, err)
	assert.Nil(t, server)
	assert.Contains(t, err.Error(), "handler is required")
}

func TestNewServer_SpiffeRejectsBadTrustDomain(t *testing.T) {
	cfg := config.HTTPConfig{
		Address: ":8443",
		TLS: config.TLSConfig{
			Mode:                     "spiffe",
			SocketPath:               "/tmp/spire-agent/public/api.sock",
			AllowedClientTrustDomain: "not a trust domain",
		},
	}

	server, err := NewServer(context.Background(), cfg, http.NotFoundHandler(), zerolog.Nop())

	require.Error(t, err)
	assert.Nil(t, server)
	assert.Contains(t, err.Error(), "invalid allowed client trust domain")
}

func TestNormalizeSocket(t *testing.T) {
	tests := map[string]string{
		"/tmp/agent.sock":        "unix:///tmp/agent.sock",
		"unix:///tmp/agent.sock": "unix:///tmp/agent.sock",
		"tcp://127.0.0.1:8081":   "tcp://127.0.0.1:8081",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeSocket(in), in)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	server, err := NewServer(context.Background(), config.HTTPConfig{
		Address:         ln.Addr().String(),
		ShutdownTimeout: 2 * time.Second,
	}, mux, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
