package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/stretchr/testify/assert"

	"github.com/sufield/popc/internal/config"
)

func TestGetSPIFFEID(t *testing.T) {
	tests := []struct {
		name     string
		setupReq func() *http.Request
		wantOK   bool
		wantID   string
	}{
		{
			name: "ID present in context",
			setupReq: func() *http.Request {
				req := httptest.NewRequest("GET", "/test", nil)
				return WithSPIFFEID(req, spiffeid.RequireFromString("spiffe://example.org/capture-app"))
			},
			wantOK: true,
			wantID: "spiffe://example.org/capture-app",
		},
		{
			name: "ID not present",
			setupReq: func() *http.Request {
				return httptest.NewRequest("GET", "/test", nil)
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := GetSPIFFEID(tt.setupReq())

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id.String())
			}
		})
	}
}

func TestPeerIdentity_PlainHTTP(t *testing.T) {
	var sawID bool
	h := peerIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawID = GetSPIFFEID(r)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.False(t, sawID)
}

func TestGetCaller(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	_, ok := GetCaller(req)
	assert.False(t, ok)

	req = withCaller(req, Caller{Name: "ingest", Scopes: []string{config.ScopeVerify}})
	c, ok := GetCaller(req)
	assert.True(t, ok)
	assert.Equal(t, "ingest", c.Name)
}

func TestWithCaller_FillsUsageSlot(t *testing.T) {
	slot := &usageSlot{}
	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), usageSlotKey, slot))

	withCaller(req, Caller{Name: "ingest"})
	assert.True(t, slot.ok)
	assert.Equal(t, "ingest", slot.caller.Name)
}

func TestCaller_HasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		scope  string
		want   bool
	}{
		{name: "held", scopes: []string{config.ScopeVerify}, scope: config.ScopeVerify, want: true},
		{name: "not held", scopes: []string{config.ScopeVerify}, scope: config.ScopeEvidence, want: false},
		{name: "admin implies all", scopes: []string{config.ScopeAdmin}, scope: config.ScopeEnroll, want: true},
		{name: "none", scopes: nil, scope: config.ScopeVerify, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Caller{Scopes: tt.scopes}.HasScope(tt.scope))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{header: "Bearer abc", wantToken: "abc", wantOK: true},
		{header: "bearer  abc ", wantToken: "abc", wantOK: true},
		{header: "Basic abc", wantOK: false},
		{header: "Bearer ", wantOK: false},
		{header: "Bearer", wantOK: false},
		{header: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			token, ok := bearerToken(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
