package httpapi

import (
	"context"
	"net/http"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

const (
	callerKey   contextKey = "caller"
	spiffeIDKey contextKey = "spiffe-id"
)

// Caller is the API key a request was authenticated with.
type Caller struct {
	Name   string
	Scopes []string
}

// GetCaller returns the authenticated API key of the request.
func GetCaller(r *http.Request) (Caller, bool) {
	c, ok := r.Context().Value(callerKey).(Caller)
	return c, ok
}

func withCaller(r *http.Request, c Caller) *http.Request {
	recordCaller(r, c)
	return r.WithContext(context.WithValue(r.Context(), callerKey, c))
}

// GetSPIFFEID extracts the mTLS client SPIFFE ID from request context.
// Present only when the listener runs in spiffe mode.
func GetSPIFFEID(r *http.Request) (spiffeid.ID, bool) {
	id, ok := r.Context().Value(spiffeIDKey).(spiffeid.ID)
	return id, ok
}

// WithSPIFFEID adds a SPIFFE ID to the request context.
// This is primarily used for testing.
func WithSPIFFEID(r *http.Request, id spiffeid.ID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), spiffeIDKey, id))
}

// peerIdentity records the client SPIFFE ID of TLS requests. Plain HTTP
// requests pass through untouched; the TLS config has already rejected
// clients without a valid SVID.
func peerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil {
			if id, err := spiffetls.PeerIDFromConnectionState(*r.TLS); err == nil {
				r = WithSPIFFEID(r, id)
			}
		}
		next.ServeHTTP(w, r)
	})
}
