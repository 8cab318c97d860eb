package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/logging"
)

// apiKey is one configured credential with its limiters.
type apiKey struct {
	caller   Caller
	digest   [sha256.Size]byte
	limiters []*rate.Limiter // per minute and per day; empty when unlimited
}

// windowLimiter spreads n requests over window and allows a burst of n.
func windowLimiter(n int, window time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), n)
}

// allow takes one token from every limiter of the key or from none of them.
// When refused it returns how long until a retry could pass.
func (k *apiKey) allow(now time.Time) (bool, time.Duration) {
	var (
		held []*rate.Reservation
		wait time.Duration
	)
	for _, l := range k.limiters {
		r := l.ReserveN(now, 1)
		held = append(held, r)
		if d := r.DelayFrom(now); d > wait {
			wait = d
		}
	}
	if wait == 0 {
		return true, 0
	}
	for _, r := range held {
		r.CancelAt(now)
	}
	return false, wait
}

// Gate authenticates bearer API keys, enforces scopes and applies the
// per-key minute and day limits. A Gate without keys admits every request as the
// anonymous caller with all scopes.
type Gate struct {
	keys    []apiKey
	limited func(keyName string)
	log     zerolog.Logger
}

// anonymous is the caller of an open gate.
var anonymous = Caller{
	Name:   "anonymous",
	Scopes: []string{config.ScopeAdmin},
}

// NewGate builds a gate from configured keys. limited is called for every
// request rejected by a limiter and may be nil.
func NewGate(keys []config.APIKey, limited func(keyName string), logger zerolog.Logger) *Gate {
	g := &Gate{limited: limited, log: logger}
	for _, k := range keys {
		ak := apiKey{
			caller: Caller{Name: k.Name, Scopes: slices.Clone(k.Scopes)},
			digest: sha256.Sum256([]byte(k.Key)),
		}
		if k.PerMinute > 0 {
			ak.limiters = append(ak.limiters, windowLimiter(k.PerMinute, time.Minute))
		}
		if k.PerDay > 0 {
			ak.limiters = append(ak.limiters, windowLimiter(k.PerDay, 24*time.Hour))
		}
		g.keys = append(g.keys, ak)
	}
	if g.limited == nil {
		g.limited = func(string) {}
	}
	return g
}

// Open reports whether the gate admits unauthenticated requests.
func (g *Gate) Open() bool {
	return len(g.keys) == 0
}

// Require returns middleware admitting callers that hold scope.
func (g *Gate) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Open() {
				next.ServeHTTP(w, withCaller(r, anonymous))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="popc"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			key := g.lookup(token)
			if key == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="popc", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !key.caller.HasScope(scope) {
				g.log.Warn().
					Str(logging.FieldAPIKey, key.caller.Name).
					Str("scope", scope).
					Msg("scope denied")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if ok, wait := key.allow(time.Now()); !ok {
				g.limited(key.caller.Name)
				w.Header().Set("Retry-After", retryAfter(wait))
				writeError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			next.ServeHTTP(w, withCaller(r, key.caller))
		})
	}
}

// lookup compares digests in constant time and always scans every key.
func (g *Gate) lookup(token string) *apiKey {
	digest := sha256.Sum256([]byte(token))
	var found *apiKey
	for i := range g.keys {
		if subtle.ConstantTimeCompare(digest[:], g.keys[i].digest[:]) == 1 {
			found = &g.keys[i]
		}
	}
	return found
}

// HasScope reports whether c holds scope. The admin scope holds every scope.
func (c Caller) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope) || slices.Contains(c.Scopes, config.ScopeAdmin)
}

// retryAfter renders wait as whole seconds, at least one.
func retryAfter(wait time.Duration) string {
	return strconv.Itoa(max(1, int(math.Ceil(wait.Seconds()))))
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
