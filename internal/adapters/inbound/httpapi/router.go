package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/logging"
	"github.com/sufield/popc/internal/metrics"
	"github.com/sufield/popc/internal/ports"
)

// usageTimeout bounds one background usage write.
const usageTimeout = 5 * time.Second

// Options configures the HTTP boundary. Engine and Gate are required.
type Options struct {
	Engine  ports.Engine
	Gate    *Gate
	Usage   ports.UsageLogger // optional
	Metrics *metrics.Metrics  // optional; /metrics is served when set
	// Runner executes usage writes after the response. Defaults to bg.Async.
	Runner       bg.Runner
	MaxBodyBytes int64
	Logger       zerolog.Logger
	Now          func() time.Time
}

type handler struct {
	engine  ports.Engine
	gate    *Gate
	usage   ports.UsageLogger
	metrics *metrics.Metrics
	runner  bg.Runner
	maxBody int64
	log     zerolog.Logger
	now     func() time.Time
}

// NewHandler builds the chi router:
//
//	POST /v1/verify               scope verify
//	POST /v1/devices              scope enroll
//	POST /v1/devices/{id}/revoke  scope admin
//	GET  /v1/evidence/{id}        scope evidence
//	GET  /healthz
//	GET  /metrics
func NewHandler(opts Options) http.Handler {
	h := &handler{
		engine:  opts.Engine,
		gate:    opts.Gate,
		usage:   opts.Usage,
		metrics: opts.Metrics,
		runner:  opts.Runner,
		maxBody: opts.MaxBodyBytes,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if h.runner == nil {
		h.runner = bg.Async{}
	}
	if h.maxBody <= 0 {
		h.maxBody = config.DefaultMaxBodyBytes
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(peerIdentity)
	r.Use(h.observe)

	r.Get("/healthz", healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(h.gate.Require(config.ScopeVerify)).Post("/verify", h.verify)
		r.With(h.gate.Require(config.ScopeEnroll)).Post("/devices", h.enroll)
		r.With(h.gate.Require(config.ScopeAdmin)).Post("/devices/{id}/revoke", h.revoke)
		r.With(h.gate.Require(config.ScopeEvidence)).Get("/evidence/{id}", h.evidence)
	})
	return r
}

// usageSlot lets the gate report the caller back to observe, which wraps
// the gate and cannot see the request the gate derives.
type usageSlot struct {
	caller Caller
	ok     bool
}

const usageSlotKey contextKey = "usage-slot"

// observe records request metrics and, for authenticated calls, a usage
// event once the response has been written.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		slot := &usageSlot{}
		r = r.WithContext(context.WithValue(r.Context(), usageSlotKey, slot))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := h.now().Sub(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.ObserveRequest(route, status, elapsed)

		if !slot.ok || h.usage == nil {
			return
		}
		ev := domain.UsageEvent{
			KeyName:  slot.caller.Name,
			Route:    route,
			Status:   status,
			At:       start.UTC(),
			Duration: elapsed,
		}
		if id, ok := GetSPIFFEID(r); ok {
			ev.PeerID = id.String()
		}
		h.runner.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
			defer cancel()
			if err := h.usage.LogUsage(ctx, ev); err != nil {
				h.log.Warn().Err(err).
					Str(logging.FieldAPIKey, ev.KeyName).
					Str(logging.FieldPeerID, ev.PeerID).
					Msg("usage not recorded")
			}
		})
	})
}

// recordCaller fills the usage slot of r, when observe installed one.
func recordCaller(r *http.Request, c Caller) {
	if slot, ok := r.Context().Value(usageSlotKey).(*usageSlot); ok {
		slot.caller, slot.ok = c, true
	}
}
