package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/attestation"
	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/forensics"
	"github.com/sufield/popc/internal/ports"
)

// Deps are the collaborators of an Engine. Blobs and Metrics are optional.
type Deps struct {
	Devices       ports.DeviceStore
	Policies      ports.PolicyStore
	Verifications ports.VerificationStore
	Log           ports.TransparencyLog
	Blobs         ports.BlobStore
	Metrics       ports.MetricsRecorder

	Attestation *attestation.Verifier
	Analyzer    *forensics.Analyzer
	Pool        *bg.Pool
	Logger      zerolog.Logger

	// HashAlgorithm identifies assets. Defaults to sha256.
	HashAlgorithm domain.HashAlgorithm
	Now           func() time.Time
	NewID         func() string
}

// Engine implements the engine use-cases.
type Engine struct {
	devices       ports.DeviceStore
	policies      ports.PolicyStore
	verifications ports.VerificationStore
	tlog          ports.TransparencyLog
	blobs         ports.BlobStore
	metrics       ports.MetricsRecorder

	attest   *attestation.Verifier
	analyzer *forensics.Analyzer
	pool     *bg.Pool
	log      zerolog.Logger

	hashAlg domain.HashAlgorithm
	now     func() time.Time
	newID   func() string
}

// NewEngine validates deps and fills defaults.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Devices == nil || deps.Policies == nil || deps.Verifications == nil || deps.Log == nil {
		return nil, errors.New("engine requires device, policy, verification and log stores")
	}
	e := &Engine{
		devices:       deps.Devices,
		policies:      deps.Policies,
		verifications: deps.Verifications,
		tlog:          deps.Log,
		blobs:         deps.Blobs,
		metrics:       deps.Metrics,
		attest:        deps.Attestation,
		analyzer:      deps.Analyzer,
		pool:          deps.Pool,
		log:           deps.Logger,
		hashAlg:       domain.NormalizeHashAlgorithm(string(deps.HashAlgorithm)),
		now:           deps.Now,
		newID:         deps.NewID,
	}
	if e.pool == nil {
		e.pool = bg.NewPool(0)
	}
	if e.attest == nil {
		e.attest = attestation.New(attestation.DefaultOptions())
	}
	if e.analyzer == nil {
		e.analyzer = forensics.NewAnalyzer(forensics.DefaultThresholds(), e.pool)
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	return e, nil
}

// activePolicy returns the active policy and its rules. No active policy
// yields zero rules.
func (e *Engine) activePolicy(ctx context.Context) (*domain.Policy, domain.PolicyRules, error) {
	p, err := e.policies.ActivePolicy(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.PolicyRules{}, nil
	}
	if err != nil {
		return nil, domain.PolicyRules{}, internal("load active policy", err)
	}
	rules, err := p.DecodeRules()
	if err != nil {
		return nil, domain.PolicyRules{}, internal("decode active policy", err)
	}
	return p, rules, nil
}

// internal wraps an infrastructure failure for callers.
func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ports.ErrInternal, op, err)
}

type nopMetrics struct{}

func (nopMetrics) ObserveVerification(domain.Verdict, time.Duration) {}
func (nopMetrics) ObserveEnrollment(domain.Platform, bool)           {}

var _ ports.Engine = (*Engine)(nil)
