package app_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509/pkix"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/adapters/outbound/inmemory"
	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/manifest"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/internal/testhelpers"
)

var enrollChallenge = []byte("enroll-challenge")

type harness struct {
	store  *inmemory.Store
	engine *app.Engine
}

// newHarness builds an engine over an in-memory store. mut may replace any
// dependency before the engine is constructed.
func newHarness(t *testing.T, mut ...func(*app.Deps)) *harness {
	t.Helper()
	store := inmemory.NewStore()
	var n atomic.Int64
	deps := app.Deps{
		Devices:       store,
		Policies:      store,
		Verifications: store,
		Log:           store,
		Logger:        zerolog.Nop(),
		NewID:         func() string { return fmt.Sprintf("id-%d", n.Add(1)) },
	}
	for _, f := range mut {
		f(&deps)
	}
	engine, err := app.NewEngine(deps)
	require.NoError(t, err)
	return &harness{store: store, engine: engine}
}

func (h *harness) setPolicy(t *testing.T, rules string) *domain.Policy {
	t.Helper()
	p := &domain.Policy{ID: "policy-1", Name: "test", Version: 1, Rules: []byte(rules), IsActive: true}
	require.NoError(t, h.store.SavePolicy(context.Background(), p))
	return p
}

// device is an enrolled Android device and the key it signs with.
type device struct {
	ID    string
	Chain *testhelpers.Chain
}

func androidChain(t *testing.T, securityLevel int) *testhelpers.Chain {
	t.Helper()
	ext := testhelpers.AndroidExtension(t, testhelpers.KeyDescription{
		SecurityLevel: securityLevel,
		Challenge:     enrollChallenge,
		BootState:     0,
		DeviceLocked:  true,
		OSVersion:     140000,
		PatchLevel:    202403,
	})
	return testhelpers.NewChain(t, testhelpers.ChainOptions{Extensions: []pkix.Extension{ext}})
}

func (h *harness) enroll(t *testing.T) device {
	t.Helper()
	return enrollVia(t, h.engine)
}

// signedManifest binds asset to a claim and signs it with key.
func signedManifest(t *testing.T, asset []byte, key *ecdsa.PrivateKey, deviceID string, seq *int64) []byte {
	t.Helper()
	m, err := manifest.Bind(asset, domain.HashSHA256, manifest.Claim{
		DeviceID:   deviceID,
		CapturedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Sequence:   seq,
	})
	require.NoError(t, err)
	require.NoError(t, m.Sign(domain.AlgES256, key))
	out, err := manifest.Serialize(m)
	require.NoError(t, err)
	return out
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}

func seqOf(n int64) *int64 { return &n }

type mockVerificationStore struct {
	mock.Mock
}

func (m *mockVerificationStore) CreateVerification(ctx context.Context, rec *domain.VerificationRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockVerificationStore) CommitVerified(ctx context.Context, c ports.VerifiedCommit) (*domain.TransparencyLogEntry, bool, error) {
	args := m.Called(ctx, c)
	e, _ := args.Get(0).(*domain.TransparencyLogEntry)
	return e, args.Bool(1), args.Error(2)
}

func (m *mockVerificationStore) GetVerification(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*domain.VerificationRecord)
	return rec, args.Error(1)
}

type mockTransparencyLog struct {
	mock.Mock
}

func (m *mockTransparencyLog) AppendEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	args := m.Called(ctx, assetHash, certFingerprint)
	e, _ := args.Get(0).(*domain.TransparencyLogEntry)
	return e, args.Error(1)
}

func (m *mockTransparencyLog) LookupEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	args := m.Called(ctx, assetHash, certFingerprint)
	e, _ := args.Get(0).(*domain.TransparencyLogEntry)
	return e, args.Error(1)
}

func (m *mockTransparencyLog) EntryAt(ctx context.Context, leafIndex int64) (*domain.TransparencyLogEntry, error) {
	args := m.Called(ctx, leafIndex)
	e, _ := args.Get(0).(*domain.TransparencyLogEntry)
	return e, args.Error(1)
}

func (m *mockTransparencyLog) InclusionProof(ctx context.Context, leafIndex, treeSize int64) ([]string, error) {
	args := m.Called(ctx, leafIndex, treeSize)
	p, _ := args.Get(0).([]string)
	return p, args.Error(1)
}

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// failingCommits fails the first n commits before reaching the store.
type failingCommits struct {
	ports.VerificationStore
	n   atomic.Int32
	err error
}

func (f *failingCommits) CommitVerified(ctx context.Context, c ports.VerifiedCommit) (*domain.TransparencyLogEntry, bool, error) {
	if f.n.Add(-1) >= 0 {
		return nil, false, f.err
	}
	return f.VerificationStore.CommitVerified(ctx, c)
}

// rivalCommit lets another record claim the same sequence just before the
// first commit, as a concurrent call would.
type rivalCommit struct {
	ports.VerificationStore
	once sync.Once
	err  error
}

func (r *rivalCommit) CommitVerified(ctx context.Context, c ports.VerifiedCommit) (*domain.TransparencyLogEntry, bool, error) {
	r.once.Do(func() {
		rival := &domain.VerificationRecord{ID: "rival", AssetHash: c.Record.AssetHash, Verdict: domain.VerdictVerified}
		_, _, r.err = r.VerificationStore.CommitVerified(ctx, ports.VerifiedCommit{
			Record:         rival,
			Claim:          c.Claim,
			LogFingerprint: c.LogFingerprint,
		})
	})
	return r.VerificationStore.CommitVerified(ctx, c)
}
