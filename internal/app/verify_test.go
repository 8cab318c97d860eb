package app_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/crypto"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/manifest"
	"github.com/sufield/popc/internal/ports"
)

func TestVerify_NoManifestIsUnsigned(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: []byte("not an image")})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictUnsigned, out.Verdict)
	require.NotNil(t, out.Heuristics)
	assert.Contains(t, out.Reasons, domain.CodeNoManifest)
	assert.Contains(t, out.Reasons, "exif_missing")
	assert.Equal(t, crypto.SHA256Hex([]byte("not an image")), out.AssetHash.Hex)
	assert.Equal(t, 1, h.store.VerificationCount())
}

func TestVerify_Verified(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	policy := h.setPolicy(t, `{}`)
	dev := h.enroll(t)
	asset := []byte("photo bytes")

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{
		Asset:    asset,
		Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(1)),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictVerified, out.Verdict)
	assert.Equal(t, []string{
		domain.CodeContentBindingOK,
		domain.CodeSignatureOK,
		domain.CodeCertChainOK,
		domain.CodeAttestationPresent,
	}, out.Reasons)
	assert.Equal(t, dev.ID, out.DeviceID)
	assert.Equal(t, policy.ID, out.PolicyID)
	require.NotNil(t, out.LogEntry)
	assert.Equal(t, out.AssetHash.Hex, out.LogEntry.AssetHash)
	assert.Equal(t, crypto.Fingerprint(dev.Chain.Leaf.RawSubjectPublicKeyInfo), out.LogEntry.DeviceCertFingerprint)

	got, err := h.store.GetDevice(context.Background(), dev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.PhotoSequence)

	rec, err := h.store.GetVerification(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVerified, rec.Verdict)
	assert.Equal(t, domain.AlgES256, rec.SignatureAlgorithm)
	assert.True(t, rec.BindingMatch)
	assert.True(t, rec.SignatureValid)
}

func TestVerify_ManifestFailures(t *testing.T) {
	t.Parallel()
	asset := []byte("original photo")
	key := newKey(t)

	wrongKey := func(t *testing.T) []byte {
		m, err := manifest.Bind(asset, domain.HashSHA256, manifest.Claim{})
		require.NoError(t, err)
		require.NoError(t, m.Sign(domain.AlgES256, key))
		other, err := crypto.EncodePublicKey(newKey(t).Public())
		require.NoError(t, err)
		m.Signature.PublicKey = other
		out, err := manifest.Serialize(m)
		require.NoError(t, err)
		return out
	}
	noBinding := func(t *testing.T) []byte {
		m := &manifest.Manifest{Version: manifest.Version, Assertions: map[string]any{"c2pa.actions": []any{"created"}}}
		require.NoError(t, m.Sign(domain.AlgES256, key))
		out, err := manifest.Serialize(m)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name        string
		asset       []byte
		manifest    func(t *testing.T) []byte
		wantVerdict domain.Verdict
		wantReason  string
	}{
		{
			name:        "content changed after signing",
			asset:       []byte("edited photo"),
			manifest:    func(t *testing.T) []byte { return signedManifest(t, asset, key, "", nil) },
			wantVerdict: domain.VerdictTampered,
			wantReason:  domain.CodeContentBindingMismatch,
		},
		{
			name:        "signature from another key",
			asset:       asset,
			manifest:    wrongKey,
			wantVerdict: domain.VerdictInvalid,
			wantReason:  domain.CodeSignatureInvalid,
		},
		{
			name:        "not a manifest",
			asset:       asset,
			manifest:    func(*testing.T) []byte { return []byte("definitely not json") },
			wantVerdict: domain.VerdictInvalid,
			wantReason:  domain.CodeInvalidManifestFormat,
		},
		{
			name:        "no content binding",
			asset:       asset,
			manifest:    noBinding,
			wantVerdict: domain.VerdictUnsigned,
			wantReason:  domain.CodeManifestBindingMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)

			out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: tt.asset, Manifest: tt.manifest(t)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, out.Verdict)
			assert.Contains(t, out.Reasons, tt.wantReason)
			assert.Nil(t, out.LogEntry)
			assert.Equal(t, 1, h.store.VerificationCount())
		})
	}
}

func TestVerify_BindingComparisonIsCaseSensitive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	asset := []byte("photo")
	key := newKey(t)

	m, err := manifest.Bind(asset, domain.HashSHA256, manifest.Claim{})
	require.NoError(t, err)
	m.Assertions[manifest.LabelHashData] = map[string]any{"alg": "sha256", "hash": strings.ToUpper(crypto.SHA256Hex(asset))}
	require.NoError(t, m.Sign(domain.AlgES256, key))
	raw, err := manifest.Serialize(m)
	require.NoError(t, err)

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: raw})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictTampered, out.Verdict)
}

func TestVerify_Replay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	first := []byte("first photo")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: first, Manifest: signedManifest(t, first, dev.Chain.LeafKey, dev.ID, seqOf(5))})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictVerified, out.Verdict)

	tests := []struct {
		name string
		seq  int64
	}{
		{name: "same sequence", seq: 5},
		{name: "older sequence", seq: 3},
	}
	for _, tt := range tests {
		asset := []byte("another photo " + tt.name)
		out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(tt.seq))})
		require.NoError(t, err, tt.name)
		assert.Equal(t, domain.VerdictInvalid, out.Verdict, tt.name)
		assert.Equal(t, []string{domain.CodeReplayDetected}, out.Reasons, tt.name)
	}

	got, err := h.store.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.PhotoSequence)
}

func TestVerify_ConcurrentSameSequenceHasOneWinner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	asset := []byte("contended photo")
	raw := signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(6))

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		verdicts = map[domain.Verdict]int{}
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: raw})
			if !assert.NoError(t, err) {
				return
			}
			if out.Verdict == domain.VerdictInvalid {
				assert.Equal(t, []string{domain.CodeReplayDetected}, out.Reasons)
			}
			mu.Lock()
			verdicts[out.Verdict]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, verdicts[domain.VerdictVerified])
	assert.Equal(t, callers-1, verdicts[domain.VerdictInvalid])
	assert.Equal(t, callers, h.store.VerificationCount())
}

func TestVerify_RevokedDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	_, err := h.engine.Revoke(ctx, ports.RevokeRequest{DeviceID: dev.ID, Reason: "stolen", RevokedBy: "ops"})
	require.NoError(t, err)

	asset := []byte("photo after theft")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(1))})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictRevoked, out.Verdict)
	assert.Equal(t, []string{domain.CodeDeviceRevoked}, out.Reasons)
	assert.Nil(t, out.LogEntry)
}

func TestVerify_ReplayIsReportedBeforeRevocation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	asset := []byte("photo")
	raw := signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(2))
	_, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: raw})
	require.NoError(t, err)
	_, err = h.engine.Revoke(ctx, ports.RevokeRequest{DeviceID: dev.ID})
	require.NoError(t, err)

	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: raw})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInvalid, out.Verdict)
	assert.Equal(t, []string{domain.CodeReplayDetected}, out.Reasons)
}

func TestVerify_DeviceBinding(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	key := newKey(t)

	t.Run("required by policy", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.setPolicy(t, `{"requireDeviceBinding":true}`)

		out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, key, "", nil)})
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictInvalid, out.Verdict)
		assert.Equal(t, []string{domain.CodeDeviceBindingRequired}, out.Reasons)
	})

	t.Run("unbound manifest verifies without policy", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, key, "", nil)})
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictVerified, out.Verdict)
		assert.NotContains(t, out.Reasons, domain.CodeAttestationPresent)
	})

	t.Run("unknown device is noted", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, key, "ghost", seqOf(1))})
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictVerified, out.Verdict)
		assert.Contains(t, out.Reasons, domain.CodeDeviceUnknown)
		require.NotNil(t, out.LogEntry)
	})
}

func TestVerify_BlobSavedOnVerified(t *testing.T) {
	t.Parallel()
	blobs := &mockBlobStore{}
	h := newHarness(t, func(d *app.Deps) { d.Blobs = blobs })
	asset := []byte("photo")

	blobs.On("Put", mock.Anything, crypto.SHA256Hex(asset), asset, "image/jpeg").
		Return("https://cdn.example.com/"+crypto.SHA256Hex(asset), nil).Once()

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{
		Asset:       asset,
		Manifest:    signedManifest(t, asset, newKey(t), "", nil),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVerified, out.Verdict)
	assert.Equal(t, "https://cdn.example.com/"+crypto.SHA256Hex(asset), out.AssetURL)
	blobs.AssertExpectations(t)
}

func TestVerify_InfrastructureFailureWritesNoRecord(t *testing.T) {
	t.Parallel()
	asset := []byte("photo")
	boom := errors.New("disk on fire")

	t.Run("blob store", func(t *testing.T) {
		t.Parallel()
		blobs := &mockBlobStore{}
		blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", boom)
		h := newHarness(t, func(d *app.Deps) { d.Blobs = blobs })

		_, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, newKey(t), "", nil)})
		require.ErrorIs(t, err, ports.ErrInternal)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, h.store.VerificationCount())
	})

	t.Run("verified commit", func(t *testing.T) {
		t.Parallel()
		recs := &mockVerificationStore{}
		recs.On("CommitVerified", mock.Anything, mock.MatchedBy(func(c ports.VerifiedCommit) bool {
			return c.Record.AssetHash == crypto.SHA256Hex(asset) && c.Claim == nil
		})).Return(nil, false, boom)
		h := newHarness(t, func(d *app.Deps) { d.Verifications = recs })

		_, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, newKey(t), "", nil)})
		require.ErrorIs(t, err, ports.ErrInternal)
		assert.ErrorIs(t, err, boom)
		recs.AssertExpectations(t)
		recs.AssertNotCalled(t, "CreateVerification", mock.Anything, mock.Anything)
	})

	t.Run("record store", func(t *testing.T) {
		t.Parallel()
		recs := &mockVerificationStore{}
		recs.On("CreateVerification", mock.Anything, mock.AnythingOfType("*domain.VerificationRecord")).Return(boom)
		h := newHarness(t, func(d *app.Deps) { d.Verifications = recs })

		out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: asset})
		require.ErrorIs(t, err, ports.ErrInternal)
		assert.Nil(t, out)
		recs.AssertNumberOfCalls(t, "CreateVerification", 1)
	})
}

func TestVerify_ForeignKeyCannotClaimDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	asset := []byte("forged photo")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, newKey(t), dev.ID, seqOf(math.MaxInt64))})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInvalid, out.Verdict)
	assert.Equal(t, []string{domain.CodeDeviceKeyMismatch}, out.Reasons)
	assert.Nil(t, out.LogEntry)
	assert.Equal(t, 1, h.store.VerificationCount())

	got, err := h.store.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PhotoSequence)

	genuine := []byte("genuine photo")
	out, err = h.engine.Verify(ctx, ports.VerifyRequest{Asset: genuine, Manifest: signedManifest(t, genuine, dev.Chain.LeafKey, dev.ID, seqOf(2))})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVerified, out.Verdict)
}

func TestVerify_KeyMismatchReportedBeforeReplayAndRevocation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	asset := []byte("photo")
	_, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(4))})
	require.NoError(t, err)
	_, err = h.engine.Revoke(ctx, ports.RevokeRequest{DeviceID: dev.ID})
	require.NoError(t, err)

	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, newKey(t), dev.ID, seqOf(1))})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictInvalid, out.Verdict)
	assert.Equal(t, []string{domain.CodeDeviceKeyMismatch}, out.Reasons)
}

func TestVerify_RetryAfterFailedCommit(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	h := newHarness(t, func(d *app.Deps) {
		f := &failingCommits{VerificationStore: d.Verifications, err: boom}
		f.n.Store(1)
		d.Verifications = f
	})
	dev := h.enroll(t)
	ctx := context.Background()

	asset := []byte("photo")
	req := ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(1))}

	_, err := h.engine.Verify(ctx, req)
	require.ErrorIs(t, err, ports.ErrInternal)
	assert.Zero(t, h.store.VerificationCount())
	got, err := h.store.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PhotoSequence)

	out, err := h.engine.Verify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVerified, out.Verdict)
	assert.Equal(t, 1, h.store.VerificationCount())
	got, err = h.store.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.PhotoSequence)
}

func TestVerify_LostClaimDropsAssetURL(t *testing.T) {
	t.Parallel()
	blobs := &mockBlobStore{}
	rival := &rivalCommit{}
	h := newHarness(t, func(d *app.Deps) {
		d.Blobs = blobs
		rival.VerificationStore = d.Verifications
		d.Verifications = rival
	})
	dev := h.enroll(t)
	asset := []byte("photo")

	blobs.On("Put", mock.Anything, crypto.SHA256Hex(asset), asset, "").
		Return("https://cdn.example.com/"+crypto.SHA256Hex(asset), nil).Once()

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{
		Asset:    asset,
		Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(3)),
	})
	require.NoError(t, err)
	require.NoError(t, rival.err)
	assert.Equal(t, domain.VerdictInvalid, out.Verdict)
	assert.Equal(t, []string{domain.CodeReplayDetected}, out.Reasons)
	assert.Empty(t, out.AssetURL)
	assert.Nil(t, out.LogEntry)

	rec, err := h.store.GetVerification(context.Background(), out.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.Metadata, app.MetaAssetURL)
	assert.Nil(t, rec.LogLeafIndex)
	blobs.AssertExpectations(t)
}

func TestNewEngine_RequiresStores(t *testing.T) {
	t.Parallel()
	_, err := app.NewEngine(app.Deps{})
	require.Error(t, err)
}
