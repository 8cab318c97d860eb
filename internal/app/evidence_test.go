package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/evidence"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/internal/translog"
)

func TestGetEvidence_Unknown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.engine.GetEvidence(context.Background(), "missing")
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGetEvidence_Verified(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	policy := h.setPolicy(t, `{"rejectSoftwareKeys":true}`)
	dev := h.enroll(t)
	ctx := context.Background()

	// A couple of unrelated entries so the proof is not trivial.
	for i, a := range []string{"earlier one", "earlier two"} {
		asset := []byte(a)
		out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(int64(i+1)))})
		require.NoError(t, err)
		require.Equal(t, domain.VerdictVerified, out.Verdict)
	}

	asset := []byte("the photo")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(10))})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictVerified, out.Verdict)

	doc, err := h.engine.GetEvidence(ctx, out.ID)
	require.NoError(t, err)

	assert.Equal(t, out.ID, doc.VerificationID)
	assert.Equal(t, domain.VerdictVerified, doc.Verdict)
	assert.Equal(t, out.AssetHash.Hex, doc.Asset.Hash)
	require.NotNil(t, doc.ContentBinding)
	assert.True(t, doc.ContentBinding.Match)
	assert.True(t, doc.Signature.Valid)
	assert.Equal(t, domain.TimestampUnverified, doc.Timestamp.Status)

	require.NotNil(t, doc.Device)
	assert.Equal(t, dev.ID, doc.Device.ID)
	assert.Equal(t, int64(10), doc.Device.PhotoSequence)
	assert.Len(t, doc.CertificateChain, 2)
	require.NotNil(t, doc.Attestation)
	assert.True(t, doc.Attestation.ChainValid)

	require.NotNil(t, doc.Policy)
	assert.Equal(t, policy.ID, doc.Policy.ID)

	require.NotNil(t, doc.Transparency)
	tr := doc.Transparency
	assert.Equal(t, int64(2), tr.LeafIndex)
	assert.Equal(t, int64(3), tr.TreeSize)
	assert.NotEmpty(t, tr.Proof)
	require.NoError(t, translog.Check(tr.Proof, tr.TreeSize, tr.RootHash, tr.LeafIndex, tr.LeafHash))

	require.Len(t, doc.Custody, 3)
	assert.Equal(t, domain.CustodyCaptured, doc.Custody[0].Event)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), doc.Custody[0].At)
	assert.Equal(t, domain.CustodyVerified, doc.Custody[1].Event)
	assert.Equal(t, evidence.ActorEngine, doc.Custody[1].Actor)
	assert.Equal(t, domain.CustodyEvidenceGenerated, doc.Custody[2].Event)
	assert.False(t, doc.Custody[2].At.Before(doc.Custody[1].At))
}

func TestGetEvidence_UnsignedHasNoTransparency(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.engine.Verify(context.Background(), ports.VerifyRequest{Asset: []byte("raw upload")})
	require.NoError(t, err)

	doc, err := h.engine.GetEvidence(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictUnsigned, doc.Verdict)
	assert.Nil(t, doc.Transparency)
	assert.Nil(t, doc.Device)
	assert.Nil(t, doc.ContentBinding)
	assert.Empty(t, doc.CertificateChain)
	assert.Len(t, doc.Custody, 3)
}

func TestGetEvidence_RevokedDeviceStillListed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()

	asset := []byte("photo")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(1))})
	require.NoError(t, err)
	_, err = h.engine.Revoke(ctx, ports.RevokeRequest{DeviceID: dev.ID, Reason: "compromised"})
	require.NoError(t, err)

	doc, err := h.engine.GetEvidence(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVerified, doc.Verdict)
	require.NotNil(t, doc.Device)
	assert.NotNil(t, doc.Device.RevokedAt)
	assert.NotNil(t, doc.Transparency)
}

func TestGetEvidence_SameAssetTwiceKeepsOwnLeaf(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dev := h.enroll(t)
	ctx := context.Background()
	asset := []byte("photo shared twice")

	var ids []string
	for _, seq := range []int64{1, 2} {
		out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, dev.Chain.LeafKey, dev.ID, seqOf(seq))})
		require.NoError(t, err)
		require.Equal(t, domain.VerdictVerified, out.Verdict)
		ids = append(ids, out.ID)
	}

	for i, id := range ids {
		doc, err := h.engine.GetEvidence(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, doc.Transparency)
		tr := doc.Transparency
		assert.Equal(t, int64(i), tr.LeafIndex)
		assert.Equal(t, int64(i+1), tr.TreeSize)
		require.NoError(t, translog.Check(tr.Proof, tr.TreeSize, tr.RootHash, tr.LeafIndex, tr.LeafHash))
	}
}

func TestGetEvidence_LogFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("log unavailable")
	tlog := &mockTransparencyLog{}
	h := newHarness(t, func(d *app.Deps) { d.Log = tlog })
	ctx := context.Background()

	asset := []byte("photo")
	out, err := h.engine.Verify(ctx, ports.VerifyRequest{Asset: asset, Manifest: signedManifest(t, asset, newKey(t), "", nil)})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictVerified, out.Verdict)

	tlog.On("EntryAt", mock.Anything, int64(0)).Return(nil, boom).Once()

	_, err = h.engine.GetEvidence(ctx, out.ID)
	require.ErrorIs(t, err, ports.ErrInternal)
	assert.ErrorIs(t, err, boom)
	tlog.AssertExpectations(t)
}
