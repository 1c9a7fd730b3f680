package cometprove_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cp "github.com/giuliop/cometprove"
	"github.com/giuliop/cometprove/testutils"
)

func writeProof(t *testing.T) string {
	t.Helper()
	path, err := testutils.WriteProofFile(t.TempDir(), "proof.json", testutils.MinimalProof)
	require.NoError(t, err)
	return path
}

var minimalProofDecoded = map[string]any{
	"leaf": "0xabc",
	"path": []any{"0x1", "0x2"},
}

func TestProveReportsProven(t *testing.T) {
	for _, proven := range []bool{true, false} {
		v := testutils.NewMockVerifier()
		v.On("SubmitProof", minimalProofDecoded, cp.SubmitOptions{}).
			Return(testutils.NewMockReceipt("0x01", nil), nil).Once()
		v.On("IsProven").Return(proven, nil)

		out, err := cp.Prove(context.Background(), v, writeProof(t))
		require.NoError(t, err)
		assert.Equal(t, cp.Reported, out.State)
		assert.Equal(t, proven, out.Proven)
		assert.Equal(t, "0x01", out.ReceiptID)
		assert.NotEmpty(t, out.RunID)
		assert.NotEmpty(t, out.Digest)
		if proven {
			assert.Equal(t, "Comet is proven!", out.Message())
		} else {
			assert.Equal(t, "Comet is not proven yet", out.Message())
		}

		assert.Equal(t, []string{testutils.EventSubmit, testutils.EventSettle, testutils.EventQuery},
			v.Events())
		assert.False(t, v.QueriedBeforeSettlement())
		v.AssertExpectations(t)
	}
}

func TestProveForwardsAuxTag(t *testing.T) {
	v := testutils.NewMockVerifier()
	v.On("SubmitProof", minimalProofDecoded, cp.SubmitOptions{AuxTag: []byte{0x00}}).
		Return(testutils.NewMockReceipt("0x01", nil), nil).Once()
	v.On("IsProven").Return(true, nil)

	_, err := cp.Prove(context.Background(), v, writeProof(t), cp.WithAuxTag([]byte{0x00}))
	require.NoError(t, err)
	v.AssertExpectations(t)
}

func TestProveMissingFileNeverSubmits(t *testing.T) {
	v := testutils.NewMockVerifier()

	out, err := cp.Prove(context.Background(), v, filepath.Join(t.TempDir(), "proof.json"))
	require.Error(t, err)
	assert.True(t, cp.IsKind(err, cp.ResourceNotFound), "%v", err)
	assert.Equal(t, cp.Failed, out.State)
	assert.Contains(t, err.Error(), "load failed [ResourceNotFound]")

	v.AssertNumberOfCalls(t, "SubmitProof", 0)
	v.AssertNumberOfCalls(t, "IsProven", 0)
	assert.Empty(t, v.Events())
}

func TestProveMalformedArtifactNeverSubmits(t *testing.T) {
	v := testutils.NewMockVerifier()
	path, err := testutils.WriteProofFile(t.TempDir(), "proof.json", `{"leaf": `)
	require.NoError(t, err)

	out, err := cp.Prove(context.Background(), v, path)
	assert.True(t, cp.IsKind(err, cp.MalformedArtifact), "%v", err)
	assert.Equal(t, cp.Failed, out.State)
	v.AssertNumberOfCalls(t, "SubmitProof", 0)
}

func TestProveSubmissionRejected(t *testing.T) {
	for _, test := range []struct {
		name      string
		submitErr error
		waitErr   error
		phase     cp.State
	}{
		{"synchronous", errors.New("execution reverted: access denied"), nil, cp.Loaded},
		{"kinded", cp.NewError(cp.SubmissionRejected, errors.New("bad encoding")), nil, cp.Loaded},
		{"at-settlement", nil, cp.NewError(cp.SubmissionRejected, errors.New("reverted")), cp.Submitted},
		{"unclassified-at-settlement", nil, errors.New("dropped from pool"), cp.Submitted},
	} {
		t.Run(test.name, func(t *testing.T) {
			v := testutils.NewMockVerifier()
			if test.submitErr != nil {
				v.On("SubmitProof", mock.Anything, mock.Anything).Return(nil, test.submitErr)
			} else {
				v.On("SubmitProof", mock.Anything, mock.Anything).
					Return(testutils.NewMockReceipt("0x02", test.waitErr), nil)
			}

			out, err := cp.Prove(context.Background(), v, writeProof(t))
			require.Error(t, err)
			assert.True(t, cp.IsKind(err, cp.SubmissionRejected), "%v", err)
			assert.Equal(t, cp.Failed, out.State)

			var e *cp.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, test.phase, e.Phase)

			v.AssertNumberOfCalls(t, "IsProven", 0)
			assert.NotContains(t, v.Events(), testutils.EventQuery)
		})
	}
}

func TestProveChannelUnavailable(t *testing.T) {
	unreachable := cp.NewError(cp.ChannelUnavailable, errors.New("connection refused"))

	v := testutils.NewMockVerifier()
	v.On("SubmitProof", mock.Anything, mock.Anything).Return(nil, unreachable)
	_, err := cp.Prove(context.Background(), v, writeProof(t))
	assert.True(t, cp.IsKind(err, cp.ChannelUnavailable))

	v = testutils.NewMockVerifier()
	v.On("SubmitProof", mock.Anything, mock.Anything).Return(testutils.NewMockReceipt("0x03", nil), nil)
	v.On("IsProven").Return(false, errors.New("query failed"))
	out, err := cp.Prove(context.Background(), v, writeProof(t))
	assert.True(t, cp.IsKind(err, cp.ChannelUnavailable), "%v", err)
	assert.Equal(t, cp.Failed, out.State)
	assert.Equal(t, "0x03", out.ReceiptID)
}

func TestProveCancelledBeforeSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := testutils.NewMockVerifier()
	_, err := cp.Prove(ctx, v, writeProof(t))
	assert.True(t, cp.IsKind(err, cp.Interrupted))
	v.AssertNumberOfCalls(t, "SubmitProof", 0)
}

func TestProveCancelledWhileSettling(t *testing.T) {
	receipt := testutils.NewMockReceipt("0x04", nil)
	receipt.Block = make(chan struct{})
	defer close(receipt.Block)

	v := testutils.NewMockVerifier()
	v.On("SubmitProof", mock.Anything, mock.Anything).Return(receipt, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := cp.Prove(ctx, v, writeProof(t))
	require.Error(t, err)
	assert.True(t, cp.IsKind(err, cp.Interrupted), "%v", err)
	assert.Contains(t, err.Error(), "0x04")
	assert.Contains(t, err.Error(), "may still settle")
	assert.Equal(t, cp.Failed, out.State)
	assert.Equal(t, "0x04", out.ReceiptID)

	// the submission went out but the query never did
	assert.Equal(t, []string{testutils.EventSubmit}, v.Events())
	v.AssertNumberOfCalls(t, "IsProven", 0)
}

func TestRunIsOneShot(t *testing.T) {
	v := testutils.NewMockVerifier()
	v.On("SubmitProof", mock.Anything, mock.Anything).Return(testutils.NewMockReceipt("0x05", nil), nil)
	v.On("IsProven").Return(true, nil)

	run := cp.NewRun(v)
	assert.Equal(t, cp.Idle, run.State())
	_, err := run.Prove(context.Background(), writeProof(t))
	require.NoError(t, err)
	assert.Equal(t, cp.Reported, run.State())

	_, err = run.Prove(context.Background(), writeProof(t))
	assert.Error(t, err)
	v.AssertNumberOfCalls(t, "SubmitProof", 1)
}

func TestIsProvenIsIdempotent(t *testing.T) {
	v := testutils.NewMockVerifier()
	v.On("SubmitProof", mock.Anything, mock.Anything).Return(testutils.NewMockReceipt("0x06", nil), nil)
	v.On("IsProven").Return(true, nil)

	_, err := cp.Prove(context.Background(), v, writeProof(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		proven, err := v.IsProven(context.Background())
		require.NoError(t, err)
		assert.True(t, proven)
	}
	v.AssertNumberOfCalls(t, "SubmitProof", 1)
	v.AssertNumberOfCalls(t, "IsProven", 4)
}

func TestProveArtifact(t *testing.T) {
	artifact, err := cp.LoadArtifact(writeProof(t))
	require.NoError(t, err)

	v := testutils.NewMockVerifier()
	v.On("SubmitProof", minimalProofDecoded, cp.SubmitOptions{}).
		Return(testutils.NewMockReceipt("0x07", nil), nil)
	v.On("IsProven").Return(false, nil)

	out, err := cp.ProveArtifact(context.Background(), v, artifact)
	require.NoError(t, err)
	assert.Equal(t, cp.Reported, out.State)
	assert.Equal(t, artifact.Source, out.Source)
	assert.Equal(t, artifact.Digest(), out.Digest)
	assert.Equal(t, cp.NotProvenMessage, out.Message())
	assert.Equal(t, []string{testutils.EventSubmit, testutils.EventSettle, testutils.EventQuery}, v.Events())

	v = testutils.NewMockVerifier()
	out, err = cp.ProveArtifact(context.Background(), v, nil)
	assert.True(t, cp.IsKind(err, cp.MalformedArtifact), "%v", err)
	assert.Equal(t, cp.Failed, out.State)
	v.AssertNumberOfCalls(t, "SubmitProof", 0)
}

func TestAtPhase(t *testing.T) {
	_, loadErr := cp.LoadArtifact(filepath.Join(t.TempDir(), "proof.json"))
	err := cp.AtPhase(loadErr, cp.Idle)
	assert.Equal(t, cp.ResourceNotFound, err.Kind)
	assert.Contains(t, err.Error(), "load failed [ResourceNotFound]")
	// the original error is left untouched
	assert.NotContains(t, loadErr.Error(), "load failed")
}
