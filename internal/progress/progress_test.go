package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullPipeline(t *testing.T) {
	tr := NewTracker(KindDeposit)
	require.Equal(t, StageNotStarted, tr.Current().Stage)
	require.False(t, tr.Done())

	tr.LogFetched(42)
	tr.KeyFetched(1 << 20)
	tr.Proved()
	tr.Submitted("DIGEST1")
	tr.Confirmed(17)

	snap := tr.Current()
	require.Equal(t, StageConfirmed, snap.Stage)
	require.Equal(t, KindDeposit, snap.Kind)
	require.Equal(t, 42, snap.LogSize)
	require.Equal(t, 1<<20, snap.ProvingKeySize)
	require.Equal(t, "DIGEST1", snap.TxDigest)
	require.Equal(t, uint64(17), snap.TreeIndex)
	require.True(t, tr.Done())
}

func TestFailureKeepsReachedPayloads(t *testing.T) {
	tr := NewTracker(KindSwap)
	tr.LogFetched(5)
	tr.KeyFetched(100)
	tr.Fail(errors.New("proving key mismatch"))

	snap := tr.Current()
	require.Equal(t, StageFailed, snap.Stage)
	require.Equal(t, "proving key mismatch", snap.FailureReason)
	require.Equal(t, 5, snap.LogSize)
	require.Equal(t, 100, snap.ProvingKeySize)
	require.True(t, tr.Done())
}

func TestFailKeepsFirstReason(t *testing.T) {
	tr := NewTracker(KindWithdraw)
	tr.Fail(errors.New("first"))
	tr.Fail(errors.New("second"))
	require.Equal(t, "first", tr.Current().FailureReason)
}

func TestSkippingStagePanics(t *testing.T) {
	tr := NewTracker(KindDeposit)
	tr.LogFetched(1)
	require.Panics(t, func() { tr.Submitted("D") })
}

func TestAdvanceAfterFailurePanics(t *testing.T) {
	tr := NewTracker(KindDeposit)
	tr.Fail(errors.New("boom"))
	require.Panics(t, func() { tr.LogFetched(1) })
}

func TestStageNames(t *testing.T) {
	require.Equal(t, "not started", StageNotStarted.String())
	require.Equal(t, "transaction confirmed", StageConfirmed.String())
	require.Equal(t, "failed", StageFailed.String())
}
