// Package progress tracks how far an in-flight pool operation has advanced.
//
// One Tracker exists per operation and is discarded with it. Pipelines push
// stage transitions in; a concurrent reader (the UI layer) snapshots the
// current state for display. The tracker never fetches data or touches the
// account store.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Kind names the user operation being tracked.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindSwap     Kind = "swap"
)

// Stage is one step of the operation pipeline. Stages only move forward;
// StageFailed is absorbing.
type Stage int

const (
	StageNotStarted Stage = iota
	StageLogFetched
	StageKeyFetched
	StageProved
	StageSubmitted
	StageConfirmed
	StageFailed
)

// String returns the display name of a stage.
func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "not started"
	case StageLogFetched:
		return "log fetched"
	case StageKeyFetched:
		return "proving key fetched"
	case StageProved:
		return "proof computed"
	case StageSubmitted:
		return "transaction submitted"
	case StageConfirmed:
		return "transaction confirmed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Snapshot is a point-in-time copy of the tracker for display. Payloads of
// stages already reached stay visible after a failure so the user can see
// where the operation stopped.
type Snapshot struct {
	Kind      Kind      `json:"kind"`
	Stage     Stage     `json:"stage"`
	StageName string    `json:"stageName"`
	StartedAt time.Time `json:"startedAt"`

	LogSize        int    `json:"logSize,omitempty"`
	ProvingKeySize int    `json:"provingKeySize,omitempty"`
	TxDigest       string `json:"txDigest,omitempty"`
	TreeIndex      uint64 `json:"treeIndex,omitempty"`
	FailureReason  string `json:"failureReason,omitempty"`
}

// Tracker is the per-operation stage machine.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker starts a tracker at StageNotStarted.
func NewTracker(kind Kind) *Tracker {
	return &Tracker{snap: Snapshot{
		Kind:      kind,
		Stage:     StageNotStarted,
		StageName: StageNotStarted.String(),
		StartedAt: time.Now(),
	}}
}

// advance enforces the strictly-forward, no-skip discipline. A violation is
// a programming error in the pipeline, not a runtime condition.
func (t *Tracker) advance(to Stage) {
	if t.snap.Stage == StageFailed {
		panic(fmt.Sprintf("progress: transition %s after failure", to))
	}
	if to != t.snap.Stage+1 {
		panic(fmt.Sprintf("progress: transition %s -> %s skips a stage", t.snap.Stage, to))
	}
	t.snap.Stage = to
	t.snap.StageName = to.String()
}

// LogFetched records the replayed commitment log size.
func (t *Tracker) LogFetched(size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(StageLogFetched)
	t.snap.LogSize = size
}

// KeyFetched records the proving key size.
func (t *Tracker) KeyFetched(size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(StageKeyFetched)
	t.snap.ProvingKeySize = size
}

// Proved records that the proof computation finished.
func (t *Tracker) Proved() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(StageProved)
}

// Submitted records the ledger transaction digest.
func (t *Tracker) Submitted(digest string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(StageSubmitted)
	t.snap.TxDigest = digest
}

// Confirmed records the confirmation's authoritative tree index.
func (t *Tracker) Confirmed(treeIndex uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(StageConfirmed)
	t.snap.TreeIndex = treeIndex
}

// Fail moves the tracker to the absorbing failed state. Stages already
// reached keep their payloads. Failing twice keeps the first reason.
func (t *Tracker) Fail(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Stage == StageFailed {
		return
	}
	t.snap.Stage = StageFailed
	t.snap.StageName = StageFailed.String()
	if reason != nil {
		t.snap.FailureReason = reason.Error()
	}
}

// Current returns a copy of the tracker state.
func (t *Tracker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Done reports whether the operation reached a terminal state.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.Stage == StageConfirmed || t.snap.Stage == StageFailed
}
