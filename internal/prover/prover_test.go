package prover

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shroud/internal/asset"
	"shroud/internal/common"
)

// fakeEngine is a controllable proving boundary for Client tests.
type fakeEngine struct {
	started chan struct{} // closed when Prove begins, if non-nil
	release chan struct{} // Prove blocks on this, if non-nil
	res     *Result
	err     error
}

func (f *fakeEngine) Prove(req *Request) (*Result, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.res, f.err
}

func TestComputeReturnsEngineResult(t *testing.T) {
	want := &Result{AfterLeaf: common.BytesToHash([]byte{7})}
	client := NewClient(&fakeEngine{res: want}, zerolog.Nop())
	defer client.Close()

	got, err := client.Compute(context.Background(), &Request{})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestComputeWrapsEngineFailure(t *testing.T) {
	client := NewClient(&fakeEngine{err: errors.New("bad witness")}, zerolog.Nop())
	defer client.Close()

	_, err := client.Compute(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrProofFailed)
	require.Contains(t, err.Error(), "bad witness")
}

func TestComputeRejectsConcurrentCalls(t *testing.T) {
	engine := &fakeEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
		res:     &Result{},
	}
	client := NewClient(engine, zerolog.Nop())
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, err := client.Compute(context.Background(), &Request{})
		done <- err
	}()
	<-engine.started

	_, err := client.Compute(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrProverBusy)

	close(engine.release)
	require.NoError(t, <-done)
}

// countingEngine tracks how many Prove calls are live at once.
type countingEngine struct {
	mu      sync.Mutex
	running int
	peak    int
	started chan struct{}
	release chan struct{}
}

func (e *countingEngine) Prove(req *Request) (*Result, error) {
	e.mu.Lock()
	e.running++
	if e.running > e.peak {
		e.peak = e.running
	}
	e.mu.Unlock()
	select {
	case e.started <- struct{}{}:
	default:
	}
	<-e.release
	e.mu.Lock()
	e.running--
	e.mu.Unlock()
	return &Result{}, nil
}

func TestAbandonedComputationStaysExclusive(t *testing.T) {
	engine := &countingEngine{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	client := NewClient(engine, zerolog.Nop())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Compute(ctx, &Request{})
		done <- err
	}()
	<-engine.started
	cancel()
	require.ErrorIs(t, <-done, ErrProofCancelled)

	// the abandoned engine call is still running; the client must not admit
	// a second computation alongside it
	_, err := client.Compute(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrProverBusy)

	close(engine.release)
	require.Eventually(t, func() bool {
		_, err := client.Compute(context.Background(), &Request{})
		return err == nil
	}, time.Second, time.Millisecond)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Equal(t, 1, engine.peak, "engine computations overlapped")
}

func TestComputeCancelledByContext(t *testing.T) {
	engine := &fakeEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(engine.release)
	client := NewClient(engine, zerolog.Nop())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Compute(ctx, &Request{})
		done <- err
	}()
	<-engine.started
	cancel()

	require.ErrorIs(t, <-done, ErrProofCancelled)
}

func TestCloseCancelsPendingCompute(t *testing.T) {
	engine := &fakeEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(engine.release)
	client := NewClient(engine, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := client.Compute(context.Background(), &Request{})
		done <- err
	}()
	<-engine.started
	client.Close()
	client.Close() // idempotent

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrProofCancelled)
	case <-time.After(time.Second):
		t.Fatal("pending compute did not resolve after Close")
	}

	_, err := client.Compute(context.Background(), &Request{})
	require.ErrorIs(t, err, ErrProofCancelled)
}

func TestSnapshotRoundTrip(t *testing.T) {
	idx := uint64(41)
	snap := &Snapshot{
		Address: common.BytesToHash([]byte{0x11}),
		Nonce:   common.BytesToHash([]byte{0x22}),
	}
	for i := 0; i < asset.Count; i++ {
		snap.Balances[i] = big.NewInt(int64(100 + i))
	}
	snap.TreeIndex = &idx

	data, err := snap.Encode()
	require.NoError(t, err)
	again, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, snap.Address, again.Address)
	require.Equal(t, snap.Nonce, again.Nonce)
	require.NotNil(t, again.TreeIndex)
	require.Equal(t, idx, *again.TreeIndex)
	for i := 0; i < asset.Count; i++ {
		require.Zero(t, snap.Balances[i].Cmp(again.Balances[i]), "balance %d", i)
	}

	// same snapshot, same bytes
	data2, err := snap.Encode()
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestSnapshotFreshAccount(t *testing.T) {
	snap := &Snapshot{}
	for i := 0; i < asset.Count; i++ {
		snap.Balances[i] = big.NewInt(0)
	}
	data, err := snap.Encode()
	require.NoError(t, err)
	again, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Nil(t, again.TreeIndex)
}

func TestSnapshotRejectsNegativeBalance(t *testing.T) {
	snap := &Snapshot{}
	for i := 0; i < asset.Count; i++ {
		snap.Balances[i] = big.NewInt(0)
	}
	snap.Balances[2] = big.NewInt(-1)
	_, err := snap.Encode()
	require.Error(t, err)
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	snap := &Snapshot{}
	for i := 0; i < asset.Count; i++ {
		snap.Balances[i] = big.NewInt(0)
	}
	data, err := snap.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(data[:len(data)-1])
	require.Error(t, err)

	bad := append([]byte(nil), data...)
	bad[len(bad)-1] = 2 // invalid presence flag
	_, err = DecodeSnapshot(bad)
	require.Error(t, err)
}

func TestHTTPKeySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("0xdeadbeef")
	}))
	defer srv.Close()

	key, err := NewHTTPKeySource(srv.URL).FetchProvingKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, key)
}

func TestHTTPKeySourceFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
		defer srv.Close()
		_, err := NewHTTPKeySource(srv.URL).FetchProvingKey(context.Background())
		require.ErrorIs(t, err, ErrProvingKeyUnavailable)
	})
	t.Run("not hex", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode("0xzz")
		}))
		defer srv.Close()
		_, err := NewHTTPKeySource(srv.URL).FetchProvingKey(context.Background())
		require.ErrorIs(t, err, ErrProvingKeyUnavailable)
	})
	t.Run("empty key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode("0x")
		}))
		defer srv.Close()
		_, err := NewHTTPKeySource(srv.URL).FetchProvingKey(context.Background())
		require.ErrorIs(t, err, ErrProvingKeyUnavailable)
	})
}
