package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shroud/internal/asset"
	"shroud/internal/common"
	"shroud/internal/ledger"
	"shroud/internal/progress"
	"shroud/internal/prover"
	"shroud/internal/wallet"
)

const (
	testPackageID = "0xpool"
	testCoreID    = "0xcore"
	testAddr      = "0x1a2b"
)

// recordingEngine is a scripted proving boundary that captures requests.
type recordingEngine struct {
	mu      sync.Mutex
	last    *prover.Request
	started chan struct{}
	release chan struct{}
	err     error
}

func (e *recordingEngine) Prove(req *prover.Request) (*prover.Result, error) {
	e.mu.Lock()
	e.last = req
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return nil, e.err
	}
	return &prover.Result{
		AfterLeaf:      common.BytesToHash([]byte{0xe1}),
		AfterNullifier: common.BytesToHash([]byte{0xe2}),
		Nullifier:      common.BytesToHash([]byte{0xe3}),
		MerkleRoot:     common.BytesToHash([]byte{0xe4}),
		Proof:          []byte{0xbe, 0xef},
	}, nil
}

func (e *recordingEngine) request() *prover.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// testNode fakes the ledger node: it serves a fixed commitment log, accepts
// submissions and confirms each with the next free leaf index.
type testNode struct {
	t *testing.T

	mu           sync.Mutex
	leafCount    int
	failSubmit   bool
	pendingIndex int
	lastTx       *ledger.Transaction
}

func (n *testNode) leafJSON(index int) map[string]any {
	return map[string]any{
		"type": testPackageID + "::core::LeafInserted",
		"parsedJson": map[string]any{
			"index": fmt.Sprintf("%d", index),
			"value": common.BytesToHash([]byte{0xaa, byte(index)}).Hex(),
		},
	}
}

func (n *testNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))

	n.mu.Lock()
	defer n.mu.Unlock()
	var result any
	switch req.Method {
	case "queryEvents":
		var data []map[string]any
		for i := n.leafCount - 1; i >= 0; i-- {
			data = append(data, n.leafJSON(i))
		}
		result = map[string]any{"data": data, "hasNextPage": false}
	case "submitTransaction":
		if n.failSubmit {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": -1, "message": "rejected"},
			})
			return
		}
		var tx ledger.Transaction
		require.NoError(n.t, json.Unmarshal(req.Params, &tx))
		n.lastTx = &tx
		n.pendingIndex = n.leafCount
		n.leafCount++
		result = map[string]any{"digest": "DTEST"}
	case "getTransaction":
		result = map[string]any{
			"digest": "DTEST",
			"status": "success",
			"events": []any{n.leafJSON(n.pendingIndex)},
		}
	default:
		n.t.Fatalf("unexpected method %s", req.Method)
	}
	raw, err := json.Marshal(result)
	require.NoError(n.t, err)
	json.NewEncoder(w).Encode(map[string]any{"result": json.RawMessage(raw)})
}

// confirmRelaySwap registers the relay submission with the node so the
// confirmation poll finds it.
func (n *testNode) confirmRelaySwap() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingIndex = n.leafCount
	n.leafCount++
}

type harness struct {
	pool   *Pool
	engine *recordingEngine
	node   *testNode
	prover *prover.Client

	mu       sync.Mutex
	lastSwap *ledger.SwapRequest
}

func newHarness(t *testing.T, engine *recordingEngine, initialLeaves int) *harness {
	t.Helper()
	h := &harness{engine: engine, node: &testNode{t: t, leafCount: initialLeaves}}

	nodeSrv := httptest.NewServer(h.node)
	t.Cleanup(nodeSrv.Close)

	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var swap ledger.SwapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&swap))
		h.mu.Lock()
		h.lastSwap = &swap
		h.mu.Unlock()
		h.node.confirmRelaySwap()
		json.NewEncoder(w).Encode(map[string]any{"digest": "DTEST"})
	}))
	t.Cleanup(relaySrv.Close)

	keySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("0xabcd")
	}))
	t.Cleanup(keySrv.Close)

	store, err := wallet.Open(filepath.Join(t.TempDir(), "wallet.db"), testPackageID, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.CreateAccount(testAddr, common.BytesToHash([]byte{0x42}))
	require.NoError(t, err)

	lc := ledger.NewClient(nodeSrv.URL, testPackageID, ledger.WithConfirmationPolling(time.Millisecond, 50))
	relay := ledger.NewRelay(relaySrv.URL, zerolog.Nop())
	pc := prover.NewClient(engine, zerolog.Nop())
	t.Cleanup(pc.Close)
	h.prover = pc

	h.pool = New(testCoreID, store, lc, relay, prover.NewHTTPKeySource(keySrv.URL), pc, zerolog.Nop())
	return h
}

func TestDepositPipeline(t *testing.T) {
	engine := &recordingEngine{}
	h := newHarness(t, engine, 5)

	receipt, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "50")
	require.NoError(t, err)
	require.Equal(t, "DTEST", receipt.Digest)
	require.Equal(t, uint64(5), receipt.TreeIndex)
	require.Equal(t, common.BytesToHash([]byte{0xe2}), receipt.Nullifier)

	// the boundary saw the replayed log, the key, and the signed delta
	req := engine.request()
	require.Len(t, req.Leaves, 5)
	require.Equal(t, common.BytesToHash([]byte{0xaa, 0}), req.Leaves[0])
	require.Equal(t, []byte{0xab, 0xcd}, req.ProvingKey)
	require.True(t, req.Public)
	suiIdx, err := asset.Index(asset.SUI)
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000_000), req.Deltas[suiIdx]) // 50 SUI at 9 decimals

	// the submitted call targets the deposit entry point with the proof args
	require.Equal(t, testPackageID+"::core::deposit", h.node.lastTx.Target)
	require.Equal(t, []string{"0x2::sui::SUI"}, h.node.lastTx.TypeArgs)

	// local state committed only after confirmation
	acc, err := h.pool.Store().Account(testAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(5), *acc.TreeIndex)
	require.Equal(t, common.BytesToHash([]byte{0xe2}), *acc.Nullifier)
	require.Equal(t, int64(50_000_000_000), acc.Balances[asset.SUI].Int64())
	require.Len(t, acc.History, 1)
	require.Equal(t, "deposit", acc.History[0].Type)

	snap, ok := h.pool.Progress(testAddr)
	require.True(t, ok)
	require.Equal(t, progress.StageConfirmed, snap.Stage)
	require.Equal(t, uint64(5), snap.TreeIndex)
}

func TestWithdrawNegatesDelta(t *testing.T) {
	engine := &recordingEngine{}
	h := newHarness(t, engine, 1)

	_, err := h.pool.Deposit(context.Background(), testAddr, asset.USDC, "10")
	require.NoError(t, err)

	_, err = h.pool.Withdraw(context.Background(), testAddr, asset.USDC, "2.5")
	require.NoError(t, err)

	usdcIdx, err := asset.Index(asset.USDC)
	require.NoError(t, err)
	require.Equal(t, int64(-2_500_000), engine.request().Deltas[usdcIdx]) // 2.5 USDC at 6 decimals
	require.True(t, engine.request().Public)
	require.Equal(t, testPackageID+"::core::withdraw", h.node.lastTx.Target)
}

func TestSwapGoesThroughRelay(t *testing.T) {
	engine := &recordingEngine{}
	h := newHarness(t, engine, 3)

	_, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "100")
	require.NoError(t, err)
	h.node.mu.Lock()
	h.node.lastTx = nil
	h.node.mu.Unlock()

	receipt, err := h.pool.Swap(context.Background(), testAddr, asset.SUI, "30", asset.USDC, "25")
	require.NoError(t, err)
	require.Equal(t, uint64(4), receipt.TreeIndex)

	// swaps never reveal the account binding
	req := engine.request()
	require.False(t, req.Public)
	suiIdx, _ := asset.Index(asset.SUI)
	usdcIdx, _ := asset.Index(asset.USDC)
	require.Equal(t, int64(-30_000_000_000), req.Deltas[suiIdx])
	require.Equal(t, int64(25_000_000), req.Deltas[usdcIdx])

	// only proof artifacts and bounds reach the relay
	h.mu.Lock()
	swap := h.lastSwap
	h.mu.Unlock()
	require.NotNil(t, swap)
	require.Equal(t, "0x2::sui::SUI", swap.CoinOut)
	require.Equal(t, "-30000000000", swap.AmountOut, "sold amount goes over the wire as the signed balance change")
	require.Equal(t, "25000000", swap.MinimumReceived)
	require.Equal(t, "0xbeef", swap.Proof)
	require.Nil(t, h.node.lastTx, "swap must not submit from the user's identity")

	acc, err := h.pool.Store().Account(testAddr)
	require.NoError(t, err)
	require.Equal(t, int64(25_000_000), acc.Balances[asset.USDC].Int64())
	require.Equal(t, int64(70_000_000_000), acc.Balances[asset.SUI].Int64())
	require.Len(t, acc.History, 2)
	require.Equal(t, "swap", acc.History[1].Type)
}

func TestSwapRejectsSameAsset(t *testing.T) {
	h := newHarness(t, &recordingEngine{}, 0)
	_, err := h.pool.Swap(context.Background(), testAddr, asset.SUI, "1", asset.SUI, "1")
	require.Error(t, err)
}

func TestSecondOperationRejectedWhileInFlight(t *testing.T) {
	engine := &recordingEngine{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newHarness(t, engine, 0)

	done := make(chan error, 1)
	go func() {
		_, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "1")
		done <- err
	}()
	<-engine.started

	_, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "1")
	require.ErrorIs(t, err, ErrOperationInFlight)

	close(engine.release)
	require.NoError(t, <-done)

	// once the first operation resolved, a new one is admitted
	_, err = h.pool.Deposit(context.Background(), testAddr, asset.SUI, "1")
	require.NoError(t, err)
}

func TestFailureBeforeCommitLeavesStoreUntouched(t *testing.T) {
	engine := &recordingEngine{}
	h := newHarness(t, engine, 2)
	h.node.failSubmit = true

	before, err := h.pool.Store().ExportSnapshot(testAddr)
	require.NoError(t, err)

	_, err = h.pool.Deposit(context.Background(), testAddr, asset.SUI, "10")
	require.ErrorIs(t, err, ErrSubmissionFailed)

	after, err := h.pool.Store().ExportSnapshot(testAddr)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// the tracker keeps the stages already reached
	snap, ok := h.pool.Progress(testAddr)
	require.True(t, ok)
	require.Equal(t, progress.StageFailed, snap.Stage)
	require.Equal(t, 2, snap.LogSize)
	require.NotEmpty(t, snap.FailureReason)

	// the failed operation releases the account for a retry
	h.node.failSubmit = false
	_, err = h.pool.Deposit(context.Background(), testAddr, asset.SUI, "10")
	require.NoError(t, err)
}

func TestProverTeardownMidProofLeavesStoreUntouched(t *testing.T) {
	engine := &recordingEngine{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	defer close(engine.release)
	h := newHarness(t, engine, 2)

	before, err := h.pool.Store().ExportSnapshot(testAddr)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "10")
		done <- err
	}()
	<-engine.started

	// tear the prover down mid-proof: the pipeline fails with a cancellation
	// and the store stays byte-identical
	h.prover.Close()
	require.ErrorIs(t, <-done, ErrProofCancelled)

	after, err := h.pool.Store().ExportSnapshot(testAddr)
	require.NoError(t, err)
	require.Equal(t, before, after)

	snap, ok := h.pool.Progress(testAddr)
	require.True(t, ok)
	require.Equal(t, progress.StageFailed, snap.Stage)
}

func TestProofFailureSurfacesTaxonomy(t *testing.T) {
	engine := &recordingEngine{err: fmt.Errorf("local account state out of sync")}
	h := newHarness(t, engine, 1)

	_, err := h.pool.Deposit(context.Background(), testAddr, asset.SUI, "1")
	require.ErrorIs(t, err, ErrProofComputationFailed)
}

func TestDepositValidatesInput(t *testing.T) {
	h := newHarness(t, &recordingEngine{}, 0)

	_, err := h.pool.Deposit(context.Background(), testAddr, "DOGE", "1")
	require.Error(t, err, "unknown asset")
	_, err = h.pool.Deposit(context.Background(), testAddr, asset.SUI, "0")
	require.Error(t, err, "zero amount")
	_, err = h.pool.Deposit(context.Background(), testAddr, asset.SUI, "-5")
	require.Error(t, err, "negative amount")
	_, err = h.pool.Deposit(context.Background(), "0xmissing", asset.SUI, "1")
	require.ErrorIs(t, err, ErrAccountNotFound)
}
