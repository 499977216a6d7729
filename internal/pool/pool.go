// pool.go - Orchestration of the shielded pool operations.
//
// A Pool composes the log reader, key source, proving client, ledger client
// and account store into the fixed pipeline every operation follows:
//
//	read full log -> fetch proving key -> compute proof -> submit
//	-> await confirmation -> commit local state
//
// Local state is committed only after the ledger confirms; any earlier
// failure leaves the store byte-identical and the whole operation can be
// retried from scratch.
package pool

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"shroud/internal/asset"
	"shroud/internal/common"
	"shroud/internal/ledger"
	"shroud/internal/progress"
	"shroud/internal/prover"
	"shroud/internal/wallet"
)

// Pool drives deposit, withdraw and swap pipelines against one deployed
// pool instance.
type Pool struct {
	coreID string

	store  *wallet.Store
	ledger *ledger.Client
	relay  *ledger.Relay
	keys   prover.KeySource
	prover *prover.Client
	log    zerolog.Logger

	mu       sync.Mutex
	tracking map[string]*progress.Tracker
}

// New wires a Pool from its collaborators. coreID is the shared pool object
// targeted by every call.
func New(coreID string, store *wallet.Store, lc *ledger.Client, relay *ledger.Relay, keys prover.KeySource, pc *prover.Client, log zerolog.Logger) *Pool {
	return &Pool{
		coreID:   coreID,
		store:    store,
		ledger:   lc,
		relay:    relay,
		keys:     keys,
		prover:   pc,
		log:      log,
		tracking: make(map[string]*progress.Tracker),
	}
}

// Store exposes the account store for read access and account creation.
func (p *Pool) Store() *wallet.Store {
	return p.store
}

// Progress returns the tracker snapshot of the account's most recent
// operation. The snapshot of a failed operation keeps every stage already
// reached visible.
func (p *Pool) Progress(address string) (progress.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracking[address]
	if !ok {
		return progress.Snapshot{}, false
	}
	return t.Current(), true
}

// begin installs a fresh tracker for the account, enforcing the
// one-operation-per-account rule: two concurrent pipelines would read the
// same pre-operation snapshot and race to extend the same tree position.
func (p *Pool) begin(address string, kind progress.Kind) (*progress.Tracker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.tracking[address]; ok && !prev.Done() {
		return nil, fmt.Errorf("%w: %s", ErrOperationInFlight, address)
	}
	t := progress.NewTracker(kind)
	p.tracking[address] = t
	return t, nil
}

// Receipt reports a committed operation back to the caller.
type Receipt struct {
	Digest    string      `json:"digest"`
	TreeIndex uint64      `json:"treeIndex"`
	Nullifier common.Hash `json:"nullifier"`
}

// operation is one pipeline instance.
type operation struct {
	kind    progress.Kind
	address string
	public  bool
	deltas  map[asset.ID]*big.Int
	submit  func(ctx context.Context, res *prover.Result) (ledger.TxRef, error)
	record  func(digest string) *wallet.HistoryRecord
}

// deltaVector projects the per-asset deltas onto the registry order the
// proving boundary expects.
func deltaVector(deltas map[asset.ID]*big.Int) ([asset.Count]int64, error) {
	var vec [asset.Count]int64
	for id, v := range deltas {
		i, err := asset.Index(id)
		if err != nil {
			return vec, err
		}
		if !v.IsInt64() {
			return vec, fmt.Errorf("delta for %s exceeds the boundary's range: %s", id, v)
		}
		vec[i] = v.Int64()
	}
	return vec, nil
}

// run executes the six pipeline steps in order. Each stage suspends on ctx;
// a failure at any stage before the final commit marks the tracker failed
// and leaves the account store untouched.
func (p *Pool) run(ctx context.Context, op *operation) (*Receipt, error) {
	tracker, err := p.begin(op.address, op.kind)
	if err != nil {
		return nil, err
	}
	receipt, err := p.runStages(ctx, op, tracker)
	if err != nil {
		tracker.Fail(err)
		p.log.Warn().Err(err).Str("address", op.address).Str("kind", string(op.kind)).Msg("operation failed")
		return nil, err
	}
	return receipt, nil
}

func (p *Pool) runStages(ctx context.Context, op *operation, tracker *progress.Tracker) (*Receipt, error) {
	deltas, err := deltaVector(op.deltas)
	if err != nil {
		return nil, err
	}
	snapshot, err := p.store.ExportSnapshot(op.address)
	if err != nil {
		return nil, err
	}

	// Step 1: Replay the full commitment log
	leaves, err := p.ledger.ReadFullLog(ctx)
	if err != nil {
		return nil, err
	}
	tracker.LogFetched(len(leaves))

	// Step 2: Fetch the proving key
	key, err := p.keys.FetchProvingKey(ctx)
	if err != nil {
		return nil, err
	}
	tracker.KeyFetched(len(key))

	// Step 3: Compute the proof
	result, err := p.prover.Compute(ctx, &prover.Request{
		AccountSnapshot: snapshot,
		Leaves:          leaves,
		ProvingKey:      key,
		Deltas:          deltas,
		Public:          op.public,
	})
	if err != nil {
		return nil, err
	}
	tracker.Proved()

	// Step 4: Submit the ledger transaction
	ref, err := op.submit(ctx, result)
	if err != nil {
		return nil, err
	}
	tracker.Submitted(ref.Digest)

	// Step 5: Await confirmation; its LeafInserted event carries the
	// authoritative new tree index. No cancellation past this point: once
	// submitted, the pipeline runs to confirmation or a submission failure.
	conf, err := p.ledger.WaitForTransaction(context.WithoutCancel(ctx), ref.Digest)
	if err != nil {
		return nil, err
	}
	inserted, err := conf.LeafInserted(p.ledger.PackageID())
	if err != nil {
		return nil, err
	}
	tracker.Confirmed(inserted.Index)

	// Step 6: Commit local state
	var record *wallet.HistoryRecord
	if op.record != nil {
		record = op.record(conf.Digest)
	}
	if err := p.store.CommitConfirmedOperation(op.address, inserted.Index, result.AfterNullifier, op.deltas, record); err != nil {
		return nil, err
	}
	p.log.Info().Str("address", op.address).Str("kind", string(op.kind)).Str("digest", conf.Digest).Uint64("treeIndex", inserted.Index).Msg("operation confirmed")
	return &Receipt{
		Digest:    conf.Digest,
		TreeIndex: inserted.Index,
		Nullifier: result.AfterNullifier,
	}, nil
}
