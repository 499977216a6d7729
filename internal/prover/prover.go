// prover.go - Single-flight, cancellable handle to the proving boundary.
//
// The proof computation is CPU-heavy and runs off the caller's control flow
// on a goroutine owned by the Client. The Client admits one computation at a
// time, and teardown always resolves a pending caller with a cancellation
// error rather than leaving it suspended.
package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"shroud/internal/asset"
	"shroud/internal/common"
)

var (
	// ErrProofFailed wraps boundary-level faults.
	ErrProofFailed = errors.New("proof computation failed")
	// ErrProofCancelled is returned when the computation was abandoned
	// through context cancellation or Client teardown.
	ErrProofCancelled = errors.New("proof computation cancelled")
	// ErrProverBusy is returned when a computation is already outstanding.
	// Starting a second one is a caller error, never queued.
	ErrProverBusy = errors.New("a proof computation is already in flight")
)

// Request carries everything the proving boundary needs for one operation.
type Request struct {
	// AccountSnapshot is the serialized shielded account (wallet.ExportSnapshot layout).
	AccountSnapshot []byte
	// Leaves is the complete ascending commitment log.
	Leaves []common.Hash
	// ProvingKey is the raw Groth16 proving key.
	ProvingKey []byte
	// Deltas is the signed per-asset balance change, one slot per registry asset.
	Deltas [asset.Count]int64
	// Public reveals the account binding on-chain (deposit/withdraw); private
	// operations prove against a zero binding.
	Public bool
	// Aux is an optional extra field bound into the public inputs.
	Aux []byte
}

// Result is the proving boundary's output: the new commitment artifacts and
// the opaque proof bytes.
type Result struct {
	AfterLeaf      common.Hash
	AfterNullifier common.Hash
	Nullifier      common.Hash
	MerkleRoot     common.Hash
	DeltaHash      common.Hash
	Address        common.Hash
	Proof          []byte
	PublicInputs   []byte
}

// Engine is the opaque proving boundary. Implementations construct the
// commitment, nullifier and proof from the request; the Client only
// marshals, awaits and cancels.
type Engine interface {
	Prove(req *Request) (*Result, error)
}

// Client owns at most one live computation against an Engine.
type Client struct {
	engine Engine
	log    zerolog.Logger

	mu   sync.Mutex
	busy bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an engine in a single-flight handle.
func NewClient(engine Engine, log zerolog.Logger) *Client {
	return &Client{
		engine: engine,
		log:    log,
		closed: make(chan struct{}),
	}
}

type outcome struct {
	res *Result
	err error
}

// Compute runs the engine on the client's background goroutine and suspends
// the caller until a result, a failure, ctx cancellation, or teardown.
// After cancellation the abandoned computation's result is discarded; the
// account store has not been touched at this point, so retrying from scratch
// is always safe. The abandoned engine call keeps running until it returns,
// and the client stays busy (ErrProverBusy) for that whole time: at most one
// engine computation is ever live per client.
func (c *Client) Compute(ctx context.Context, req *Request) (*Result, error) {
	select {
	case <-c.closed:
		return nil, fmt.Errorf("%w: prover closed", ErrProofCancelled)
	default:
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrProverBusy
	}
	c.busy = true
	c.mu.Unlock()

	// busy is cleared by the worker goroutine, not the caller: an abandoned
	// computation keeps burning CPU until the engine returns, so a new one
	// must not be admitted before then.
	ch := make(chan outcome, 1)
	go func() {
		res, err := c.engine.Prove(req)
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProofFailed, out.err)
		}
		c.log.Debug().Int("leaves", len(req.Leaves)).Bool("public", req.Public).Msg("proof computed")
		return out.res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrProofCancelled, ctx.Err())
	case <-c.closed:
		return nil, fmt.Errorf("%w: prover closed", ErrProofCancelled)
	}
}

// Close tears the client down. A pending Compute resolves immediately with
// ErrProofCancelled; the background computation is abandoned and its result
// discarded. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
