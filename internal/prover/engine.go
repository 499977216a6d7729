// engine.go - Local Groth16 implementation of the proving boundary.
//
// Mirrors the pool's circuit: rebuilds the commitment tree from the replayed
// log, derives leaves and nullifiers natively, and produces the proof with
// an externally fetched proving key. The native hash chains in hash.go and
// the in-circuit chains in circuit.go must agree exactly.
package prover

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"

	"shroud/internal/asset"
)

// LocalEngine computes proofs in-process.
type LocalEngine struct {
	log zerolog.Logger

	compileOnce sync.Once
	ccs         constraint.ConstraintSystem
	compileErr  error
}

// NewLocalEngine creates an engine. The circuit is compiled lazily on first
// use and cached for the engine's lifetime.
func NewLocalEngine(log zerolog.Logger) *LocalEngine {
	return &LocalEngine{log: log}
}

func (e *LocalEngine) constraints() (constraint.ConstraintSystem, error) {
	e.compileOnce.Do(func() {
		var circuit StateCircuit
		e.ccs, e.compileErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	})
	return e.ccs, e.compileErr
}

// Prove builds the witness for the balance transition and generates the
// Groth16 proof.
func (e *LocalEngine) Prove(req *Request) (*Result, error) {
	// Step 1: Decode the account snapshot
	snap, err := DecodeSnapshot(req.AccountSnapshot)
	if err != nil {
		return nil, fmt.Errorf("decode account snapshot: %w", err)
	}

	// Step 2: Apply the deltas natively; the ledger's field arithmetic
	// would silently wrap a negative balance, so reject it here
	var before, delta, after [asset.Count]fr.Element
	for i := 0; i < asset.Count; i++ {
		newBal := new(big.Int).Add(snap.Balances[i], big.NewInt(req.Deltas[i]))
		if newBal.Sign() < 0 {
			return nil, fmt.Errorf("insufficient balance for asset %s: %s after delta %d", asset.List[i].ID, snap.Balances[i], req.Deltas[i])
		}
		before[i] = feFromBig(snap.Balances[i])
		delta[i] = feFromInt64(req.Deltas[i])
		after[i] = feFromBig(newBal)
	}

	// Step 3: Rebuild the commitment tree from the full log
	leaves := make([]fr.Element, len(req.Leaves))
	for i, leaf := range req.Leaves {
		leaves[i] = feFromHash(leaf)
	}
	tree, err := NewMerkleTree(leaves)
	if err != nil {
		return nil, err
	}
	root := tree.Root()

	// Step 4: Derive leaves and nullifiers
	address := feFromHash(snap.Address)
	nonce := feFromHash(snap.Nonce)
	beforeLeaf := accountLeaf(address, nonce, before)
	afterLeaf := accountLeaf(address, nonce, after)
	deltaHash := deltaCommitment(delta)
	afterNullifier := hashPair(afterLeaf, nonce)

	var nullifier fr.Element
	pathIndex := uint64(0)
	hasIndex := 0
	if snap.TreeIndex != nil {
		hasIndex = 1
		pathIndex = *snap.TreeIndex
		nullifier = hashPair(beforeLeaf, nonce)
		current, err := tree.Leaf(pathIndex)
		if err != nil {
			return nil, fmt.Errorf("account tree index: %w", err)
		}
		if !current.Equal(&beforeLeaf) {
			return nil, fmt.Errorf("local account state out of sync with leaf %d", pathIndex)
		}
	}
	siblings, err := tree.Proof(pathIndex)
	if err != nil {
		return nil, err
	}

	var publicAddress fr.Element
	if req.Public {
		publicAddress = address
	}
	var aux fr.Element
	if len(req.Aux) > 0 {
		aux = feFromBytes(req.Aux)
	}

	// Step 5: Assemble the witness
	assignment := &StateCircuit{
		MerkleRoot:    root,
		DeltaHash:     deltaHash,
		Nullifier:     nullifier,
		AfterLeaf:     afterLeaf,
		PublicAddress: publicAddress,
		Aux:           aux,
		Address:       address,
		Nonce:         nonce,
		HasIndex:      hasIndex,
	}
	for i := 0; i < asset.Count; i++ {
		assignment.Before[i] = before[i]
		assignment.Delta[i] = delta[i]
		assignment.After[i] = after[i]
	}
	var bit uint64 = pathIndex
	for i := 0; i < TreeDepth; i++ {
		assignment.PathBits[i] = bit & 1
		assignment.Siblings[i] = siblings[i]
		bit >>= 1
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}

	// Step 6: Load the proving key and prove
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(req.ProvingKey)); err != nil {
		return nil, fmt.Errorf("proving key unmarshaling failed: %w", err)
	}
	ccs, err := e.constraints()
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, witness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}

	// Step 7: Serialize public inputs in circuit order
	publicInputs := make([]byte, 0, 6*fr.Bytes)
	for _, el := range []fr.Element{root, deltaHash, nullifier, afterLeaf, publicAddress, aux} {
		b := el.Bytes()
		publicInputs = append(publicInputs, b[:]...)
	}

	e.log.Debug().Int("leaves", len(req.Leaves)).Msg("proof generated")
	return &Result{
		AfterLeaf:      feToHash(afterLeaf),
		AfterNullifier: feToHash(afterNullifier),
		Nullifier:      feToHash(nullifier),
		MerkleRoot:     feToHash(root),
		DeltaHash:      feToHash(deltaHash),
		Address:        feToHash(address),
		Proof:          proofBuf.Bytes(),
		PublicInputs:   publicInputs,
	}, nil
}
