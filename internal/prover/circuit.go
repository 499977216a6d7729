package prover

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"shroud/internal/asset"
)

// StateCircuit proves one shielded balance transition: the account's leaf
// before the operation is in the commitment tree (unless the account is
// fresh), the consumed nullifier derives from that leaf, and the new leaf
// commits to before+delta.
type StateCircuit struct {
	// Public inputs, in the order they are serialized for verification
	MerkleRoot    frontend.Variable `gnark:",public"`
	DeltaHash     frontend.Variable `gnark:",public"`
	Nullifier     frontend.Variable `gnark:",public"`
	AfterLeaf     frontend.Variable `gnark:",public"`
	PublicAddress frontend.Variable `gnark:",public"`
	Aux           frontend.Variable `gnark:",public"`

	// Private inputs
	Address  frontend.Variable
	Nonce    frontend.Variable
	Before   [asset.Count]frontend.Variable
	Delta    [asset.Count]frontend.Variable
	After    [asset.Count]frontend.Variable
	HasIndex frontend.Variable // 1 when the account has a confirmed leaf
	PathBits [TreeDepth]frontend.Variable
	Siblings [TreeDepth]frontend.Variable
}

func (c *StateCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hash2 := func(a, b frontend.Variable) frontend.Variable {
		hasher.Reset()
		hasher.Write(a)
		hasher.Write(b)
		return hasher.Sum()
	}

	// Step 1: Balance transition (after = before + delta, per asset)
	for i := 0; i < asset.Count; i++ {
		api.AssertIsEqual(c.After[i], api.Add(c.Before[i], c.Delta[i]))
	}

	// Step 2: Delta commitment (fold the signed deltas from zero)
	deltaAcc := frontend.Variable(0)
	for i := 0; i < asset.Count; i++ {
		deltaAcc = hash2(deltaAcc, c.Delta[i])
	}
	api.AssertIsEqual(c.DeltaHash, deltaAcc)

	// Step 3: Account leaves (fold H(address, nonce) with each balance)
	prehash := hash2(c.Address, c.Nonce)
	beforeLeaf := prehash
	afterLeaf := prehash
	for i := 0; i < asset.Count; i++ {
		beforeLeaf = hash2(beforeLeaf, c.Before[i])
		afterLeaf = hash2(afterLeaf, c.After[i])
	}
	api.AssertIsEqual(c.AfterLeaf, afterLeaf)

	// Step 4: Nullifier (H(beforeLeaf, nonce); zero for fresh accounts)
	api.AssertIsBoolean(c.HasIndex)
	api.AssertIsEqual(c.Nullifier, api.Mul(c.HasIndex, hash2(beforeLeaf, c.Nonce)))

	// Step 5: Membership (path from beforeLeaf must reach the root when the
	// account has a confirmed leaf; fresh accounts skip the check)
	node := beforeLeaf
	for i := 0; i < TreeDepth; i++ {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.Siblings[i], node)
		right := api.Select(c.PathBits[i], node, c.Siblings[i])
		node = hash2(left, right)
	}
	api.AssertIsEqual(api.Mul(c.HasIndex, api.Sub(node, c.MerkleRoot)), 0)

	// Step 6: Visibility (public operations reveal the address; private ones
	// bind zero instead)
	api.AssertIsEqual(api.Mul(c.PublicAddress, api.Sub(c.PublicAddress, c.Address)), 0)

	return nil
}
