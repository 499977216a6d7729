// hash.go - Native MiMC helpers shared by the local engine.
//
// Leaf, nullifier and delta hashes are two-to-one MiMC chains over BN254.
// The in-circuit gadget (circuit.go) computes the same chains; the two must
// stay in lockstep or proofs stop verifying.
package prover

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"shroud/internal/asset"
	"shroud/internal/common"
)

// hashPair computes MiMC(a, b).
func hashPair(a, b fr.Element) fr.Element {
	h := mimc.NewMiMC()
	ab := a.Bytes()
	bb := b.Bytes()
	h.Write(ab[:])
	h.Write(bb[:])
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// feFromBytes reduces big-endian bytes into the scalar field.
func feFromBytes(b []byte) fr.Element {
	var el fr.Element
	el.SetBytes(b)
	return el
}

// feFromHash reduces a 32-byte hash into the scalar field.
func feFromHash(h common.Hash) fr.Element {
	return feFromBytes(h[:])
}

// feToHash serializes a field element as a 32-byte big-endian hash.
func feToHash(el fr.Element) common.Hash {
	return common.Hash(el.Bytes())
}

// accountLeaf folds the address/nonce binding and every balance into the
// account's commitment leaf: fold(MiMC(address, nonce), balances).
func accountLeaf(address, nonce fr.Element, balances [asset.Count]fr.Element) fr.Element {
	acc := hashPair(address, nonce)
	for _, b := range balances {
		acc = hashPair(acc, b)
	}
	return acc
}

// deltaCommitment folds the signed per-asset deltas into one hash,
// starting from zero.
func deltaCommitment(deltas [asset.Count]fr.Element) fr.Element {
	var acc fr.Element
	for _, d := range deltas {
		acc = hashPair(acc, d)
	}
	return acc
}

// feFromBig maps a possibly-negative integer into the field.
func feFromBig(v *big.Int) fr.Element {
	var el fr.Element
	el.SetBigInt(v)
	return el
}

// feFromInt64 maps a signed delta into the field.
func feFromInt64(v int64) fr.Element {
	var el fr.Element
	el.SetInt64(v)
	return el
}
