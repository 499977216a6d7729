// tx.go - Construction of pool transactions.
//
// A Transaction is a single call into the pool's core module. Proof fields
// are 256-bit ledger integers; amounts for the public operations are u64 in
// the asset's smallest unit.
package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"shroud/internal/common"
)

// Transaction is one call against the deployed pool.
type Transaction struct {
	Target   string   `json:"target"`
	TypeArgs []string `json:"typeArguments,omitempty"`
	Args     []Arg    `json:"arguments"`
}

// Arg is a typed call argument.
type Arg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// U256Arg encodes a 32-byte hash as a 256-bit integer argument.
func U256Arg(h common.Hash) Arg {
	return Arg{Type: "u256", Value: new(uint256.Int).SetBytes(h[:]).Dec()}
}

// U64Arg encodes a non-negative smallest-unit amount as a u64 argument.
func U64Arg(v *big.Int) (Arg, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return Arg{}, fmt.Errorf("amount %s does not fit u64", v)
	}
	return Arg{Type: "u64", Value: v.String()}, nil
}

// BytesArg encodes raw bytes (the serialized proof) as a vector<u8> argument.
func BytesArg(b []byte) Arg {
	return Arg{Type: "vector<u8>", Value: "0x" + hex.EncodeToString(b)}
}

// ObjectArg references a shared ledger object by ID.
func ObjectArg(id string) Arg {
	return Arg{Type: "object", Value: id}
}

// ProofArgs is the argument block every pool call carries: the merkle root
// the proof was computed against, the nullifier being consumed, the new
// commitment leaf, and the opaque proof bytes.
func ProofArgs(merkleRoot, nullifier, newLeaf common.Hash, proof []byte) []Arg {
	return []Arg{
		U256Arg(merkleRoot),
		U256Arg(nullifier),
		U256Arg(newLeaf),
		BytesArg(proof),
	}
}

// DepositTransaction moves `amount` of the coin into the pool. The amount is
// public; the proof binds it to the depositor's new commitment.
func DepositTransaction(packageID, coreID, coinType string, amount *big.Int, merkleRoot, nullifier, newLeaf common.Hash, proof []byte) (*Transaction, error) {
	amountArg, err := U64Arg(amount)
	if err != nil {
		return nil, err
	}
	args := []Arg{ObjectArg(coreID), amountArg}
	args = append(args, ProofArgs(merkleRoot, nullifier, newLeaf, proof)...)
	return &Transaction{
		Target:   packageID + "::core::deposit",
		TypeArgs: []string{coinType},
		Args:     args,
	}, nil
}

// WithdrawTransaction releases `amount` of the coin from the pool back to
// the caller. The amount is public; the proof shows the shielded balance
// covers it.
func WithdrawTransaction(packageID, coreID, coinType string, amount *big.Int, merkleRoot, nullifier, newLeaf common.Hash, proof []byte) (*Transaction, error) {
	amountArg, err := U64Arg(amount)
	if err != nil {
		return nil, err
	}
	args := []Arg{ObjectArg(coreID), amountArg}
	args = append(args, ProofArgs(merkleRoot, nullifier, newLeaf, proof)...)
	return &Transaction{
		Target:   packageID + "::core::withdraw",
		TypeArgs: []string{coinType},
		Args:     args,
	}, nil
}
