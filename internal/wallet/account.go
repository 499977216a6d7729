// account.go - The local model of a shielded account.
//
// One account exists per external identity. Balances live in the asset's
// smallest unit; TreeIndex and Nullifier are nil until the account's first
// confirmed operation and always change together afterwards.
package wallet

import (
	"fmt"
	"math/big"

	"shroud/internal/asset"
	"shroud/internal/common"
	"shroud/internal/prover"
)

// Account is the persisted shielded account record.
type Account struct {
	// Address is the owning external identity (0x-prefixed hex).
	Address string `json:"address"`
	// Nonce is the secret spending material fixed at creation.
	Nonce common.Hash `json:"nonce"`
	// TreeIndex is the position of the account's latest commitment leaf,
	// nil until the first confirmed operation.
	TreeIndex *uint64 `json:"treeIndex"`
	// LastActiveSeq is the unix-millisecond time of the latest confirmed
	// operation. Advisory only.
	LastActiveSeq *int64 `json:"lastActiveSeq"`
	// Nullifier commits to the balance state after the latest confirmed
	// operation, nil until the first one.
	Nullifier *common.Hash `json:"nullifier"`
	// Balances maps every registry asset to its shielded amount.
	Balances map[asset.ID]*big.Int `json:"balances"`
	// History records confirmed operations, newest last.
	History []HistoryRecord `json:"history,omitempty"`
}

// BoundIdentity derives the fixed-width address binding handed to the
// proving boundary. It is recomputed from the address, never stored.
func BoundIdentity(address string) (common.Hash, error) {
	b, err := common.FromHex(address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid external address %q: %w", address, err)
	}
	if len(b) == 0 || len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid external address %q: %d bytes", address, len(b))
	}
	return common.BytesToHash(b), nil
}

// newAccount initializes a fresh record with every balance at zero.
func newAccount(address string, nonce common.Hash) *Account {
	balances := make(map[asset.ID]*big.Int, asset.Count)
	for _, a := range asset.List {
		balances[a.ID] = new(big.Int)
	}
	return &Account{
		Address:  address,
		Nonce:    nonce,
		Balances: balances,
	}
}

// snapshot assembles the boundary-layout view of the account.
func (a *Account) snapshot() (*prover.Snapshot, error) {
	bound, err := BoundIdentity(a.Address)
	if err != nil {
		return nil, err
	}
	snap := &prover.Snapshot{
		Address:   bound,
		Nonce:     a.Nonce,
		TreeIndex: a.TreeIndex,
	}
	for i, def := range asset.List {
		bal, ok := a.Balances[def.ID]
		if !ok {
			return nil, fmt.Errorf("account %s missing balance for %s", a.Address, def.ID)
		}
		snap.Balances[i] = bal
	}
	return snap, nil
}
