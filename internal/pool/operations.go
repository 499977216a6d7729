// operations.go - The deposit, withdraw and swap entry points.
//
// Amounts arrive as human-entered decimal strings and are shifted into the
// asset's smallest unit. Deposits and withdrawals are public operations (the
// amount is revealed on-chain); swaps are private and go through the relay,
// revealing only proof artifacts.
package pool

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"shroud/internal/asset"
	"shroud/internal/ledger"
	"shroud/internal/progress"
	"shroud/internal/prover"
	"shroud/internal/wallet"
)

// Deposit moves amount of the asset from the external identity into its
// shielded account.
func (p *Pool) Deposit(ctx context.Context, address string, id asset.ID, amount string) (*Receipt, error) {
	def, err := asset.Lookup(id)
	if err != nil {
		return nil, err
	}
	units, err := asset.ParseAmount(id, amount)
	if err != nil {
		return nil, err
	}
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %s", amount)
	}
	op := &operation{
		kind:    progress.KindDeposit,
		address: address,
		public:  true,
		deltas:  map[asset.ID]*big.Int{id: units},
		submit: func(ctx context.Context, res *prover.Result) (ledger.TxRef, error) {
			tx, err := ledger.DepositTransaction(p.ledger.PackageID(), p.coreID, def.CoinType, units, res.MerkleRoot, res.Nullifier, res.AfterLeaf, res.Proof)
			if err != nil {
				return ledger.TxRef{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
			}
			return p.ledger.SubmitTransaction(ctx, tx)
		},
		record: func(digest string) *wallet.HistoryRecord {
			return &wallet.HistoryRecord{Type: string(progress.KindDeposit), Asset: id, Amount: amount, Digest: digest}
		},
	}
	return p.run(ctx, op)
}

// Withdraw releases amount of the asset from the shielded account back to
// the external identity.
func (p *Pool) Withdraw(ctx context.Context, address string, id asset.ID, amount string) (*Receipt, error) {
	def, err := asset.Lookup(id)
	if err != nil {
		return nil, err
	}
	units, err := asset.ParseAmount(id, amount)
	if err != nil {
		return nil, err
	}
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("withdraw amount must be positive, got %s", amount)
	}
	op := &operation{
		kind:    progress.KindWithdraw,
		address: address,
		public:  true,
		deltas:  map[asset.ID]*big.Int{id: new(big.Int).Neg(units)},
		submit: func(ctx context.Context, res *prover.Result) (ledger.TxRef, error) {
			tx, err := ledger.WithdrawTransaction(p.ledger.PackageID(), p.coreID, def.CoinType, units, res.MerkleRoot, res.Nullifier, res.AfterLeaf, res.Proof)
			if err != nil {
				return ledger.TxRef{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
			}
			return p.ledger.SubmitTransaction(ctx, tx)
		},
		record: func(digest string) *wallet.HistoryRecord {
			return &wallet.HistoryRecord{Type: string(progress.KindWithdraw), Asset: id, Amount: amount, Digest: digest}
		},
	}
	return p.run(ctx, op)
}

// Swap sells amountOut of the sold asset for at least minReceived of the
// bought asset. The proof's delta commits to exactly minReceived on the
// bought side, so the bound is structural: a worse fill cannot execute.
func (p *Pool) Swap(ctx context.Context, address string, sold asset.ID, amountOut string, bought asset.ID, minReceived string) (*Receipt, error) {
	if sold == bought {
		return nil, fmt.Errorf("cannot swap %s for itself", sold)
	}
	soldDef, err := asset.Lookup(sold)
	if err != nil {
		return nil, err
	}
	boughtDef, err := asset.Lookup(bought)
	if err != nil {
		return nil, err
	}
	outUnits, err := asset.ParseAmount(sold, amountOut)
	if err != nil {
		return nil, err
	}
	inUnits, err := asset.ParseAmount(bought, minReceived)
	if err != nil {
		return nil, err
	}
	if outUnits.Sign() <= 0 || inUnits.Sign() <= 0 {
		return nil, fmt.Errorf("swap amounts must be positive")
	}
	op := &operation{
		kind:    progress.KindSwap,
		address: address,
		public:  false,
		deltas: map[asset.ID]*big.Int{
			sold:   new(big.Int).Neg(outUnits),
			bought: inUnits,
		},
		submit: func(ctx context.Context, res *prover.Result) (ledger.TxRef, error) {
			// the router's wire shape carries the sold amount as the signed
			// balance change, so it goes negated
			return p.relay.SubmitSwap(ctx, &ledger.SwapRequest{
				CoinIn:          boughtDef.CoinType,
				CoinOut:         soldDef.CoinType,
				AmountOut:       new(big.Int).Neg(outUnits).String(),
				MinimumReceived: inUnits.String(),
				CurrentRoot:     res.MerkleRoot,
				Nullifier:       res.Nullifier,
				NewLeaf:         res.AfterLeaf,
				Proof:           "0x" + hex.EncodeToString(res.Proof),
			})
		},
		record: func(digest string) *wallet.HistoryRecord {
			return &wallet.HistoryRecord{
				Type:      string(progress.KindSwap),
				From:      sold,
				To:        bought,
				AmountOut: amountOut,
				AmountIn:  minReceived,
				Digest:    digest,
			}
		},
	}
	return p.run(ctx, op)
}
