package wallet

import "shroud/internal/asset"

// HistoryRecord is one confirmed operation in an account's history. Deposits
// and withdrawals fill Asset/Amount; swaps fill the From/To pairs.
type HistoryRecord struct {
	Type      string   `json:"type"`
	Asset     asset.ID `json:"coin,omitempty"`
	Amount    string   `json:"amount,omitempty"`
	From      asset.ID `json:"from,omitempty"`
	To        asset.ID `json:"to,omitempty"`
	AmountOut string   `json:"out,omitempty"`
	AmountIn  string   `json:"in,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Digest    string   `json:"digest"`
}
