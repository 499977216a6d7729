// Package asset defines the fixed registry of pool assets.
//
// The registry order is part of the protocol: account snapshots and proof
// deltas carry one slot per asset in exactly this order, so the list must
// never be reordered once a pool is deployed.
package asset

import (
	"fmt"
	"math/big"
	"strings"
)

// ID identifies a supported asset.
type ID string

const (
	SUI  ID = "SUI"
	USDC ID = "USDC"
	WAL  ID = "WAL"
	BNB  ID = "BNB"
	BTC  ID = "BTC"
)

// Count is the number of supported assets; snapshot and delta vectors have
// exactly this many slots.
const Count = 5

// Asset describes one supported asset.
type Asset struct {
	ID       ID
	Name     string
	Decimals int
	CoinType string
}

// List is the canonical registry order.
var List = [Count]Asset{
	{ID: SUI, Name: "Sui", Decimals: 9, CoinType: "0x2::sui::SUI"},
	{ID: USDC, Name: "USD Coin", Decimals: 6, CoinType: "0xa1ec7fc00a6f40db9693ad1415d0c193ad3906494428cf252621037bd7117e29::usdc::USDC"},
	{ID: WAL, Name: "Walrus", Decimals: 9, CoinType: "0x8190b041122eb492bf63cb464476bd68c6b7e570a4079645a8b28732b6197a82::wal::WAL"},
	{ID: BNB, Name: "Binance Coin", Decimals: 9, CoinType: "0x700de8dea1aac1de7531e9d20fc2568b12d74369f91b7fad3abc1c4f40396e52::bnb::BNB"},
	{ID: BTC, Name: "Bitcoin", Decimals: 9, CoinType: "0x700de8dea1aac1de7531e9d20fc2568b12d74369f91b7fad3abc1c4f40396e52::btc::BTC"},
}

var byID = func() map[ID]Asset {
	m := make(map[ID]Asset, Count)
	for _, a := range List {
		m[a.ID] = a
	}
	return m
}()

var indexByID = func() map[ID]int {
	m := make(map[ID]int, Count)
	for i, a := range List {
		m[a.ID] = i
	}
	return m
}()

// Lookup returns the asset for an identifier.
func Lookup(id ID) (Asset, error) {
	a, ok := byID[id]
	if !ok {
		return Asset{}, fmt.Errorf("unknown asset %q", id)
	}
	return a, nil
}

// Index returns the registry slot of an asset identifier.
func Index(id ID) (int, error) {
	i, ok := indexByID[id]
	if !ok {
		return 0, fmt.Errorf("unknown asset %q", id)
	}
	return i, nil
}

// ParseAmount converts a human-entered decimal string into the asset's
// smallest unit, flooring any excess fractional digits. Grouping commas are
// tolerated ("1,250.5").
func ParseAmount(id ID, amount string) (*big.Int, error) {
	a, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	s := strings.ReplaceAll(strings.TrimSpace(amount), ",", "")
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" || strings.Count(s, ".") > 1 {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
	}
	whole, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		whole, frac = s[:dot], s[dot+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > a.Decimals {
		frac = frac[:a.Decimals] // floor
	}
	frac += strings.Repeat("0", a.Decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// FormatAmount renders a smallest-unit value as a decimal string in the
// asset's display units.
func FormatAmount(id ID, v *big.Int) (string, error) {
	a, err := Lookup(id)
	if err != nil {
		return "", err
	}
	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}
	digits := abs.String()
	if len(digits) <= a.Decimals {
		digits = strings.Repeat("0", a.Decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-a.Decimals]
	frac := strings.TrimRight(digits[len(digits)-a.Decimals:], "0")
	if frac == "" {
		return sign + whole, nil
	}
	return sign + whole + "." + frac, nil
}
