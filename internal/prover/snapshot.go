// snapshot.go - Binary account snapshot exchanged with the proving boundary.
//
// The boundary owns this layout; the wallet store produces it and the engine
// consumes it. Layout, all big-endian:
//
//	[32] address binding
//	[32] spending nonce
//	[32] x Count balances, registry order
//	[ 1] tree-index presence flag
//	[ 8] tree index (only when the flag is 1)
package prover

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"shroud/internal/asset"
	"shroud/internal/common"
)

const (
	snapshotFixedLen = 2*common.HashLength + asset.Count*common.HashLength + 1
	snapshotIndexLen = 8
)

// Snapshot is the decoded form of the account bytes handed to the boundary.
type Snapshot struct {
	Address   common.Hash
	Nonce     common.Hash
	Balances  [asset.Count]*big.Int
	TreeIndex *uint64
}

// Encode serializes the snapshot into the boundary layout. Balances must be
// non-negative and fit 32 bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	size := snapshotFixedLen
	if s.TreeIndex != nil {
		size += snapshotIndexLen
	}
	out := make([]byte, 0, size)
	out = append(out, s.Address[:]...)
	out = append(out, s.Nonce[:]...)
	for i, bal := range s.Balances {
		if bal == nil {
			return nil, fmt.Errorf("balance slot %d is nil", i)
		}
		if bal.Sign() < 0 {
			return nil, fmt.Errorf("balance slot %d is negative", i)
		}
		if bal.BitLen() > 8*common.HashLength {
			return nil, fmt.Errorf("balance slot %d exceeds 32 bytes", i)
		}
		var buf [common.HashLength]byte
		bal.FillBytes(buf[:])
		out = append(out, buf[:]...)
	}
	if s.TreeIndex == nil {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		var idx [snapshotIndexLen]byte
		binary.BigEndian.PutUint64(idx[:], *s.TreeIndex)
		out = append(out, idx[:]...)
	}
	return out, nil
}

// DecodeSnapshot parses boundary-layout account bytes.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) != snapshotFixedLen && len(data) != snapshotFixedLen+snapshotIndexLen {
		return nil, fmt.Errorf("snapshot has %d bytes, want %d or %d", len(data), snapshotFixedLen, snapshotFixedLen+snapshotIndexLen)
	}
	s := &Snapshot{}
	off := 0
	copy(s.Address[:], data[off:off+common.HashLength])
	off += common.HashLength
	copy(s.Nonce[:], data[off:off+common.HashLength])
	off += common.HashLength
	for i := 0; i < asset.Count; i++ {
		s.Balances[i] = new(big.Int).SetBytes(data[off : off+common.HashLength])
		off += common.HashLength
	}
	switch data[off] {
	case 0:
		if len(data) != snapshotFixedLen {
			return nil, fmt.Errorf("trailing bytes after absent tree index")
		}
	case 1:
		if len(data) != snapshotFixedLen+snapshotIndexLen {
			return nil, fmt.Errorf("tree index flag set but index bytes missing")
		}
		idx := binary.BigEndian.Uint64(data[off+1:])
		s.TreeIndex = &idx
	default:
		return nil, fmt.Errorf("invalid tree-index flag %d", data[off])
	}
	return s, nil
}
