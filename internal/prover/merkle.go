// merkle.go - Fixed-depth commitment tree for membership paths.
//
// The ledger's commitment structure is a depth-20 binary MiMC tree filled
// left to right with zero-valued empty subtrees. The engine rebuilds it from
// the replayed log to derive the root and the membership path for the
// account's current leaf.
package prover

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// TreeDepth is the height of the commitment tree; capacity is 1<<TreeDepth
// leaves.
const TreeDepth = 20

// zeroHashes[i] is the hash of an empty subtree of height i.
var zeroHashes = func() [TreeDepth + 1]fr.Element {
	var zh [TreeDepth + 1]fr.Element
	for i := 1; i <= TreeDepth; i++ {
		zh[i] = hashPair(zh[i-1], zh[i-1])
	}
	return zh
}()

// MerkleTree is the in-memory commitment tree built from the full log.
type MerkleTree struct {
	// levels[0] holds the leaves; levels[TreeDepth] holds the root.
	levels [TreeDepth + 1][]fr.Element
}

// NewMerkleTree builds the tree over the given leaves in order.
func NewMerkleTree(leaves []fr.Element) (*MerkleTree, error) {
	if len(leaves) > 1<<TreeDepth {
		return nil, fmt.Errorf("too many leaves: %d exceeds tree capacity %d", len(leaves), 1<<TreeDepth)
	}
	t := &MerkleTree{}
	t.levels[0] = append([]fr.Element(nil), leaves...)
	for lvl := 0; lvl < TreeDepth; lvl++ {
		below := t.levels[lvl]
		width := (len(below) + 1) / 2
		above := make([]fr.Element, width)
		for i := 0; i < width; i++ {
			left := t.node(lvl, 2*i)
			right := t.node(lvl, 2*i+1)
			above[i] = hashPair(left, right)
		}
		t.levels[lvl+1] = above
	}
	return t, nil
}

// node returns the tree node at a level, substituting the empty-subtree
// hash beyond the populated width.
func (t *MerkleTree) node(level, index int) fr.Element {
	if index < len(t.levels[level]) {
		return t.levels[level][index]
	}
	return zeroHashes[level]
}

// Root returns the tree root.
func (t *MerkleTree) Root() fr.Element {
	if len(t.levels[TreeDepth]) == 0 {
		return zeroHashes[TreeDepth]
	}
	return t.levels[TreeDepth][0]
}

// Leaf returns the leaf value at an index.
func (t *MerkleTree) Leaf(index uint64) (fr.Element, error) {
	if index >= uint64(len(t.levels[0])) {
		return fr.Element{}, fmt.Errorf("leaf %d out of range (%d leaves)", index, len(t.levels[0]))
	}
	return t.levels[0][index], nil
}

// Proof returns the sibling path for a leaf, bottom-up. The i-th path bit of
// the index picks the side: bit set means the leaf's ancestor is the right
// child at level i.
func (t *MerkleTree) Proof(index uint64) ([TreeDepth]fr.Element, error) {
	var siblings [TreeDepth]fr.Element
	if index >= 1<<TreeDepth {
		return siblings, fmt.Errorf("leaf index %d out of range", index)
	}
	pos := int(index)
	for lvl := 0; lvl < TreeDepth; lvl++ {
		siblings[lvl] = t.node(lvl, pos^1)
		pos >>= 1
	}
	return siblings, nil
}
