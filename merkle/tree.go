// Package merkle builds the sorted-pair binary Merkle tree committed to the
// verifying authorities and derives inclusion proofs from it.
//
// Tree rules, which must match the verifier bit for bit:
//   - nodes are 32-byte keccak256 hashes;
//   - a parent is keccak256(min(a, b) || max(a, b)), where the pair is ordered
//     by unsigned big-endian comparison (the uint256 comparison on-chain), so
//     proofs carry no left/right flags;
//   - a level with an odd number of nodes carries its last node up unchanged.
package merkle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// Tree is an immutable sorted-pair Merkle tree.
type Tree struct {
	// levels[0] holds the leaves, the last level holds the root.
	levels [][]common.Hash
	index  map[common.Hash]int
}

// New builds a tree over the leaves in the given order. Leaves must be
// unique and at least one must be provided.
func New(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build a tree without leaves")
	}
	t := &Tree{
		index: make(map[common.Hash]int, len(leaves)),
	}
	level := make([]common.Hash, len(leaves))
	for i, l := range leaves {
		if _, dup := t.index[l]; dup {
			return nil, fmt.Errorf("duplicated leaf %x at position %d", l, i)
		}
		t.index[l] = i
		level[i] = l
	}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				break
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the root of the tree.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Proof returns the sibling hashes from the leaf up to the root. It returns
// types.ErrLeafNotFound if the leaf is not part of the tree.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	i, ok := t.index[leaf]
	if !ok {
		return nil, fmt.Errorf("%w: %x", types.ErrLeafNotFound, leaf)
	}
	return t.ProofByIndex(i)
}

// ProofByIndex returns the proof of the leaf at position i.
func (t *Tree) ProofByIndex(i int) ([]common.Hash, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("%w: index %d out of range", types.ErrLeafNotFound, i)
	}
	proof := []common.Hash{}
	for _, level := range t.levels[:len(t.levels)-1] {
		// a carried odd node has no sibling on this level
		if sibling := i ^ 1; sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		i /= 2
	}
	return proof, nil
}

// HashPair combines two nodes, smaller one first.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// ComputeRoot folds the proof over the leaf with the sorted-pair rule.
func ComputeRoot(leaf common.Hash, proof []common.Hash) common.Hash {
	node := leaf
	for _, sibling := range proof {
		node = HashPair(node, sibling)
	}
	return node
}

// Verify reproduces the verifier check: the proof folded over the leaf must
// yield the root.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	return ComputeRoot(leaf, proof) == root
}
