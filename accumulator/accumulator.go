package accumulator

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/datatrails/go-datatrails-merklelog/mmr"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/storage"
	"github.com/mezonai/chainsync/types"
	"golang.org/x/crypto/sha3"
)

var (
	ErrLeafOutOfRange = errors.New("leaf index out of range")
	ErrRootMismatch   = fmt.Errorf("%w: accumulator root does not match stored info", storage.ErrCorruption)
)

// Info is the persisted summary an accumulator is reopened from.
type Info struct {
	RootHash      types.HashValue   `json:"root_hash"`
	FrontierPeaks []types.HashValue `json:"frontier_peaks"`
	NumLeaves     uint64            `json:"num_leaves"`
	NumNodes      uint64            `json:"num_nodes"`
}

// Accumulator is a Merkle mountain range over an ordered sequence of hashes
// (block ids). Nodes are persisted through a Store.
type Accumulator struct {
	mu        sync.RWMutex
	store     *Store
	numNodes  uint64
	numLeaves uint64
	root      types.HashValue
}

// New returns an empty accumulator over store.
func New(store *Store) *Accumulator {
	return &Accumulator{store: store}
}

// Open reopens an accumulator from info and checks the stored peaks against
// its root.
func Open(store *Store, info Info) (*Accumulator, error) {
	if info.NumNodes == 0 {
		return New(store), nil
	}
	if mmr.LeafCount(info.NumNodes) != info.NumLeaves {
		return nil, fmt.Errorf("%w: %d nodes cannot hold %d leaves", storage.ErrCorruption, info.NumNodes, info.NumLeaves)
	}

	acc := &Accumulator{store: store, numNodes: info.NumNodes, numLeaves: info.NumLeaves}
	root, err := acc.computeRoot()
	if err != nil {
		return nil, err
	}
	if root != info.RootHash {
		return nil, fmt.Errorf("%w: computed %s, stored %s", ErrRootMismatch, root.Short(), info.RootHash.Short())
	}
	acc.root = root
	return acc, nil
}

// appender adapts the store to mmr.NodeAppender, buffering the nodes created
// by one Append call until they are committed together.
type appender struct {
	acc     *Accumulator
	size    uint64
	leaf    types.HashValue
	pending map[uint64]*Node
	entries []Entry
}

func (a *appender) Get(i uint64) ([]byte, error) {
	if n, ok := a.pending[i]; ok {
		h := n.Hash()
		return h[:], nil
	}
	n, err := a.acc.store.Get(NodeIndex(i))
	if err != nil {
		return nil, err
	}
	h := n.Hash()
	return h[:], nil
}

func (a *appender) Append(value []byte) (uint64, error) {
	i := a.size

	var node *Node
	height := mmr.IndexHeight(i)
	if height == 0 {
		node = NewLeafNode(NodeIndex(i), a.leaf)
	} else {
		left, err := a.hashAt(i - (uint64(1) << height))
		if err != nil {
			return 0, err
		}
		right, err := a.hashAt(i - 1)
		if err != nil {
			return 0, err
		}
		node = NewInternalNode(NodeIndex(i), left, right)
	}

	if h := node.Hash(); !bytes.Equal(h[:], value) {
		return 0, fmt.Errorf("node %d hash mismatch: built %s, appended %x", i, h.Short(), value)
	}

	a.pending[i] = node
	a.entries = append(a.entries, Entry{Index: NodeIndex(i), Node: node})
	a.size++
	return a.size, nil
}

func (a *appender) hashAt(i uint64) (types.HashValue, error) {
	raw, err := a.Get(i)
	if err != nil {
		return types.HashValue{}, err
	}
	return types.HashFromSlice(raw)
}

// Append adds leaves in order and returns the new root. Nothing is visible
// until every node created by the call has been persisted.
func (a *Accumulator) Append(leaves ...types.HashValue) (types.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(leaves) == 0 {
		return a.root, nil
	}

	app := &appender{
		acc:     a,
		size:    a.numNodes,
		pending: make(map[uint64]*Node),
	}
	hasher := sha3.New256()
	for _, leaf := range leaves {
		app.leaf = leaf
		leafHash := LeafHash(leaf)
		if _, err := mmr.AddHashedLeaf(app, hasher, leafHash[:]); err != nil {
			return types.HashValue{}, fmt.Errorf("append leaf %s: %w", leaf.Short(), err)
		}
	}

	if err := a.store.SaveBatch(app.entries); err != nil {
		return types.HashValue{}, fmt.Errorf("persist accumulator nodes: %w", err)
	}

	prevNodes, prevLeaves := a.numNodes, a.numLeaves
	a.numNodes = app.size
	a.numLeaves += uint64(len(leaves))
	root, err := a.computeRoot()
	if err != nil {
		a.numNodes, a.numLeaves = prevNodes, prevLeaves
		return types.HashValue{}, err
	}
	a.root = root

	logx.Debug("ACCUMULATOR", fmt.Sprintf("appended %d leaves, num_leaves=%d root=%s", len(leaves), a.numLeaves, root.Short()))
	return root, nil
}

// peakHashes must be called with the lock held.
func (a *Accumulator) peakHashes() ([]types.HashValue, error) {
	if a.numNodes == 0 {
		return nil, nil
	}
	positions := mmr.Peaks(a.numNodes)
	if positions == nil {
		return nil, fmt.Errorf("%w: invalid accumulator size %d", storage.ErrCorruption, a.numNodes)
	}
	peaks := make([]types.HashValue, len(positions))
	for i, pos := range positions {
		// Peaks reports one-based positions
		node, err := a.store.Get(NodeIndex(pos - 1))
		if err != nil {
			return nil, err
		}
		peaks[i] = node.Hash()
	}
	return peaks, nil
}

func (a *Accumulator) computeRoot() (types.HashValue, error) {
	peaks, err := a.peakHashes()
	if err != nil {
		return types.HashValue{}, err
	}
	return BagPeaks(peaks), nil
}

// BagPeaks folds peak hashes right to left into a single root. An empty
// accumulator has the zero root.
func BagPeaks(peaks []types.HashValue) types.HashValue {
	if len(peaks) == 0 {
		return types.ZeroHash
	}
	root := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		root = types.Sha3(peaks[i][:], root[:])
	}
	return root
}

func (a *Accumulator) NumLeaves() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.numLeaves
}

func (a *Accumulator) NumNodes() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.numNodes
}

func (a *Accumulator) RootHash() types.HashValue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.root
}

func (a *Accumulator) Info() (Info, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	peaks, err := a.peakHashes()
	if err != nil {
		return Info{}, err
	}
	return Info{
		RootHash:      a.root,
		FrontierPeaks: peaks,
		NumLeaves:     a.numLeaves,
		NumNodes:      a.numNodes,
	}, nil
}

// GetLeaf returns the value appended at leafIndex.
func (a *Accumulator) GetLeaf(leafIndex uint64) (types.HashValue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.leafLocked(leafIndex)
}

func (a *Accumulator) leafLocked(leafIndex uint64) (types.HashValue, error) {
	if leafIndex >= a.numLeaves {
		return types.HashValue{}, fmt.Errorf("%w: %d >= %d", ErrLeafOutOfRange, leafIndex, a.numLeaves)
	}
	node, err := a.store.Get(NodeIndex(mmr.MMRIndex(leafIndex)))
	if err != nil {
		return types.HashValue{}, err
	}
	if !node.IsLeaf() {
		return types.HashValue{}, fmt.Errorf("%w: node at leaf %d is %s", storage.ErrCorruption, leafIndex, node.Kind)
	}
	return node.Value, nil
}

// GetLeaves returns up to max leaves starting at start, walking towards the
// head, or towards genesis when reverse is set. A start past the last leaf
// yields an empty result.
func (a *Accumulator) GetLeaves(start uint64, reverse bool, max uint64) ([]types.HashValue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if start >= a.numLeaves || max == 0 {
		return nil, nil
	}

	var count uint64
	if reverse {
		count = min(max, start+1)
	} else {
		count = min(max, a.numLeaves-start)
	}

	leaves := make([]types.HashValue, 0, count)
	for n := uint64(0); n < count; n++ {
		idx := start + n
		if reverse {
			idx = start - n
		}
		leaf, err := a.leafLocked(idx)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// Proof shows that a leaf is committed by an accumulator root.
type Proof struct {
	LeafIndex uint64            `json:"leaf_index"`
	Siblings  []types.HashValue `json:"siblings"`
	Peaks     []types.HashValue `json:"peaks"`
	NumNodes  uint64            `json:"num_nodes"`
}

type storeGetter struct {
	store *Store
}

func (g storeGetter) Get(i uint64) ([]byte, error) {
	n, err := g.store.Get(NodeIndex(i))
	if err != nil {
		return nil, err
	}
	h := n.Hash()
	return h[:], nil
}

func (a *Accumulator) GetProof(leafIndex uint64) (*Proof, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if leafIndex >= a.numLeaves {
		return nil, fmt.Errorf("%w: %d >= %d", ErrLeafOutOfRange, leafIndex, a.numLeaves)
	}

	path, err := mmr.InclusionProof(storeGetter{a.store}, a.numNodes-1, mmr.MMRIndex(leafIndex))
	if err != nil {
		return nil, fmt.Errorf("inclusion proof for leaf %d: %w", leafIndex, err)
	}
	siblings := make([]types.HashValue, len(path))
	for i, p := range path {
		if siblings[i], err = types.HashFromSlice(p); err != nil {
			return nil, err
		}
	}

	peaks, err := a.peakHashes()
	if err != nil {
		return nil, err
	}
	return &Proof{LeafIndex: leafIndex, Siblings: siblings, Peaks: peaks, NumNodes: a.numNodes}, nil
}

// VerifyProof reports whether proof shows leaf under root.
func VerifyProof(root, leaf types.HashValue, proof *Proof) bool {
	if proof == nil || BagPeaks(proof.Peaks) != root {
		return false
	}

	path := make([][]byte, len(proof.Siblings))
	for i := range proof.Siblings {
		path[i] = proof.Siblings[i][:]
	}
	leafHash := LeafHash(leaf)
	peak, err := types.HashFromSlice(mmr.IncludedRoot(sha3.New256(), mmr.MMRIndex(proof.LeafIndex), leafHash[:], path))
	if err != nil {
		return false
	}

	for _, p := range proof.Peaks {
		if p == peak {
			return true
		}
	}
	return false
}
