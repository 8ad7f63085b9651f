package blocksync

import (
	"errors"
	"fmt"

	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
)

const (
	targetIndexNamespace = "sync_target_index"
	targetNodeNamespace  = "sync_target_node"
)

// ErrTargetRootMismatch is returned when remote leaves do not hash to the
// advertised root.
var ErrTargetRootMismatch = errors.New("block sync: target leaves do not match root")

// BuildTargetAccumulator rebuilds a peer's block accumulator from its leaves
// in a throwaway memory backend and checks it against root.
func BuildTargetAccumulator(leaves []types.HashValue, root types.HashValue) (*accumulator.Accumulator, error) {
	backend := store.NewMemoryBackend()
	accStore := accumulator.NewNamedTwoTierStore(backend.Cache, backend.DB, targetIndexNamespace, targetNodeNamespace)
	acc := accumulator.New(accStore)
	got, err := acc.Append(leaves...)
	if err != nil {
		return nil, fmt.Errorf("rebuild target accumulator: %w", err)
	}
	if got != root {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrTargetRootMismatch, got.Short(), root.Short())
	}
	return acc, nil
}

// LeafReader reads leaf n of a block accumulator.
type LeafReader interface {
	GetLeaf(n uint64) (types.HashValue, error)
	NumLeaves() uint64
}

// FindCommonAncestor returns the highest leaf number below both
// accumulators' ends where they hold the same block id.
func FindCommonAncestor(local, target LeafReader) (uint64, types.HashValue, error) {
	n := min(local.NumLeaves(), target.NumLeaves())
	for n > 0 {
		n--
		l, err := local.GetLeaf(n)
		if err != nil {
			return 0, types.HashValue{}, err
		}
		t, err := target.GetLeaf(n)
		if err != nil {
			return 0, types.HashValue{}, err
		}
		if l == t {
			return n, l, nil
		}
	}
	return 0, types.HashValue{}, ErrNoCommonAncestor
}
