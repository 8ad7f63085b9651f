// Package blocksync turns a target block accumulator into ordered batches of
// blocks and collects them into a chain.
package blocksync

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/types"
)

var (
	// ErrUnresolvedBlock is returned when a leaf id is found neither locally
	// nor by the fetcher.
	ErrUnresolvedBlock = errors.New("block sync: unresolved block id")

	// ErrCollectorFinished is returned by a collector used after Finish.
	ErrCollectorFinished = errors.New("block sync: collector already finished")

	// ErrNoCommonAncestor is returned when the target shares no block with
	// the local chain.
	ErrNoCommonAncestor = errors.New("block sync: no common ancestor")
)

// SyncBlockData is one fetched block, its earlier execution result if the
// block was executed before, and the peer that served it. PeerID is empty
// for locally found blocks.
type SyncBlockData struct {
	Block  *block.Block
	Info   *block.BlockInfo
	PeerID peer.ID
}

// FetchedBlock is a block returned by a Fetcher and its origin peer.
type FetchedBlock struct {
	Block  *block.Block
	PeerID peer.ID
}

// Fetcher retrieves blocks by id from the network. It may block on peers and
// owns its own timeout policy.
type Fetcher interface {
	FetchBlocks(ctx context.Context, ids []types.HashValue) ([]FetchedBlock, error)
}

// LocalStore returns one slot per id, in order, nil where the block is not
// stored locally.
type LocalStore interface {
	GetBlocksWithInfo(ids []types.HashValue) ([]*block.BlockWithInfo, error)
}

// Accumulator is the read side of the target block accumulator.
type Accumulator interface {
	GetLeaves(start uint64, reverse bool, max uint64) ([]types.HashValue, error)
	NumLeaves() uint64
}

// Chain is the lineage being extended by a collector.
type Chain interface {
	Apply(b *block.Block) error
	ApplyWithVerifier(b *block.Block, v chain.Verifier) error
	Connect(eb *block.ExecutedBlock) error
	GetTotalDifficulty() (*uint256.Int, error)
	TimeService() chain.TimeService
	FailedBlockStorage() chain.FailedBlockWriter
}

// NetworkService receives peer misbehaviour reports.
type NetworkService interface {
	ReportPeer(peerID peer.ID, change types.ReputationChange)
}

// EventHandle receives block-connected notifications.
type EventHandle interface {
	Handle(event *events.BlockConnected) error
}
