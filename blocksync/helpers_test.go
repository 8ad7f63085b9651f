package blocksync

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
	"github.com/stretchr/testify/require"
)

const testPeer = peer.ID("peer-a")

type testChain struct {
	chain    *chain.BlockChain
	storage  *chain.Storage
	accStore *accumulator.Store
	backend  *store.Backend
	clock    *chain.MockTimeService
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	backend := store.NewMemoryBackend()
	st := chain.NewBackendStorage(backend)
	clock := chain.NewMockTimeService(1000)
	accStore := accumulator.NewTwoTierStore(backend.Cache, backend.DB)
	c, err := chain.NewGenesisChain(st, accStore, block.NewGenesis(1000, uint256.NewInt(1)), clock)
	require.NoError(t, err)
	return &testChain{chain: c, storage: st, accStore: accStore, backend: backend, clock: clock}
}

// mineLocal appends n blocks whose bodies differ from newSourceChain's.
func mineLocal(t *testing.T, tc *testChain, n int) []*block.Block {
	t.Helper()
	var out []*block.Block
	for i := 1; i <= n; i++ {
		parent := tc.chain.Head()
		b := block.NewChild(parent, parent.Timestamp()+1000, "local", uint256.NewInt(1), block.Body{Transactions: [][]byte{{0xff, byte(i)}}})
		require.NoError(t, tc.chain.Apply(b))
		out = append(out, b)
	}
	return out
}

// newSourceChain returns a chain of genesis plus n blocks; blocks[i] has
// number i.
func newSourceChain(t *testing.T, n int) (*testChain, []*block.Block) {
	t.Helper()
	src := newTestChain(t)
	blocks := []*block.Block{src.chain.Head()}
	for i := 1; i <= n; i++ {
		parent := blocks[i-1]
		b := block.NewChild(parent, parent.Timestamp()+1000, "miner", uint256.NewInt(1), block.Body{Transactions: [][]byte{{byte(i)}}})
		require.NoError(t, src.chain.Apply(b))
		blocks = append(blocks, b)
	}
	return src, blocks
}

func ids(blocks []*block.Block) []types.HashValue {
	out := make([]types.HashValue, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID()
	}
	return out
}

func itemIDs(items []SyncBlockData) []types.HashValue {
	out := make([]types.HashValue, len(items))
	for i, item := range items {
		out[i] = item.Block.ID()
	}
	return out
}

type mapFetcher struct {
	mu      sync.Mutex
	blocks  map[types.HashValue]*block.Block
	peerID  peer.ID
	reverse bool
	drop    map[types.HashValue]bool
	err     error
	calls   [][]types.HashValue
}

func newMapFetcher(blocks []*block.Block) *mapFetcher {
	f := &mapFetcher{
		blocks: make(map[types.HashValue]*block.Block, len(blocks)),
		peerID: testPeer,
		drop:   make(map[types.HashValue]bool),
	}
	for _, b := range blocks {
		f.blocks[b.ID()] = b
	}
	return f
}

func (f *mapFetcher) FetchBlocks(_ context.Context, ids []types.HashValue) ([]FetchedBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, slices.Clone(ids))
	if f.err != nil {
		return nil, f.err
	}
	var out []FetchedBlock
	for _, id := range ids {
		if f.drop[id] {
			continue
		}
		if b, ok := f.blocks[id]; ok {
			out = append(out, FetchedBlock{Block: b, PeerID: f.peerID})
		}
	}
	if f.reverse {
		slices.Reverse(out)
	}
	return out, nil
}

func (f *mapFetcher) callSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

type peerReport struct {
	peerID peer.ID
	change types.ReputationChange
}

type recordingNetwork struct {
	mu      sync.Mutex
	reports []peerReport
}

func (n *recordingNetwork) ReportPeer(peerID peer.ID, change types.ReputationChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, peerReport{peerID: peerID, change: change})
}

func (n *recordingNetwork) all() []peerReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.reports)
}

type failingWriter struct{ err error }

func (w failingWriter) SaveFailedBlock(types.HashValue, *block.Block, peer.ID, string) error {
	return w.err
}

// brokenFailedStorage is a chain whose failed-block storage rejects writes.
type brokenFailedStorage struct {
	*chain.BlockChain
	err error
}

func (c brokenFailedStorage) FailedBlockStorage() chain.FailedBlockWriter {
	return failingWriter{err: c.err}
}

// brokenTotalDifficulty is a chain whose total difficulty cannot be read.
type brokenTotalDifficulty struct {
	*chain.BlockChain
	err error
}

func (c brokenTotalDifficulty) GetTotalDifficulty() (*uint256.Int, error) {
	return nil, c.err
}

func newCollector(dst *testChain, network NetworkService) (*BlockCollector[*chain.BlockChain], *events.EventBus) {
	bus := events.NewEventBus()
	return NewBlockCollector(dst.chain.HeadInfo(), dst.chain, bus, network, false), bus
}
