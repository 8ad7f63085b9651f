package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/blocksync"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	host    host.Host
	chain   *chain.BlockChain
	storage *chain.Storage
	scoring *PeerScoringManager
	blocks  []*block.Block
}

func newChain(t *testing.T) (*chain.BlockChain, *chain.Storage) {
	t.Helper()
	backend := store.NewMemoryBackend()
	st := chain.NewBackendStorage(backend)
	c, err := chain.NewGenesisChain(st, accumulator.NewTwoTierStore(backend.Cache, backend.DB),
		block.NewGenesis(1000, uint256.NewInt(1)), chain.NewMockTimeService(1000))
	require.NoError(t, err)
	return c, st
}

func newNode(t *testing.T, mn mocknet.Mocknet, blocks int) *testNode {
	t.Helper()
	h, err := mn.GenPeer()
	require.NoError(t, err)

	c, st := newChain(t)
	node := &testNode{host: h, chain: c, storage: st, blocks: []*block.Block{c.Head()}}
	for i := 1; i <= blocks; i++ {
		parent := node.blocks[i-1]
		b := block.NewChild(parent, parent.Timestamp()+1000, "miner", uint256.NewInt(1), block.Body{})
		require.NoError(t, c.Apply(b))
		node.blocks = append(node.blocks, b)
	}

	node.scoring = NewPeerScoringManager(h.Network(), nil)
	t.Cleanup(node.scoring.Stop)
	return node
}

func (n *testNode) serve() *BlockServer {
	srv := NewBlockServer(n.host, n.storage, func() LeafSource { return n.chain.Accumulator() }, n.scoring)
	srv.Start()
	return srv
}

func newMocknet(t *testing.T) mocknet.Mocknet {
	mn := mocknet.New()
	t.Cleanup(func() { _ = mn.Close() })
	return mn
}

func linkAll(t *testing.T, mn mocknet.Mocknet) {
	require.NoError(t, mn.LinkAll())
	require.NoError(t, mn.ConnectAllButSelf())
}

func blockIDs(blocks []*block.Block) []types.HashValue {
	out := make([]types.HashValue, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID()
	}
	return out
}

func TestFetchBlocks(t *testing.T) {
	mn := newMocknet(t)
	server := newNode(t, mn, 5)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	server.serve()

	fetcher := NewBlockFetcher(client.host, client.scoring, time.Second)
	want := blockIDs(server.blocks[1:])
	got, err := fetcher.FetchBlocks(context.Background(), want)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i, fb := range got {
		assert.Equal(t, want[i], fb.Block.ID())
		assert.Equal(t, server.host.ID(), fb.PeerID)
	}
	assert.Greater(t, client.scoring.GetPeerScore(server.host.ID()), 0.0, "fast response rewarded")
}

func TestFetchBlocksSkipsUnknown(t *testing.T) {
	mn := newMocknet(t)
	server := newNode(t, mn, 2)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	server.serve()

	unknown := types.Sha3([]byte("unknown"))
	fetcher := NewBlockFetcher(client.host, client.scoring, time.Second)
	got, err := fetcher.FetchBlocks(context.Background(), []types.HashValue{server.blocks[1].ID(), unknown})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, server.blocks[1].ID(), got[0].Block.ID())
}

func TestFetchBlocksNoPeers(t *testing.T) {
	mn := newMocknet(t)
	client := newNode(t, mn, 0)

	_, err := NewBlockFetcher(client.host, client.scoring, time.Second).FetchBlocks(context.Background(), []types.HashValue{types.Sha3([]byte("x"))})
	assert.ErrorIs(t, err, ErrNoPeers)
}

func TestFetchBlocksFallsBackPastBadPeer(t *testing.T) {
	mn := newMocknet(t)
	good := newNode(t, mn, 3)
	liar := newNode(t, mn, 0)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	good.serve()

	// the liar answers every request with a block nobody asked for
	stray := block.NewChild(liar.chain.Head(), 5000, "liar", uint256.NewInt(1), block.Body{})
	liar.host.SetStreamHandler(BlocksProtocol, func(s network.Stream) {
		defer s.Close()
		var req BlocksRequest
		if err := readMessage(s, &req); err != nil {
			return
		}
		_ = writeMessage(s, &BlocksResponse{RequestID: req.RequestID, Blocks: []*block.Block{stray}})
	})
	// rank the liar first
	client.scoring.ReportPeer(liar.host.ID(), types.ReputationChange{Value: 10, Reason: "test"})

	want := blockIDs(good.blocks[1:])
	fetcher := NewBlockFetcher(client.host, client.scoring, time.Second).WithPeers(liar.host.ID(), good.host.ID())
	got, err := fetcher.FetchBlocks(context.Background(), want)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, fb := range got {
		assert.Equal(t, good.host.ID(), fb.PeerID)
	}
	assert.Equal(t, 1, client.scoring.GetPeerStats(liar.host.ID()).BadResponses)
}

func TestBlacklistedPeerRefused(t *testing.T) {
	mn := newMocknet(t)
	server := newNode(t, mn, 2)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	server.serve()

	for i := 0; i < 2; i++ {
		server.scoring.ReportPeer(client.host.ID(), types.RepInvalidBlock)
	}
	require.True(t, server.scoring.IsBlacklisted(client.host.ID()))

	fetcher := NewBlockFetcher(client.host, nil, time.Second).WithPeers(server.host.ID())
	got, err := fetcher.FetchBlocks(context.Background(), blockIDs(server.blocks[1:]))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, _, err = fetcher.FetchLeaves(context.Background(), server.host.ID())
	assert.Error(t, err)
}

func TestFetchLeavesPages(t *testing.T) {
	mn := newMocknet(t)
	server := newNode(t, mn, 9)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	server.serve()

	fetcher := NewBlockFetcher(client.host, client.scoring, time.Second)
	fetcher.leafPageSize = 3

	info, leaves, err := fetcher.FetchLeaves(context.Background(), server.host.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), info.NumLeaves)
	assert.Equal(t, server.chain.Accumulator().RootHash(), info.RootHash)
	assert.Equal(t, blockIDs(server.blocks), leaves)
}

func TestSyncOverNetwork(t *testing.T) {
	mn := newMocknet(t)
	server := newNode(t, mn, 10)
	client := newNode(t, mn, 0)
	linkAll(t, mn)
	server.serve()

	ctx := context.Background()
	fetcher := NewBlockFetcher(client.host, client.scoring, time.Second).WithPeers(server.host.ID())
	info, leaves, err := fetcher.FetchLeaves(ctx, server.host.ID())
	require.NoError(t, err)
	target, err := blocksync.BuildTargetAccumulator(leaves, info.RootHash)
	require.NoError(t, err)

	ancestor, _, err := blocksync.FindCommonAncestor(client.chain.Accumulator(), target)
	require.NoError(t, err)

	task := blocksync.NewBlockSyncTask(target, ancestor+1, fetcher, true, client.storage, 4)
	collector := blocksync.NewBlockCollector(client.chain.HeadInfo(), client.chain, events.NewEventBus(), client.scoring, false)
	synced, err := blocksync.NewDriver(task, collector, true).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, server.chain.Head().ID(), synced.Head().ID())
	assert.Equal(t, info.RootHash, synced.Accumulator().RootHash())
}

func TestParsePeerAddr(t *testing.T) {
	info, err := ParsePeerAddr("/ip4/127.0.0.1/tcp/9100/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN")
	require.NoError(t, err)
	assert.Equal(t, "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN", info.ID.String())

	_, err = ParsePeerAddr("/ip4/127.0.0.1/tcp/9100")
	assert.Error(t, err)
	_, err = ParsePeerAddr("not-an-addr")
	assert.Error(t, err)
}

var _ blocksync.NetworkService = (*PeerScoringManager)(nil)
var _ PeerCloser = network.Network(nil)
