package blocksync

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tampered(b *block.Block) *block.Block {
	bad := *b
	bad.Body = block.Body{Transactions: [][]byte{[]byte("forged")}}
	return &bad
}

func TestCollectAppliesBlocks(t *testing.T) {
	_, blocks := newSourceChain(t, 3)
	dst := newTestChain(t)
	collector, _ := newCollector(dst, &recordingNetwork{})

	for _, b := range blocks[1:] {
		state, err := collector.Collect(SyncBlockData{Block: b, PeerID: testPeer})
		require.NoError(t, err)
		assert.Equal(t, CollectorNeed, state)
	}
	assert.Equal(t, blocks[3].ID(), dst.chain.Head().ID())
	assert.Equal(t, blocks[3].Timestamp(), dst.clock.Now(), "clock follows applied blocks")
}

func TestCollectReplaysExecutedBlocks(t *testing.T) {
	src, blocks := newSourceChain(t, 3)
	dst := newTestChain(t)
	collector, bus := newCollector(dst, &recordingNetwork{})
	_, ch := bus.Subscribe()

	for _, b := range blocks[1:] {
		info, err := src.storage.GetBlockInfo(b.ID())
		require.NoError(t, err)
		_, err = collector.Collect(SyncBlockData{Block: b, Info: info})
		require.NoError(t, err)
	}

	assert.Equal(t, blocks[3].ID(), dst.chain.Head().ID())
	assert.Equal(t, src.chain.Accumulator().RootHash(), dst.chain.Accumulator().RootHash())
	assert.Empty(t, ch, "replayed blocks publish nothing")
}

func TestCollectReplayErrorPropagates(t *testing.T) {
	src, blocks := newSourceChain(t, 2)
	dst := newTestChain(t)
	network := &recordingNetwork{}
	collector, _ := newCollector(dst, network)

	// info of block 2 offered for block 1
	info, err := src.storage.GetBlockInfo(blocks[2].ID())
	require.NoError(t, err)
	_, err = collector.Collect(SyncBlockData{Block: blocks[1], Info: info, PeerID: testPeer})
	assert.ErrorIs(t, err, chain.ErrVerifyBlockFailed)
	assert.Empty(t, network.all())
}

func TestCollectInvalidBlockFromPeer(t *testing.T) {
	_, blocks := newSourceChain(t, 1)
	dst := newTestChain(t)
	network := &recordingNetwork{}
	collector, _ := newCollector(dst, network)

	bad := tampered(blocks[1])
	_, err := collector.Collect(SyncBlockData{Block: bad, PeerID: testPeer})
	require.ErrorIs(t, err, chain.ErrVerifyBlockFailed)

	failed, err := dst.storage.GetFailedBlock(bad.ID())
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, string(testPeer), failed.PeerID)
	assert.Contains(t, failed.Reason, "body hash mismatch")

	assert.Equal(t, []peerReport{{peerID: testPeer, change: types.RepInvalidBlock}}, network.all())
	assert.Equal(t, dst.chain.HeadInfo().BlockID, blocks[0].ID(), "head unchanged")
}

func TestCollectInvalidLocalBlock(t *testing.T) {
	_, blocks := newSourceChain(t, 1)
	dst := newTestChain(t)
	network := &recordingNetwork{}
	collector, _ := newCollector(dst, network)

	bad := tampered(blocks[1])
	_, err := collector.Collect(SyncBlockData{Block: bad})
	require.ErrorIs(t, err, chain.ErrVerifyBlockFailed)

	failed, err := dst.storage.GetFailedBlock(bad.ID())
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Empty(t, failed.PeerID)
	assert.Empty(t, network.all(), "no peer to report")
}

func TestCollectUnknownParent(t *testing.T) {
	_, blocks := newSourceChain(t, 2)
	dst := newTestChain(t)
	network := &recordingNetwork{}
	collector, _ := newCollector(dst, network)

	_, err := collector.Collect(SyncBlockData{Block: blocks[2], PeerID: testPeer})
	require.ErrorIs(t, err, chain.ErrParentNotExist)
	assert.Equal(t, []peerReport{{peerID: testPeer, change: types.RepUnknownParent}}, network.all())
}

func TestCollectFutureBlock(t *testing.T) {
	dst := newTestChain(t)
	network := &recordingNetwork{}
	collector, _ := newCollector(dst, network)

	genesis := dst.chain.Head()
	future := block.NewChild(genesis, dst.clock.Now()+60_000, "miner", uint256.NewInt(1), block.Body{})
	_, err := collector.Collect(SyncBlockData{Block: future, PeerID: testPeer})
	require.ErrorIs(t, err, chain.ErrFutureBlock)

	failed, err := dst.storage.GetFailedBlock(future.ID())
	require.NoError(t, err)
	assert.Nil(t, failed, "future blocks are not recorded")
	assert.Empty(t, network.all())
}

func TestCollectFailedBlockSaveError(t *testing.T) {
	_, blocks := newSourceChain(t, 1)
	dst := newTestChain(t)
	network := &recordingNetwork{}
	broken := brokenFailedStorage{BlockChain: dst.chain, err: assert.AnError}
	collector := NewBlockCollector(dst.chain.HeadInfo(), broken, events.NewEventBus(), network, false)

	_, err := collector.Collect(SyncBlockData{Block: tampered(blocks[1]), PeerID: testPeer})
	require.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, chain.ErrVerifyBlockFailed)
	assert.Contains(t, err.Error(), "body hash mismatch")
	assert.Empty(t, network.all(), "report is skipped when the record cannot be saved")
}

func TestCollectTotalDifficultyErrorPropagates(t *testing.T) {
	_, blocks := newSourceChain(t, 1)
	dst := newTestChain(t)
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	broken := brokenTotalDifficulty{BlockChain: dst.chain, err: assert.AnError}
	collector := NewBlockCollector(dst.chain.HeadInfo(), broken, bus, &recordingNetwork{}, false)

	_, err := collector.Collect(SyncBlockData{Block: blocks[1], PeerID: testPeer})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, ch, "nothing is published without a total difficulty")
}

func TestCollectPublishesOnceAheadOfCurrent(t *testing.T) {
	_, blocks := newSourceChain(t, 3)
	dst := newTestChain(t)
	current := &block.BlockInfo{BlockID: blocks[2].ID(), TotalDifficulty: uint256.NewInt(3)}
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	collector := NewBlockCollector(current, dst.chain, bus, &recordingNetwork{}, false)

	for _, b := range blocks[1:] {
		_, err := collector.Collect(SyncBlockData{Block: b})
		require.NoError(t, err)
	}

	require.Len(t, ch, 1)
	ev := (<-ch).(*events.BlockConnected)
	assert.Equal(t, blocks[3].ID(), ev.Block.ID())
}

func TestCollectSkipPow(t *testing.T) {
	dst := newTestChain(t)
	genesis := dst.chain.Head()
	// maximum difficulty: almost no id meets the target
	hard := new(uint256.Int).SetAllOne()
	b := block.NewChild(genesis, genesis.Timestamp()+1000, "miner", hard, block.Body{})
	require.False(t, chain.CheckPow(&b.Header))

	strict, _ := newCollector(dst, &recordingNetwork{})
	_, err := strict.Collect(SyncBlockData{Block: b})
	require.ErrorIs(t, err, chain.ErrVerifyBlockFailed)

	lenient := NewBlockCollector(dst.chain.HeadInfo(), dst.chain, events.NewEventBus(), &recordingNetwork{}, true)
	_, err = lenient.Collect(SyncBlockData{Block: b})
	require.NoError(t, err)
	assert.Equal(t, b.ID(), dst.chain.Head().ID())
}

func TestFinishOnce(t *testing.T) {
	_, blocks := newSourceChain(t, 1)
	dst := newTestChain(t)
	collector, _ := newCollector(dst, &recordingNetwork{})

	c, err := collector.Finish()
	require.NoError(t, err)
	assert.Same(t, dst.chain, c)

	_, err = collector.Finish()
	assert.ErrorIs(t, err, ErrCollectorFinished)
	_, err = collector.Collect(SyncBlockData{Block: blocks[1]})
	assert.ErrorIs(t, err, ErrCollectorFinished)
}
