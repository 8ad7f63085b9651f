package chain

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	backend  *store.Backend
	storage  *Storage
	accStore *accumulator.Store
	clock    *MockTimeService
	genesis  *block.Block
	chain    *BlockChain
}

func newTestEnv(t *testing.T) *testEnv {
	backend := store.NewMemoryBackend()
	env := &testEnv{
		backend:  backend,
		storage:  NewBackendStorage(backend),
		accStore: accumulator.NewTwoTierStore(backend.Cache, backend.DB),
		clock:    NewMockTimeService(1000),
		genesis:  block.NewGenesis(1000, uint256.NewInt(1)),
	}
	c, err := NewGenesisChain(env.storage, env.accStore, env.genesis, env.clock)
	require.NoError(t, err)
	env.chain = c
	return env
}

func child(parent *block.Block, offsetMs uint64) *block.Block {
	return block.NewChild(parent, parent.Timestamp()+offsetMs, "miner", uint256.NewInt(1), block.Body{})
}

func TestGenesisChain(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, env.genesis.ID(), env.chain.Head().ID())
	td, err := env.chain.GetTotalDifficulty()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), td.Uint64())

	headID, ok, err := env.storage.GetHead()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.genesis.ID(), headID)
	assert.Equal(t, uint64(1), env.chain.Accumulator().NumLeaves())
}

func TestApplyExtendsChain(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)
	b2 := child(b1, 1000)

	require.NoError(t, env.chain.Apply(b1))
	require.NoError(t, env.chain.Apply(b2))

	assert.Equal(t, b2.ID(), env.chain.Head().ID())
	td, err := env.chain.GetTotalDifficulty()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), td.Uint64())

	got, err := env.chain.GetBlockByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, b1.ID(), got.ID())

	reopened, err := OpenBlockChain(env.storage, env.accStore, env.clock)
	require.NoError(t, err)
	assert.Equal(t, b2.ID(), reopened.Head().ID())
	assert.Equal(t, env.chain.Accumulator().RootHash(), reopened.Accumulator().RootHash())
}

func TestApplyVerificationFailures(t *testing.T) {
	env := newTestEnv(t)

	orphan := block.NewChild(child(env.genesis, 1000), 3000, "miner", uint256.NewInt(1), block.Body{})
	err := env.chain.Apply(orphan)
	var cbe *ConnectBlockError
	require.ErrorAs(t, err, &cbe)
	assert.ErrorIs(t, err, ErrParentNotExist)
	assert.Equal(t, orphan.ID(), cbe.BlockID)

	future := child(env.genesis, uint64(AllowedFutureBlockTime.Milliseconds())+5000)
	assert.ErrorIs(t, env.chain.Apply(future), ErrFutureBlock)

	env.clock.Adjust(future.Timestamp())
	require.NoError(t, env.chain.Apply(future))

	stale := block.NewChild(future, future.Timestamp(), "miner", uint256.NewInt(1), block.Body{})
	assert.ErrorIs(t, env.chain.Apply(stale), ErrVerifyBlockFailed)

	assert.Equal(t, future.ID(), env.chain.Head().ID())
}

func TestProofOfWork(t *testing.T) {
	env := newTestEnv(t)
	hard := block.NewChild(env.genesis, 2000, "miner", new(uint256.Int).SetAllOne(), block.Body{})

	assert.ErrorIs(t, env.chain.Apply(hard), ErrVerifyBlockFailed)
	require.NoError(t, env.chain.ApplyWithVerifier(hard, BasicVerifier{}))
	assert.Equal(t, hard.ID(), env.chain.Head().ID())
}

func TestConnectExecutedBlock(t *testing.T) {
	source := newTestEnv(t)
	b1 := child(source.genesis, 1000)
	require.NoError(t, source.chain.Apply(b1))
	info := source.chain.HeadInfo()

	target := newTestEnv(t)
	require.NoError(t, target.chain.Connect(&block.ExecutedBlock{Block: b1, Info: info}))
	assert.Equal(t, b1.ID(), target.chain.Head().ID())
	assert.Equal(t, info.BlockAccumulatorInfo.RootHash, target.chain.Accumulator().RootHash())

	// replaying the same info on top of b1 is rejected
	err := target.chain.Connect(&block.ExecutedBlock{Block: b1, Info: info})
	assert.ErrorIs(t, err, ErrParentNotExist)
}

func TestConnectRejectsForeignRootAndRollsBack(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)

	bogus := &block.BlockInfo{
		BlockID:         b1.ID(),
		TotalDifficulty: uint256.NewInt(2),
		BlockAccumulatorInfo: accumulator.Info{
			NumLeaves: 2,
			NumNodes:  3,
		},
	}
	err := env.chain.Connect(&block.ExecutedBlock{Block: b1, Info: bogus})
	require.ErrorIs(t, err, ErrVerifyBlockFailed)

	assert.Equal(t, env.genesis.ID(), env.chain.Head().ID())
	assert.Equal(t, uint64(1), env.chain.Accumulator().NumLeaves())
	require.NoError(t, env.chain.Apply(b1))
}

func TestFailedBlockStorage(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)

	require.NoError(t, env.chain.FailedBlockStorage().SaveFailedBlock(b1.ID(), b1, peer.ID("peer-a"), "bad pow"))
	fb, err := env.storage.GetFailedBlock(b1.ID())
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, "bad pow", fb.Reason)
	assert.Equal(t, b1.ID(), fb.Block.ID())
	assert.NotEmpty(t, fb.PeerID)
}

func TestGetBlocksWithInfo(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)
	unknown := child(b1, 1000)
	require.NoError(t, env.chain.Apply(b1))

	got, err := env.storage.GetBlocksWithInfo([]types.HashValue{b1.ID(), unknown.ID(), env.genesis.ID()})
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NotNil(t, got[0])
	assert.Equal(t, b1.ID(), got[0].Block.ID())
	require.NotNil(t, got[0].Info)
	assert.Equal(t, b1.ID(), got[0].Info.BlockID)

	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
}

func TestConnectBlockErrorReputation(t *testing.T) {
	e := &ConnectBlockError{Kind: ErrParentNotExist}
	assert.Equal(t, "unknown_parent", e.ReputationChange().Reason)
	e = &ConnectBlockError{Kind: ErrVerifyBlockFailed}
	assert.Equal(t, "invalid_block", e.ReputationChange().Reason)
	assert.True(t, errors.Is(e, ErrVerifyBlockFailed))
}

func TestMockTimeServiceOnlyMovesForward(t *testing.T) {
	ts := NewMockTimeService(100)
	ts.Adjust(50)
	assert.Equal(t, uint64(100), ts.Now())
	ts.Adjust(200)
	assert.Equal(t, uint64(200), ts.Now())
}

func sibling(parent *block.Block, offsetMs uint64) *block.Block {
	return block.NewChild(parent, parent.Timestamp()+offsetMs, "other-miner", uint256.NewInt(1), block.Body{})
}

func TestSiblingOnSharedIndexIsRefused(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)
	require.NoError(t, env.chain.Apply(b1))

	stale, err := NewBlockChain(env.storage, env.accStore, env.genesis.ID(), env.clock)
	require.NoError(t, err)
	err = stale.Apply(sibling(env.genesis, 1000))
	require.ErrorIs(t, err, accumulator.ErrIndexConflict)

	assert.Equal(t, env.genesis.ID(), stale.Head().ID())
	assert.Equal(t, uint64(1), stale.Accumulator().NumLeaves())
	got, err := env.chain.GetBlockByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, b1.ID(), got.ID())
	headID, _, err := env.storage.GetHead()
	require.NoError(t, err)
	assert.Equal(t, b1.ID(), headID)
}

func TestForkedLineagePromotesOnlyWhenHeavier(t *testing.T) {
	env := newTestEnv(t)
	b1 := child(env.genesis, 1000)
	b2 := child(b1, 1000)
	require.NoError(t, env.chain.Apply(b1))
	require.NoError(t, env.chain.Apply(b2))
	mainRoot := env.chain.Accumulator().RootHash()

	ns := LineageNamespace(types.Sha3([]byte("fork target")))
	fork, err := ForkBlockChain(env.storage, env.accStore, env.genesis.ID(), ns, env.clock)
	require.NoError(t, err)

	s1 := sibling(env.genesis, 1000)
	require.NoError(t, fork.Apply(s1))
	assert.Equal(t, s1.ID(), fork.Head().ID())

	// total difficulty 2 against 3: the persisted head stays on b2
	rec, ok, err := env.storage.GetHeadRecord()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b2.ID(), rec.BlockID)
	assert.Equal(t, store.NamespaceAccumulatorIndex, rec.IndexNamespace)

	reopened, err := OpenBlockChain(env.storage, env.accStore, env.clock)
	require.NoError(t, err)
	assert.Equal(t, b2.ID(), reopened.Head().ID())
	got, err := reopened.GetBlockByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, b1.ID(), got.ID())
	got, err = fork.GetBlockByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, s1.ID(), got.ID())

	// a tie keeps the existing head
	s2 := child(s1, 1000)
	require.NoError(t, fork.Apply(s2))
	headID, _, err := env.storage.GetHead()
	require.NoError(t, err)
	assert.Equal(t, b2.ID(), headID)

	s3 := child(s2, 1000)
	require.NoError(t, fork.Apply(s3))
	rec, _, err = env.storage.GetHeadRecord()
	require.NoError(t, err)
	assert.Equal(t, s3.ID(), rec.BlockID)
	assert.Equal(t, ns, rec.IndexNamespace)

	_, err = OpenBlockChain(env.storage, env.accStore, env.clock)
	assert.ErrorIs(t, err, ErrLineageMismatch)

	headNS, err := env.storage.HeadIndexNamespace()
	require.NoError(t, err)
	forkStore := accumulator.NewNamedTwoTierStore(env.backend.Cache, env.backend.DB, headNS, store.NamespaceAccumulatorNode, env.backend.Options()...)
	reopened, err = OpenBlockChain(env.storage, forkStore, env.clock)
	require.NoError(t, err)
	assert.Equal(t, s3.ID(), reopened.Head().ID())
	assert.Equal(t, fork.Accumulator().RootHash(), reopened.Accumulator().RootHash())

	old, err := NewBlockChain(env.storage, env.accStore, b2.ID(), env.clock)
	require.NoError(t, err)
	assert.Equal(t, mainRoot, old.Accumulator().RootHash())
	got, err = old.GetBlockByNumber(2)
	require.NoError(t, err)
	assert.Equal(t, b2.ID(), got.ID())
}

func TestForkBlockChainUnknownAncestor(t *testing.T) {
	env := newTestEnv(t)
	_, err := ForkBlockChain(env.storage, env.accStore, types.Sha3([]byte("nowhere")), LineageNamespace(types.Sha3([]byte("x"))), env.clock)
	assert.ErrorIs(t, err, ErrNoHead)
}
