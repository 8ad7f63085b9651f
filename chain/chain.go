package chain

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
)

// BlockChain is one lineage of blocks from genesis to head, with the block
// accumulator committing to its history. An applied or connected block
// becomes the persisted head only when it is heavier than the current one.
type BlockChain struct {
	mu          sync.RWMutex
	storage     *Storage
	accStore    *accumulator.Store
	acc         *accumulator.Accumulator
	head        *block.Block
	headInfo    *block.BlockInfo
	timeService TimeService
}

// NewGenesisChain initialises empty storage with genesis.
func NewGenesisChain(st *Storage, accStore *accumulator.Store, genesis *block.Block, ts TimeService) (*BlockChain, error) {
	acc := accumulator.New(accStore)
	id := genesis.ID()
	if _, err := acc.Append(id); err != nil {
		return nil, fmt.Errorf("append genesis: %w", err)
	}
	accInfo, err := acc.Info()
	if err != nil {
		return nil, err
	}
	info := &block.BlockInfo{
		BlockID:              id,
		TotalDifficulty:      new(uint256.Int).Set(genesis.Header.GetDifficulty()),
		BlockAccumulatorInfo: accInfo,
	}

	if err := st.SaveBlock(genesis); err != nil {
		return nil, err
	}
	if err := st.SaveBlockInfo(info); err != nil {
		return nil, err
	}
	if err := st.SetHead(id, accStore.IndexNamespace()); err != nil {
		return nil, err
	}

	logx.Info("CHAIN", fmt.Sprintf("initialised genesis %s", id.Short()))
	return &BlockChain{
		storage:     st,
		accStore:    accStore,
		acc:         acc,
		head:        genesis,
		headInfo:    info,
		timeService: ts,
	}, nil
}

// NewBlockChain opens a chain whose head is headID. headID must have been
// executed before.
func NewBlockChain(st *Storage, accStore *accumulator.Store, headID types.HashValue, ts TimeService) (*BlockChain, error) {
	head, err := st.GetBlock(headID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("%w: block %s not found", ErrNoHead, headID.Short())
	}
	info, err := st.GetBlockInfo(headID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: block %s has no info", ErrNoHead, headID.Short())
	}
	acc, err := accumulator.Open(accStore, info.BlockAccumulatorInfo)
	if err != nil {
		return nil, fmt.Errorf("open block accumulator at %s: %w", headID.Short(), err)
	}
	return &BlockChain{
		storage:     st,
		accStore:    accStore,
		acc:         acc,
		head:        head,
		headInfo:    info,
		timeService: ts,
	}, nil
}

// OpenBlockChain opens the chain at the persisted head. accStore must use
// the index namespace recorded with the head (Storage.HeadIndexNamespace).
func OpenBlockChain(st *Storage, accStore *accumulator.Store, ts TimeService) (*BlockChain, error) {
	rec, ok, err := st.GetHeadRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoHead
	}
	if rec.IndexNamespace != accStore.IndexNamespace() {
		return nil, fmt.Errorf("%w: head %s is indexed under %s, store uses %s",
			ErrLineageMismatch, rec.BlockID.Short(), rec.IndexNamespace, accStore.IndexNamespace())
	}
	return NewBlockChain(st, accStore, rec.BlockID, ts)
}

// LineageNamespace names the accumulator index namespace for a lineage
// synced towards the accumulator with the given root.
func LineageNamespace(targetRoot types.HashValue) string {
	return store.NamespaceAccumulatorIndex + "@" + targetRoot.String()
}

// ForkBlockChain opens a chain at ancestorID whose accumulator positions are
// copied into indexNS, so blocks applied to it never repoint positions of
// the lineage accStore serves.
func ForkBlockChain(st *Storage, accStore *accumulator.Store, ancestorID types.HashValue, indexNS string, ts TimeService) (*BlockChain, error) {
	info, err := st.GetBlockInfo(ancestorID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: block %s has no info", ErrNoHead, ancestorID.Short())
	}
	forked, err := accStore.Fork(indexNS, info.BlockAccumulatorInfo.NumNodes)
	if err != nil {
		return nil, fmt.Errorf("fork accumulator index at %s: %w", ancestorID.Short(), err)
	}
	logx.Info("CHAIN", fmt.Sprintf("forked lineage at %s into %s", ancestorID.Short(), indexNS))
	return NewBlockChain(st, forked, ancestorID, ts)
}

// Apply verifies b with FullVerifier and appends it.
func (c *BlockChain) Apply(b *block.Block) error {
	return c.ApplyWithVerifier(b, FullVerifier{})
}

func (c *BlockChain) ApplyWithVerifier(b *block.Block, v Verifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := v.Verify(&c.head.Header, b, c.timeService.Now()); err != nil {
		return err
	}
	td := new(uint256.Int).Add(c.headInfo.TotalDifficulty, b.Header.GetDifficulty())
	return c.extend(b, td, nil)
}

// Connect appends a block executed earlier, trusting its info after
// checking it against the chain.
func (c *BlockChain) Connect(eb *block.ExecutedBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := eb.Block.ID()
	if eb.Info == nil || eb.Info.BlockID != id {
		return newConnectError(ErrVerifyBlockFailed, id, "block info does not belong to block")
	}
	if eb.Block.ParentHash() != c.head.ID() {
		return newConnectError(ErrParentNotExist, id, "parent %s is not the chain head %s", eb.Block.ParentHash().Short(), c.head.ID().Short())
	}
	if eb.Info.BlockAccumulatorInfo.NumLeaves != c.acc.NumLeaves()+1 {
		return newConnectError(ErrVerifyBlockFailed, id, "info expects %d accumulator leaves, chain would have %d", eb.Info.BlockAccumulatorInfo.NumLeaves, c.acc.NumLeaves()+1)
	}
	return c.extend(eb.Block, eb.Info.TotalDifficulty, eb.Info)
}

// extend must be called with the write lock held. When expected is set the
// resulting accumulator root must match it.
func (c *BlockChain) extend(b *block.Block, td *uint256.Int, expected *block.BlockInfo) error {
	id := b.ID()
	if err := c.storage.SaveBlock(b); err != nil {
		return err
	}

	// positions past the head are released on failure only if this append
	// claims them
	taken, err := c.accStore.HasIndex(accumulator.NodeIndex(c.acc.NumNodes()))
	if err != nil {
		return err
	}
	root, err := c.acc.Append(id)
	if err != nil {
		return c.rollback(err, false)
	}
	if expected != nil && root != expected.BlockAccumulatorInfo.RootHash {
		return c.rollback(newConnectError(ErrVerifyBlockFailed, id, "accumulator root %s, info expects %s", root.Short(), expected.BlockAccumulatorInfo.RootHash.Short()), !taken)
	}

	accInfo, err := c.acc.Info()
	if err != nil {
		return c.rollback(err, !taken)
	}
	info := &block.BlockInfo{
		BlockID:              id,
		TotalDifficulty:      new(uint256.Int).Set(td),
		BlockAccumulatorInfo: accInfo,
	}
	if err := c.storage.SaveBlockInfo(info); err != nil {
		return c.rollback(err, !taken)
	}
	promoted, err := c.promoteHead(id, td)
	if err != nil {
		return c.rollback(err, !taken)
	}

	c.head = b
	c.headInfo = info
	if promoted {
		logx.Debug("CHAIN", fmt.Sprintf("head %d %s total_difficulty=%s", b.Number(), id.Short(), td.Dec()))
	} else {
		logx.Debug("CHAIN", fmt.Sprintf("lineage head %d %s total_difficulty=%s, persisted head kept", b.Number(), id.Short(), td.Dec()))
	}
	return nil
}

// promoteHead persists id as the node head when td exceeds the total
// difficulty of the persisted head, which may sit on another lineage.
func (c *BlockChain) promoteHead(id types.HashValue, td *uint256.Int) (bool, error) {
	rec, ok, err := c.storage.GetHeadRecord()
	if err != nil {
		return false, err
	}
	if ok {
		current, err := c.storage.GetBlockInfo(rec.BlockID)
		if err != nil {
			return false, err
		}
		if current != nil && !td.Gt(current.TotalDifficulty) {
			return false, nil
		}
	}
	return true, c.storage.SetHead(id, c.accStore.IndexNamespace())
}

// rollback reopens the accumulator at the current head and returns cause.
// With release set the index positions appended past the head are removed.
func (c *BlockChain) rollback(cause error, release bool) error {
	if from, to := c.headInfo.BlockAccumulatorInfo.NumNodes, c.acc.NumNodes(); release && to > from {
		indices := make([]accumulator.NodeIndex, 0, to-from)
		for i := from; i < to; i++ {
			indices = append(indices, accumulator.NodeIndex(i))
		}
		if err := c.accStore.DeleteNodesIndex(indices); err != nil {
			logx.Warn("CHAIN", fmt.Sprintf("release index positions [%d, %d): %v", from, to, err))
		}
	}
	acc, err := accumulator.Open(c.accStore, c.headInfo.BlockAccumulatorInfo)
	if err != nil {
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	c.acc = acc
	return cause
}

func (c *BlockChain) GetTotalDifficulty() (*uint256.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(uint256.Int).Set(c.headInfo.TotalDifficulty), nil
}

func (c *BlockChain) TimeService() TimeService {
	return c.timeService
}

func (c *BlockChain) FailedBlockStorage() FailedBlockWriter {
	return c.storage
}

func (c *BlockChain) Storage() *Storage {
	return c.storage
}

func (c *BlockChain) Head() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

func (c *BlockChain) HeadInfo() *block.BlockInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headInfo
}

// Accumulator returns the block accumulator; leaf n is the id of block n.
func (c *BlockChain) Accumulator() *accumulator.Accumulator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acc
}

// GetBlockByNumber returns the block at height n of this lineage.
func (c *BlockChain) GetBlockByNumber(n uint64) (*block.Block, error) {
	id, err := c.Accumulator().GetLeaf(n)
	if err != nil {
		return nil, err
	}
	b, err := c.storage.GetBlock(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("block %d (%s) missing from storage", n, id.Short())
	}
	return b, nil
}
