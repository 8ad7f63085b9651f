package blocksync

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
)

// CollectorState tells the driver whether a collector wants more items.
type CollectorState int

const (
	CollectorNeed CollectorState = iota
	CollectorEnough
)

func (s CollectorState) String() string {
	if s == CollectorEnough {
		return "enough"
	}
	return "need"
}

// BlockCollector applies synced blocks to a chain in order. It is used by a
// single driver goroutine and is finished exactly once.
type BlockCollector[C Chain] struct {
	currentBlockInfo *block.BlockInfo
	chain            C
	eventHandle      EventHandle
	network          NetworkService
	skipPowVerify    bool
	metrics          *monitoring.SyncMetrics
	finished         bool
}

// NewBlockCollector starts a collector extending c. currentBlockInfo is the
// node's best block before the sync; connected-block events fire only once
// c's total difficulty exceeds it.
func NewBlockCollector[C Chain](
	currentBlockInfo *block.BlockInfo,
	c C,
	eventHandle EventHandle,
	network NetworkService,
	skipPowVerify bool,
) *BlockCollector[C] {
	return &BlockCollector[C]{
		currentBlockInfo: currentBlockInfo,
		chain:            c,
		eventHandle:      eventHandle,
		network:          network,
		skipPowVerify:    skipPowVerify,
	}
}

func (c *BlockCollector[C]) WithMetrics(m *monitoring.SyncMetrics) *BlockCollector[C] {
	c.metrics = m
	return c
}

// Collect applies one item. Items carrying a BlockInfo are connected
// without re-execution; the rest are verified and applied.
func (c *BlockCollector[C]) Collect(item SyncBlockData) (CollectorState, error) {
	if c.finished {
		return CollectorNeed, ErrCollectorFinished
	}

	if item.Info != nil {
		if err := c.chain.Connect(&block.ExecutedBlock{Block: item.Block, Info: item.Info}); err != nil {
			logx.Error("SYNC", fmt.Sprintf("connect block %d %s failed: %v", item.Block.Number(), item.Block.ID().Short(), err))
			return CollectorNeed, err
		}
		c.metrics.RecordCollected(monitoring.CollectConnect)
		return CollectorNeed, nil
	}

	if err := c.applyBlock(item.Block, item.PeerID); err != nil {
		return CollectorNeed, err
	}
	c.metrics.RecordCollected(monitoring.CollectApply)
	c.chain.TimeService().Adjust(item.Block.Timestamp())

	exceeds, err := c.exceedsCurrent()
	if err != nil {
		return CollectorNeed, err
	}
	if exceeds {
		if err := c.eventHandle.Handle(events.NewBlockConnected(item.Block)); err != nil {
			logx.Error("SYNC", fmt.Sprintf("notify block %s connected: %v", item.Block.ID().Short(), err))
		}
	}
	return CollectorNeed, nil
}

func (c *BlockCollector[C]) applyBlock(b *block.Block, peerID peer.ID) error {
	stop := c.metrics.ApplyTimer()
	var err error
	if c.skipPowVerify {
		err = c.chain.ApplyWithVerifier(b, chain.BasicVerifier{})
	} else {
		err = c.chain.Apply(b)
	}
	stop()
	if err == nil {
		return nil
	}

	id := b.ID()
	logx.Error("SYNC", fmt.Sprintf("apply block %d %s from peer %q failed: %v", b.Number(), id.Short(), peerID, err))

	var connectErr *chain.ConnectBlockError
	if !errors.As(err, &connectErr) {
		return err
	}
	// a block from the future may become valid later; the caller decides
	if errors.Is(connectErr, chain.ErrFutureBlock) {
		return err
	}

	c.metrics.RecordFailed(connectErr.Kind.Error())
	if saveErr := c.chain.FailedBlockStorage().SaveFailedBlock(id, b, peerID, connectErr.Error()); saveErr != nil {
		return fmt.Errorf("save failed block %s: %w (apply error: %v)", id.Short(), saveErr, err)
	}
	if peerID != "" {
		change := connectErr.ReputationChange()
		c.network.ReportPeer(peerID, change)
		c.metrics.RecordPeerReport(change.Reason)
	}
	return err
}

func (c *BlockCollector[C]) exceedsCurrent() (bool, error) {
	td, err := c.chain.GetTotalDifficulty()
	if err != nil {
		return false, fmt.Errorf("read total difficulty: %w", err)
	}
	current := new(uint256.Int)
	if c.currentBlockInfo != nil && c.currentBlockInfo.TotalDifficulty != nil {
		current = c.currentBlockInfo.TotalDifficulty
	}
	return td.Gt(current), nil
}

// Finish ends the collection and hands back the extended chain.
func (c *BlockCollector[C]) Finish() (C, error) {
	if c.finished {
		var zero C
		return zero, ErrCollectorFinished
	}
	c.finished = true
	return c.chain, nil
}
