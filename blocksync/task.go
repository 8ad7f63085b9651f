package blocksync

import (
	"context"
	"fmt"

	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
	"github.com/mezonai/chainsync/types"
)

// BlockSyncTask is one page of a sync: the leaves [startNumber,
// startNumber+batchSize) of the target accumulator. It is a value; Next
// returns the following page instead of advancing in place.
type BlockSyncTask struct {
	accumulator     Accumulator
	startNumber     uint64
	fetcher         Fetcher
	checkLocalStore bool
	localStore      LocalStore
	batchSize       uint64
	metrics         *monitoring.SyncMetrics
}

func NewBlockSyncTask(
	accumulator Accumulator,
	startNumber uint64,
	fetcher Fetcher,
	checkLocalStore bool,
	localStore LocalStore,
	batchSize uint64,
) BlockSyncTask {
	if batchSize == 0 {
		batchSize = 1
	}
	return BlockSyncTask{
		accumulator:     accumulator,
		startNumber:     startNumber,
		fetcher:         fetcher,
		checkLocalStore: checkLocalStore,
		localStore:      localStore,
		batchSize:       batchSize,
	}
}

// WithMetrics returns a copy of t recording fetch counts to m.
func (t BlockSyncTask) WithMetrics(m *monitoring.SyncMetrics) BlockSyncTask {
	t.metrics = m
	return t
}

func (t BlockSyncTask) StartNumber() uint64 { return t.startNumber }

func (t BlockSyncTask) BatchSize() uint64 { return t.batchSize }

// NewSubTask resolves this page's leaves to blocks, in leaf order. An empty
// result means the accumulator is exhausted.
func (t BlockSyncTask) NewSubTask(ctx context.Context) ([]SyncBlockData, error) {
	ids, err := t.accumulator.GetLeaves(t.startNumber, false, t.batchSize)
	if err != nil {
		return nil, fmt.Errorf("read leaves at %d: %w", t.startNumber, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if !t.checkLocalStore {
		fetched, err := t.fetcher.FetchBlocks(ctx, ids)
		if err != nil {
			return nil, err
		}
		t.metrics.RecordFetched(monitoring.FetchNetwork, len(fetched))
		return orderByIDs(ids, indexFetched(fetched, nil))
	}

	local, err := t.localStore.GetBlocksWithInfo(ids)
	if err != nil {
		return nil, fmt.Errorf("read local blocks: %w", err)
	}
	if len(local) != len(ids) {
		return nil, fmt.Errorf("local store returned %d slots for %d ids", len(local), len(ids))
	}

	results := make(map[types.HashValue]SyncBlockData, len(ids))
	var missing []types.HashValue
	for i, id := range ids {
		if local[i] == nil || local[i].Block == nil {
			missing = append(missing, id)
			continue
		}
		results[id] = SyncBlockData{Block: local[i].Block, Info: local[i].Info}
	}
	logx.Debug("SYNC", fmt.Sprintf("local store lookup, ids: %d, found: %d", len(ids), len(results)))
	t.metrics.RecordFetched(monitoring.FetchLocal, len(results))

	if len(missing) > 0 {
		fetched, err := t.fetcher.FetchBlocks(ctx, missing)
		if err != nil {
			return nil, err
		}
		t.metrics.RecordFetched(monitoring.FetchNetwork, len(fetched))
		results = indexFetched(fetched, results)
	}
	return orderByIDs(ids, results)
}

func indexFetched(fetched []FetchedBlock, into map[types.HashValue]SyncBlockData) map[types.HashValue]SyncBlockData {
	if into == nil {
		into = make(map[types.HashValue]SyncBlockData, len(fetched))
	}
	for _, f := range fetched {
		if f.Block == nil {
			continue
		}
		into[f.Block.ID()] = SyncBlockData{Block: f.Block, PeerID: f.PeerID}
	}
	return into
}

// orderByIDs lays results out in the order of ids.
func orderByIDs(ids []types.HashValue, results map[types.HashValue]SyncBlockData) ([]SyncBlockData, error) {
	out := make([]SyncBlockData, 0, len(ids))
	for _, id := range ids {
		item, ok := results[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedBlock, id)
		}
		delete(results, id)
		out = append(out, item)
	}
	if len(results) > 0 {
		logx.Debug("SYNC", fmt.Sprintf("ignored %d unrequested blocks", len(results)))
	}
	return out, nil
}

// Next returns the following page, or false once it would start past the
// accumulator's current leaf count.
func (t BlockSyncTask) Next() (BlockSyncTask, bool) {
	next := t.startNumber + t.batchSize
	if next > t.accumulator.NumLeaves() {
		return BlockSyncTask{}, false
	}
	t.startNumber = next
	return t, true
}

// TotalItems is the number of leaves from this page to the accumulator's
// current end. The accumulator may grow, so it is only a hint.
func (t BlockSyncTask) TotalItems() uint64 {
	n := t.accumulator.NumLeaves()
	if n < t.startNumber {
		return 0
	}
	return n - t.startNumber
}
