package blocksync

import (
	"context"
	"fmt"

	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
	"golang.org/x/sync/errgroup"
)

// Driver runs a task to completion through a collector. With prefetch
// enabled the next page is fetched while the current one is collected.
type Driver[C Chain] struct {
	task      BlockSyncTask
	collector *BlockCollector[C]
	prefetch  bool
	metrics   *monitoring.SyncMetrics
}

func NewDriver[C Chain](task BlockSyncTask, collector *BlockCollector[C], prefetch bool) *Driver[C] {
	return &Driver[C]{task: task, collector: collector, prefetch: prefetch}
}

func (d *Driver[C]) WithMetrics(m *monitoring.SyncMetrics) *Driver[C] {
	d.metrics = m
	return d
}

// Run collects every page in leaf order and finishes the collector. The
// first error stops the sync; blocks collected before it stay applied.
func (d *Driver[C]) Run(ctx context.Context) (C, error) {
	var zero C
	task := d.task
	start := task.StartNumber()
	collected := uint64(0)

	logx.Info("SYNC", fmt.Sprintf("sync started at leaf %d, %d leaves to go, batch %d", start, task.TotalItems(), task.BatchSize()))

	batch, err := task.NewSubTask(ctx)
	if err != nil {
		return zero, err
	}
	for len(batch) > 0 {
		next, hasNext := task.Next()

		var nextBatch []SyncBlockData
		if hasNext && d.prefetch {
			nextBatch, err = d.collectPrefetching(ctx, batch, next)
		} else {
			err = d.collectAll(ctx, batch)
		}
		if err != nil {
			return zero, err
		}
		collected += uint64(len(batch))
		remaining := task.TotalItems() - uint64(len(batch))
		d.metrics.SetProgress(collected, remaining)
		logx.Info("SYNC", fmt.Sprintf("collected leaves [%d, %d), %d remaining", task.StartNumber(), task.StartNumber()+uint64(len(batch)), remaining))

		if !hasNext {
			break
		}
		if !d.prefetch {
			if nextBatch, err = next.NewSubTask(ctx); err != nil {
				return zero, err
			}
		}
		task = next
		batch = nextBatch
	}

	logx.Info("SYNC", fmt.Sprintf("sync finished, %d blocks collected from leaf %d", collected, start))
	return d.collector.Finish()
}

func (d *Driver[C]) collectAll(ctx context.Context, batch []SyncBlockData) error {
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.collector.Collect(item); err != nil {
			return err
		}
	}
	return nil
}

// collectPrefetching collects batch while next is fetched and returns the
// next page. A collect error cancels the fetch and waits for it.
func (d *Driver[C]) collectPrefetching(ctx context.Context, batch []SyncBlockData, next BlockSyncTask) ([]SyncBlockData, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)

	var nextBatch []SyncBlockData
	g.Go(func() error {
		var err error
		nextBatch, err = next.NewSubTask(gctx)
		return err
	})

	if err := d.collectAll(ctx, batch); err != nil {
		cancel()
		_ = g.Wait()
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nextBatch, nil
}
