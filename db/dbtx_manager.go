package db

import (
	"errors"
	"fmt"

	"github.com/mezonai/chainsync/logx"
)

var (
	// ErrBatchAborted wraps the error of a batch closure; nothing was written.
	ErrBatchAborted = errors.New("batch aborted")

	// ErrBatchCommit wraps an engine failure while writing a batch.
	ErrBatchCommit = errors.New("batch commit failed")
)

// DBTxManager commits the write batches of the storage layer, such as the
// nodes and index positions of one accumulator append or a lineage fork.
type DBTxManager struct {
	provider DatabaseProvider
}

func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// countingBatch records how many mutations a closure staged.
type countingBatch struct {
	DatabaseBatch
	puts    int
	deletes int
}

func (b *countingBatch) Put(key, value []byte) {
	b.puts++
	b.DatabaseBatch.Put(key, value)
}

func (b *countingBatch) Delete(key []byte) {
	b.deletes++
	b.DatabaseBatch.Delete(key)
}

// WithBatch stages mutations through fn and commits them in one engine
// write. A closure error discards the batch. A closure that stages nothing
// does not touch the engine.
func (tm *DBTxManager) WithBatch(fn func(batch DatabaseBatch) error) error {
	batch := &countingBatch{DatabaseBatch: tm.provider.Batch()}
	defer func() {
		if err := batch.Close(); err != nil {
			logx.Error("DB", "Failed to close batch:", err)
		}
	}()

	if err := fn(batch); err != nil {
		batch.Reset()
		return fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}
	if batch.puts+batch.deletes == 0 {
		return nil
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w (%d puts, %d deletes): %w", ErrBatchCommit, batch.puts, batch.deletes, err)
	}
	logx.Debug("DB", fmt.Sprintf("committed batch, puts: %d, deletes: %d", batch.puts, batch.deletes))
	return nil
}
