package storage

import "fmt"

// WriteBatch commits ops to the durable store, atomically when it implements
// BatchWriter, and then mirrors them into the cache. The cache is not touched
// if the durable write fails.
func WriteBatch(cache, db InnerRepository, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	if bw, ok := db.(BatchWriter); ok {
		if err := bw.WriteBatch(ops); err != nil {
			return err
		}
	} else if err := applyOps(db, ops); err != nil {
		return err
	}

	if cache == nil {
		return nil
	}
	if err := applyOps(cache, ops); err != nil {
		return fmt.Errorf("mirror batch into cache: %w", err)
	}
	return nil
}

func applyOps(repo InnerRepository, ops []WriteOp) error {
	for _, op := range ops {
		var err error
		if op.Delete {
			err = repo.Remove(op.Namespace, op.Key)
		} else {
			err = repo.Put(op.Namespace, op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
