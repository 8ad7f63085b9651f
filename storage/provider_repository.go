package storage

import (
	"bytes"

	"github.com/mezonai/chainsync/db"
)

// ProviderRepository maps namespaces onto one flat key/value engine by
// prefixing every key with "<namespace>:".
type ProviderRepository struct {
	provider db.IterableProvider
	txm      *db.DBTxManager
}

func NewProviderRepository(provider db.IterableProvider) *ProviderRepository {
	return &ProviderRepository{
		provider: provider,
		txm:      db.NewDBTxManager(provider),
	}
}

// Provider returns the engine behind the repository.
func (r *ProviderRepository) Provider() db.IterableProvider { return r.provider }

func physicalKey(namespace string, key []byte) []byte {
	out := make([]byte, 0, len(namespace)+1+len(key))
	out = append(out, namespace...)
	out = append(out, ':')
	return append(out, key...)
}

func namespacePrefix(namespace string) []byte {
	return physicalKey(namespace, nil)
}

func (r *ProviderRepository) Get(namespace string, key []byte) ([]byte, error) {
	return r.provider.Get(physicalKey(namespace, key))
}

func (r *ProviderRepository) Put(namespace string, key, value []byte) error {
	return r.provider.Put(physicalKey(namespace, key), value)
}

func (r *ProviderRepository) ContainsKey(namespace string, key []byte) (bool, error) {
	return r.provider.Has(physicalKey(namespace, key))
}

func (r *ProviderRepository) Remove(namespace string, key []byte) error {
	return r.provider.Delete(physicalKey(namespace, key))
}

func (r *ProviderRepository) Len(namespace string) (int, error) {
	count := 0
	err := r.provider.IteratePrefix(namespacePrefix(namespace), func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

func (r *ProviderRepository) Keys(namespace string) ([][]byte, error) {
	prefix := namespacePrefix(namespace)
	var keys [][]byte
	err := r.provider.IteratePrefix(prefix, func(k, _ []byte) bool {
		keys = append(keys, bytes.Clone(k[len(prefix):]))
		return true
	})
	return keys, err
}

// Scan calls fn for every entry of namespace in ascending key order.
func (r *ProviderRepository) Scan(namespace string, fn func(key, value []byte) bool) error {
	prefix := namespacePrefix(namespace)
	return r.provider.IteratePrefix(prefix, func(k, v []byte) bool {
		return fn(k[len(prefix):], v)
	})
}

// WriteBatch commits ops in a single engine batch.
func (r *ProviderRepository) WriteBatch(ops []WriteOp) error {
	return r.txm.WithBatch(func(batch db.DatabaseBatch) error {
		for _, op := range ops {
			if op.Delete {
				batch.Delete(physicalKey(op.Namespace, op.Key))
				continue
			}
			batch.Put(physicalKey(op.Namespace, op.Key), op.Value)
		}
		return nil
	})
}

func (r *ProviderRepository) Close() error {
	return r.provider.Close()
}
