// Package storage is the byte-oriented key/value layer the ledger is persisted
// through: single-namespace Repositories, namespace-qualified
// InnerRepositories, the two-tier cache + durable Storage composite and the
// typed CodecStorage view.
package storage

import "errors"

var (
	// ErrCorruption marks stored data that cannot be trusted: a decode
	// failure, a malformed fixed-width key or a dangling reference.
	ErrCorruption = errors.New("storage corruption")

	// ErrPrecondition marks a request the caller should never have made.
	ErrPrecondition = errors.New("precondition failed")
)

// Repository is a single-namespace byte key/value store. Get returns
// (nil, nil) for a missing key. There are no cross-key transactions.
type Repository interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	ContainsKey(key []byte) (bool, error)
	Remove(key []byte) error
	Len() (int, error)
	Keys() ([][]byte, error)
}

// InnerRepository is the namespace-qualified form of Repository, letting one
// engine serve several logical namespaces.
type InnerRepository interface {
	Get(namespace string, key []byte) ([]byte, error)
	Put(namespace string, key, value []byte) error
	ContainsKey(namespace string, key []byte) (bool, error)
	Remove(namespace string, key []byte) error
	Len(namespace string) (int, error)
	Keys(namespace string) ([][]byte, error)
}

// WriteOp is one mutation of a write batch.
type WriteOp struct {
	Namespace string
	Key       []byte
	Value     []byte
	Delete    bool
}

// BatchWriter is implemented by InnerRepositories that can commit several
// mutations atomically.
type BatchWriter interface {
	WriteBatch(ops []WriteOp) error
}
