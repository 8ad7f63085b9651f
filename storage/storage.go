package storage

import (
	"fmt"

	"github.com/mezonai/chainsync/logx"
)

// ReadResult tells how the cache tier answered a lookup.
type ReadResult int

const (
	// ReadFound means the cache held the key.
	ReadFound ReadResult = iota
	// ReadConfirmedAbsent means the cache answered without error and did not
	// hold the key.
	ReadConfirmedAbsent
	// ReadCacheUnavailable means the cache read failed and the value, if any,
	// came from the durable store.
	ReadCacheUnavailable
)

func (r ReadResult) String() string {
	switch r {
	case ReadFound:
		return "found"
	case ReadConfirmedAbsent:
		return "confirmed_absent"
	case ReadCacheUnavailable:
		return "cache_unavailable"
	default:
		return fmt.Sprintf("read_result(%d)", int(r))
	}
}

// Option configures a Storage.
type Option func(*Storage)

// WithReadThrough makes a confirmed cache miss consult the durable store and
// backfill the cache. Use it whenever the cache is not a complete mirror of
// the namespace.
func WithReadThrough() Option {
	return func(s *Storage) {
		s.readThrough = true
	}
}

// Storage binds one namespace across a cache and a durable InnerRepository.
// The durable store is authoritative and written first; the cache is
// write-through.
//
// Without WithReadThrough, a miss confirmed by the cache is final, so a cache
// that is not an eager mirror can hide durable content. Len and Keys are
// always answered by the cache.
type Storage struct {
	namespace   string
	cache       InnerRepository
	db          InnerRepository
	readThrough bool
}

func NewStorage(namespace string, cache, db InnerRepository, opts ...Option) *Storage {
	s := &Storage{
		namespace: namespace,
		cache:     cache,
		db:        db,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Namespace() string { return s.namespace }

// Lookup reads key and reports how the cache tier answered. On
// ReadConfirmedAbsent the durable store has not been consulted.
func (s *Storage) Lookup(key []byte) ([]byte, ReadResult, error) {
	value, err := s.cache.Get(s.namespace, key)
	if err == nil {
		if value == nil {
			return nil, ReadConfirmedAbsent, nil
		}
		return value, ReadFound, nil
	}

	logx.Debug("STORAGE", fmt.Sprintf("cache read failed on %s, falling back to durable store: %v", s.namespace, err))
	value, err = s.db.Get(s.namespace, key)
	if err != nil {
		return nil, ReadCacheUnavailable, err
	}
	return value, ReadCacheUnavailable, nil
}

func (s *Storage) Get(key []byte) ([]byte, error) {
	value, result, err := s.Lookup(key)
	if err != nil {
		return nil, err
	}
	if result != ReadConfirmedAbsent || !s.readThrough {
		return value, nil
	}

	value, err = s.db.Get(s.namespace, key)
	if err != nil || value == nil {
		return nil, err
	}
	if err := s.cache.Put(s.namespace, key, value); err != nil {
		logx.Warn("STORAGE", fmt.Sprintf("cache backfill failed on %s: %v", s.namespace, err))
	}
	return value, nil
}

func (s *Storage) Put(key, value []byte) error {
	if err := s.db.Put(s.namespace, key, value); err != nil {
		return err
	}
	return s.cache.Put(s.namespace, key, value)
}

func (s *Storage) ContainsKey(key []byte) (bool, error) {
	ok, err := s.cache.ContainsKey(s.namespace, key)
	if err != nil {
		return s.db.ContainsKey(s.namespace, key)
	}
	if !ok && s.readThrough {
		return s.db.ContainsKey(s.namespace, key)
	}
	return ok, nil
}

// Remove deletes from the durable store first. If that fails the cache keeps
// its copy and the error is returned.
func (s *Storage) Remove(key []byte) error {
	if err := s.db.Remove(s.namespace, key); err != nil {
		return err
	}
	return s.cache.Remove(s.namespace, key)
}

func (s *Storage) Len() (int, error) {
	return s.cache.Len(s.namespace)
}

func (s *Storage) Keys() ([][]byte, error) {
	return s.cache.Keys(s.namespace)
}
