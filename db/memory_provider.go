package db

import (
	"bytes"
	"sort"
	"strings"
	"sync"
)

// MemoryProvider is an in-process DatabaseProvider. Nothing is persisted; it
// backs tests and the "memory" storage type.
type MemoryProvider struct {
	lock   sync.RWMutex
	db     map[string][]byte
	closed bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{db: make(map[string][]byte)}
}

func (p *MemoryProvider) Get(key []byte) ([]byte, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}
	if entry, ok := p.db[string(key)]; ok {
		return bytes.Clone(entry), nil
	}
	return nil, nil
}

func (p *MemoryProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if entry, ok := p.db[string(key)]; ok {
			result[string(key)] = bytes.Clone(entry)
		}
	}
	return result, nil
}

func (p *MemoryProvider) Put(key, value []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.db[string(key)] = bytes.Clone(value)
	return nil
}

func (p *MemoryProvider) Delete(key []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}
	delete(p.db, string(key))
	return nil
}

func (p *MemoryProvider) Has(key []byte) (bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.closed {
		return false, ErrClosed
	}
	_, ok := p.db[string(key)]
	return ok, nil
}

func (p *MemoryProvider) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.closed = true
	return nil
}

// Len returns the number of stored keys.
func (p *MemoryProvider) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.db)
}

func (p *MemoryProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.lock.RLock()
	if p.closed {
		p.lock.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0)
	for k := range p.db {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = bytes.Clone(p.db[k])
	}
	p.lock.RUnlock()

	for i, k := range keys {
		if !callback([]byte(k), values[i]) {
			break
		}
	}
	return nil
}

func (p *MemoryProvider) Batch() DatabaseBatch {
	return &MemoryBatch{provider: p}
}

type memoryWrite struct {
	key, value []byte
	del        bool
}

// MemoryBatch applies its writes under the provider's write lock.
type MemoryBatch struct {
	provider *MemoryProvider
	writes   []memoryWrite
}

func (b *MemoryBatch) Put(key, value []byte) {
	b.writes = append(b.writes, memoryWrite{key: bytes.Clone(key), value: bytes.Clone(value)})
}

func (b *MemoryBatch) Delete(key []byte) {
	b.writes = append(b.writes, memoryWrite{key: bytes.Clone(key), del: true})
}

func (b *MemoryBatch) Write() error {
	b.provider.lock.Lock()
	defer b.provider.lock.Unlock()

	if b.provider.closed {
		return ErrClosed
	}
	for _, w := range b.writes {
		if w.del {
			delete(b.provider.db, string(w.key))
			continue
		}
		b.provider.db[string(w.key)] = w.value
	}
	return nil
}

func (b *MemoryBatch) Reset() {
	b.writes = b.writes[:0]
}

func (b *MemoryBatch) Close() error {
	b.writes = nil
	return nil
}
