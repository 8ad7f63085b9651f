package storage

import (
	"bytes"
	"sort"
	"sync"
)

// Scanner is implemented by durable repositories that can enumerate a
// namespace with its values.
type Scanner interface {
	Scan(namespace string, fn func(key, value []byte) bool) error
}

// MirrorCache is an unbounded in-memory InnerRepository. Once warmed from the
// durable store it holds every key of a namespace, so Len and Keys answered
// from it are exact.
type MirrorCache struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	warmed map[string]bool
}

func NewMirrorCache() *MirrorCache {
	return &MirrorCache{
		data:   make(map[string]map[string][]byte),
		warmed: make(map[string]bool),
	}
}

// Warmed reports whether namespace has been loaded from the durable store.
func (c *MirrorCache) Warmed(namespace string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warmed[namespace]
}

// Warm loads every entry of namespace from durable.
func (c *MirrorCache) Warm(namespace string, durable Scanner) error {
	loaded := make(map[string][]byte)
	err := durable.Scan(namespace, func(key, value []byte) bool {
		loaded[string(key)] = bytes.Clone(value)
		return true
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ns := c.ns(namespace)
	for k, v := range loaded {
		ns[k] = v
	}
	c.warmed[namespace] = true
	return nil
}

// ns must be called with the write lock held.
func (c *MirrorCache) ns(namespace string) map[string][]byte {
	m, ok := c.data[namespace]
	if !ok {
		m = make(map[string][]byte)
		c.data[namespace] = m
	}
	return m
}

func (c *MirrorCache) Get(namespace string, key []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.data[namespace][string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, nil
}

func (c *MirrorCache) Put(namespace string, key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ns(namespace)[string(key)] = bytes.Clone(value)
	return nil
}

func (c *MirrorCache) ContainsKey(namespace string, key []byte) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[namespace][string(key)]
	return ok, nil
}

func (c *MirrorCache) Remove(namespace string, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data[namespace], string(key))
	return nil
}

func (c *MirrorCache) Len(namespace string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[namespace]), nil
}

func (c *MirrorCache) Keys(namespace string) ([][]byte, error) {
	c.mu.RLock()
	keys := make([]string, 0, len(c.data[namespace]))
	for k := range c.data[namespace] {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out, nil
}

// Clear drops every namespace.
func (c *MirrorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]map[string][]byte)
	c.warmed = make(map[string]bool)
}
