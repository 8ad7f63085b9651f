package storage

import (
	"bytes"
	"errors"
	"sort"

	"github.com/coocood/freecache"
)

// FreeCache is a byte-bounded cache tier on coocood/freecache. Like LRUCache
// it drops entries under pressure.
type FreeCache struct {
	cache *freecache.Cache
}

// NewFreeCache allocates a cache of sizeBytes; freecache enforces a 512KB
// minimum.
func NewFreeCache(sizeBytes int) *FreeCache {
	return &FreeCache{cache: freecache.NewCache(sizeBytes)}
}

func (c *FreeCache) Get(namespace string, key []byte) ([]byte, error) {
	v, err := c.cache.Get(physicalKey(namespace, key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Put stores the entry. Entries larger than a freecache segment allows are
// dropped instead, leaving a miss.
func (c *FreeCache) Put(namespace string, key, value []byte) error {
	k := physicalKey(namespace, key)
	err := c.cache.Set(k, value, 0)
	if errors.Is(err, freecache.ErrLargeEntry) || errors.Is(err, freecache.ErrLargeKey) {
		c.cache.Del(k)
		return nil
	}
	return err
}

func (c *FreeCache) ContainsKey(namespace string, key []byte) (bool, error) {
	_, err := c.cache.Get(physicalKey(namespace, key))
	if errors.Is(err, freecache.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *FreeCache) Remove(namespace string, key []byte) error {
	c.cache.Del(physicalKey(namespace, key))
	return nil
}

func (c *FreeCache) Len(namespace string) (int, error) {
	keys, err := c.Keys(namespace)
	return len(keys), err
}

func (c *FreeCache) Keys(namespace string) ([][]byte, error) {
	prefix := namespacePrefix(namespace)
	var keys []string
	it := c.cache.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if bytes.HasPrefix(entry.Key, prefix) {
			keys = append(keys, string(entry.Key[len(prefix):]))
		}
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out, nil
}

// HitRate reports the freecache hit ratio.
func (c *FreeCache) HitRate() float64 {
	return c.cache.HitRate()
}
