package storage

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a count-bounded cache tier. Evicted keys turn into confirmed
// misses, so Storage over it should be built WithReadThrough.
type LRUCache struct {
	cache *lru.Cache
}

func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func cacheKey(namespace string, key []byte) string {
	return string(physicalKey(namespace, key))
}

func (c *LRUCache) Get(namespace string, key []byte) ([]byte, error) {
	v, ok := c.cache.Get(cacheKey(namespace, key))
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v.([]byte)), nil
}

func (c *LRUCache) Put(namespace string, key, value []byte) error {
	c.cache.Add(cacheKey(namespace, key), bytes.Clone(value))
	return nil
}

func (c *LRUCache) ContainsKey(namespace string, key []byte) (bool, error) {
	return c.cache.Contains(cacheKey(namespace, key)), nil
}

func (c *LRUCache) Remove(namespace string, key []byte) error {
	c.cache.Remove(cacheKey(namespace, key))
	return nil
}

// Len counts the resident keys of namespace.
func (c *LRUCache) Len(namespace string) (int, error) {
	keys, err := c.Keys(namespace)
	return len(keys), err
}

// Keys lists the resident keys of namespace.
func (c *LRUCache) Keys(namespace string) ([][]byte, error) {
	prefix := string(namespacePrefix(namespace))
	var keys []string
	for _, k := range c.cache.Keys() {
		s := k.(string)
		if strings.HasPrefix(s, prefix) {
			keys = append(keys, s[len(prefix):])
		}
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out, nil
}
