package store

import (
	"fmt"

	"github.com/mezonai/chainsync/db"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/storage"
)

// StoreType represents the durable engine behind the storage layer
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// RocksDBStoreType uses the RocksDB implementation
	RocksDBStoreType StoreType = "rocksdb"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"

	// BoltStoreType uses the bbolt implementation
	BoltStoreType StoreType = "bolt"

	// PostgresStoreType uses a Postgres key/value table
	PostgresStoreType StoreType = "postgres"

	// MemoryStoreType keeps everything in process memory
	MemoryStoreType StoreType = "memory"
)

// CacheType represents the cache tier in front of the durable engine
type CacheType string

const (
	// MirrorCacheType is an unbounded cache warmed with every key at startup
	MirrorCacheType CacheType = "mirror"

	// LRUCacheType bounds the cache by entry count
	LRUCacheType CacheType = "lru"

	// FreeCacheType bounds the cache by bytes
	FreeCacheType CacheType = "freecache"
)

// StoreConfig holds configuration for the durable engine
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	// Address is the Redis server address
	Address string `json:"address" yaml:"address"`

	// RedisDB selects the Redis logical database
	RedisDB int `json:"redis_db" yaml:"redis_db"`

	// DSN is the Postgres connection string
	DSN string `json:"dsn" yaml:"dsn"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	if sc.Type == "" {
		return fmt.Errorf("store type cannot be empty")
	}

	switch sc.Type {
	case LevelDBStoreType, RocksDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty")
		}
	case RedisStoreType:
		if sc.Address == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case PostgresStoreType:
		if sc.DSN == "" {
			return fmt.Errorf("postgres dsn cannot be empty")
		}
	case MemoryStoreType:
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// CacheConfig holds configuration for the cache tier
type CacheConfig struct {
	Type CacheType `json:"type" yaml:"type"`

	// Size is an entry count for lru and a byte budget for freecache
	Size int `json:"size" yaml:"size"`
}

// Validate validates the cache configuration
func (cc *CacheConfig) Validate() error {
	switch cc.Type {
	case MirrorCacheType, "":
		return nil
	case LRUCacheType, FreeCacheType:
		if cc.Size <= 0 {
			return fmt.Errorf("cache size must be positive for %s", cc.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported cache type: %s", cc.Type)
	}
}

// Backend is an opened durable engine with its cache tier.
type Backend struct {
	Cache       storage.InnerRepository
	DB          *storage.ProviderRepository
	readThrough bool
	mirror      *storage.MirrorCache
}

// Prepare makes namespaces created at runtime, such as per-lineage
// accumulator indexes, readable through the cache. A mirror cache only
// answers for namespaces it has loaded, so unwarmed ones are loaded from the
// durable engine. Bounded caches read through and need nothing.
func (b *Backend) Prepare(namespaces ...string) error {
	if b.mirror == nil {
		return nil
	}
	for _, ns := range namespaces {
		if b.mirror.Warmed(ns) {
			continue
		}
		if err := b.mirror.Warm(ns, b.DB); err != nil {
			return fmt.Errorf("warm %s: %w", ns, err)
		}
	}
	return nil
}

// Storage binds namespace across the backend's two tiers.
func (b *Backend) Storage(namespace string) *storage.Storage {
	return storage.NewStorage(namespace, b.Cache, b.DB, b.Options()...)
}

// Options are the storage options every namespace of the backend needs.
func (b *Backend) Options() []storage.Option {
	if b.readThrough {
		return []storage.Option{storage.WithReadThrough()}
	}
	return nil
}

func (b *Backend) Close() error {
	return b.DB.Close()
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.IterableProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)

	case RocksDBStoreType:
		return db.NewOptimizedRocksDBProvider(config.Directory)

	case RedisStoreType:
		return db.NewRedisProvider(config.Address, config.RedisDB)

	case BoltStoreType:
		return db.NewBoltProvider(config.Directory)

	case PostgresStoreType:
		return db.NewPostgresProvider(config.DSN)

	case MemoryStoreType:
		return db.NewMemoryProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// CreateCache creates the cache tier. A mirror cache is warmed from durable
// for the fixed namespaces; others are warmed by Backend.Prepare. Bounded
// caches start empty and are read through.
func (sf *StoreFactory) CreateCache(config *CacheConfig, durable *storage.ProviderRepository) (storage.InnerRepository, bool, error) {
	if err := config.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid cache config: %w", err)
	}

	switch config.Type {
	case LRUCacheType:
		cache, err := storage.NewLRUCache(config.Size)
		return cache, true, err

	case FreeCacheType:
		return storage.NewFreeCache(config.Size), true, nil

	default:
		cache := storage.NewMirrorCache()
		for _, ns := range Namespaces {
			if err := cache.Warm(ns, durable); err != nil {
				return nil, false, fmt.Errorf("warm %s: %w", ns, err)
			}
		}
		return cache, false, nil
	}
}

// Open creates the durable engine and its cache tier.
func (sf *StoreFactory) Open(storeCfg *StoreConfig, cacheCfg *CacheConfig) (*Backend, error) {
	provider, err := sf.CreateProvider(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	durable := storage.NewProviderRepository(provider)

	cache, readThrough, err := sf.CreateCache(cacheCfg, durable)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	logx.Info("STORAGE", fmt.Sprintf("opened %s store with %s cache", storeCfg.Type, cacheType(cacheCfg)))
	mirror, _ := cache.(*storage.MirrorCache)
	return &Backend{Cache: cache, DB: durable, readThrough: readThrough, mirror: mirror}, nil
}

func cacheType(cfg *CacheConfig) CacheType {
	if cfg.Type == "" {
		return MirrorCacheType
	}
	return cfg.Type
}

// Global factory instance
var globalFactory = NewStoreFactory()

// Open opens a backend using the global factory
func Open(storeCfg *StoreConfig, cacheCfg *CacheConfig) (*Backend, error) {
	return globalFactory.Open(storeCfg, cacheCfg)
}

// NewMemoryBackend returns a memory engine behind a mirror cache.
func NewMemoryBackend() *Backend {
	mirror := storage.NewMirrorCache()
	return &Backend{
		Cache:  mirror,
		DB:     storage.NewProviderRepository(db.NewMemoryProvider()),
		mirror: mirror,
	}
}
