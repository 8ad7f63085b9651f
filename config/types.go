package config

import (
	"github.com/mezonai/chainsync/store"
)

// NodeConfig holds the node's identity and network settings
type NodeConfig struct {
	PrivKeyPath    string   `yaml:"privkey_path"`
	ListenAddr     string   `yaml:"listen_addr"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	FetchTimeoutMs int      `yaml:"fetch_timeout_ms"`
}

// GenesisConfig pins the genesis block every node must share
type GenesisConfig struct {
	Timestamp  uint64 `yaml:"timestamp"`
	Difficulty uint64 `yaml:"difficulty"`
}

// SyncConfig holds the block sync knobs; the [sync] section of a tuning
// file overrides them
type SyncConfig struct {
	BatchSize       uint64 `yaml:"batch_size" ini:"batch_size"`
	CheckLocalStore bool   `yaml:"check_local_store" ini:"check_local_store"`
	SkipPowVerify   bool   `yaml:"skip_pow_verify" ini:"skip_pow_verify"`
	Prefetch        bool   `yaml:"prefetch" ini:"prefetch"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ChainSyncConfig holds the configuration from node.yml
type ChainSyncConfig struct {
	Network NodeConfig        `yaml:"network"`
	Genesis GenesisConfig     `yaml:"genesis"`
	Storage store.StoreConfig `yaml:"storage"`
	Cache   store.CacheConfig `yaml:"cache"`
	Sync    SyncConfig        `yaml:"sync"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

// ConfigFile is the top-level structure for node.yml
type ConfigFile struct {
	Config ChainSyncConfig `yaml:"config"`
}
