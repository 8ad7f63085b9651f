package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mezonai/chainsync/logx"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize      = 32
	DefaultListenAddr     = "/ip4/0.0.0.0/tcp/9100"
	DefaultFetchTimeoutMs = 10000
)

var ErrInvalidPrivKey = errors.New("invalid ed25519 private key")

// Default returns a config for an in-memory node.
func Default() *ChainSyncConfig {
	cfg := &ChainSyncConfig{}
	cfg.Storage.Type = "memory"
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads and parses a node.yml file
func LoadConfig(path string) (*ChainSyncConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg := &cfgFile.Config
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded config %s: storage=%s cache=%s batch=%d", path, cfg.Storage.Type, cfg.Cache.Type, cfg.Sync.BatchSize))
	return cfg, nil
}

func (c *ChainSyncConfig) applyDefaults() {
	if c.Network.ListenAddr == "" {
		c.Network.ListenAddr = DefaultListenAddr
	}
	if c.Network.FetchTimeoutMs == 0 {
		c.Network.FetchTimeoutMs = DefaultFetchTimeoutMs
	}
	if c.Genesis.Difficulty == 0 {
		c.Genesis.Difficulty = 1
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = DefaultBatchSize
	}
}

// Validate validates every section
func (c *ChainSyncConfig) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Network.FetchTimeoutMs < 0 {
		return fmt.Errorf("network: fetch_timeout_ms cannot be negative")
	}
	if c.Sync.BatchSize == 0 {
		return fmt.Errorf("sync: batch_size must be positive")
	}
	return nil
}

func (c *ChainSyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Network.FetchTimeoutMs) * time.Millisecond
}

// LoadSyncTuning reads the [sync] section of an .ini file over cfg.Sync.
// Keys missing from the file keep their current value.
func LoadSyncTuning(path string, cfg *SyncConfig) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}
	syncSection := file.Section("sync")
	if err := syncSection.MapTo(cfg); err != nil {
		return err
	}
	if cfg.BatchSize == 0 {
		return fmt.Errorf("sync: batch_size must be positive")
	}
	return nil
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivKey, err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivKey, ed25519.PrivateKeySize, len(key))
	}
	return ed25519.PrivateKey(key), nil
}
