package cmd

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/config"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/p2p"
	"github.com/mezonai/chainsync/store"
)

// node is the local chain opened from config.
type node struct {
	cfg      *config.ChainSyncConfig
	backend  *store.Backend
	storage  *chain.Storage
	accStore *accumulator.Store
	chain    *chain.BlockChain
}

func openNode(cfg *config.ChainSyncConfig) (*node, error) {
	backend, err := store.Open(&cfg.Storage, &cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	st := chain.NewBackendStorage(backend)
	indexNS, err := st.HeadIndexNamespace()
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	if err := backend.Prepare(indexNS); err != nil {
		_ = backend.Close()
		return nil, err
	}
	accStore := accumulator.NewNamedTwoTierStore(backend.Cache, backend.DB,
		indexNS, store.NamespaceAccumulatorNode, backend.Options()...)

	c, err := chain.OpenBlockChain(st, accStore, chain.RealTimeService{})
	if errors.Is(err, chain.ErrNoHead) {
		genesis := block.NewGenesis(cfg.Genesis.Timestamp, uint256.NewInt(cfg.Genesis.Difficulty))
		logx.Info("CMD", "No chain head found, initialising genesis ", genesis.ID().String())
		c, err = chain.NewGenesisChain(st, accStore, genesis, chain.RealTimeService{})
	}
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}

	return &node{cfg: cfg, backend: backend, storage: st, accStore: accStore, chain: c}, nil
}

func (n *node) Close() {
	if err := n.backend.Close(); err != nil {
		logx.Error("CMD", "Failed to close storage:", err)
	}
}

func newHost(cfg *config.ChainSyncConfig) (host.Host, error) {
	var key crypto.PrivKey
	if cfg.Network.PrivKeyPath != "" {
		raw, err := config.LoadEd25519PrivKey(cfg.Network.PrivKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		key, err = p2p.UnmarshalEd25519PrivateKey(raw)
		if err != nil {
			return nil, err
		}
	}
	return p2p.NewHost(cfg.Network.ListenAddr, key)
}
