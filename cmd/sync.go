package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mezonai/chainsync/blocksync"
	"github.com/mezonai/chainsync/chain"
	"github.com/mezonai/chainsync/config"
	"github.com/mezonai/chainsync/events"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
	"github.com/mezonai/chainsync/p2p"
	"github.com/spf13/cobra"
)

var peerAddr string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the local chain from a peer's block accumulator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return syncFromPeer(ctx, cmd, cfg, peerAddr)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&peerAddr, "peer", "p", "", "Full multiaddr of the peer to sync from, ending in /p2p/<peer id>")
	_ = syncCmd.MarkFlagRequired("peer")
}

func syncFromPeer(ctx context.Context, cmd *cobra.Command, cfg *config.ChainSyncConfig, addr string) error {
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	h, err := newHost(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	scoring := p2p.NewPeerScoringManager(h.Network(), nil)
	defer scoring.Stop()

	pid, err := p2p.Connect(ctx, h, addr)
	if err != nil {
		return err
	}
	fetcher := p2p.NewBlockFetcher(h, scoring, cfg.FetchTimeout()).WithPeers(pid)

	info, leaves, err := fetcher.FetchLeaves(ctx, pid)
	if err != nil {
		return fmt.Errorf("fetch peer accumulator: %w", err)
	}
	target, err := blocksync.BuildTargetAccumulator(leaves, info.RootHash)
	if err != nil {
		return err
	}

	current := n.chain.HeadInfo()
	ancestor, ancestorID, err := blocksync.FindCommonAncestor(n.chain.Accumulator(), target)
	if err != nil {
		return err
	}
	lineage := n.chain
	if ancestorID != current.BlockID {
		indexNS := chain.LineageNamespace(info.RootHash)
		logx.Warn("SYNC", fmt.Sprintf("Local head %s is not on the peer's chain, syncing from ancestor %d %s into %s",
			current.BlockID.Short(), ancestor, ancestorID.Short(), indexNS))
		if err := n.backend.Prepare(indexNS); err != nil {
			return err
		}
		lineage, err = chain.ForkBlockChain(n.storage, n.accStore, ancestorID, indexNS, chain.RealTimeService{})
		if err != nil {
			return fmt.Errorf("open chain at ancestor: %w", err)
		}
	}

	metrics := monitoring.DefaultSyncMetrics()
	task := blocksync.NewBlockSyncTask(target, ancestor+1, fetcher, cfg.Sync.CheckLocalStore, n.storage, cfg.Sync.BatchSize).
		WithMetrics(metrics)
	bus := events.NewEventBus()
	collector := blocksync.NewBlockCollector(current, lineage, bus, scoring, cfg.Sync.SkipPowVerify).
		WithMetrics(metrics)

	synced, err := blocksync.NewDriver(task, collector, cfg.Sync.Prefetch).WithMetrics(metrics).Run(ctx)
	if err != nil {
		return fmt.Errorf("sync from %s: %w", pid, err)
	}

	head := synced.Head()
	fmt.Fprintf(cmd.OutOrStdout(), "synced to head %d %s\n", head.Number(), head.ID())
	if persisted, _, err := n.storage.GetHead(); err == nil && persisted != head.ID() {
		fmt.Fprintf(cmd.OutOrStdout(), "synced lineage is not heavier than local head %s, head kept\n", persisted)
	}
	return nil
}
