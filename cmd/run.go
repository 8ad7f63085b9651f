package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mezonai/chainsync/config"
	"github.com/mezonai/chainsync/exception"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
	"github.com/mezonai/chainsync/p2p"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node serving its blocks to peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runNode(ctx, cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(ctx context.Context, cmd *cobra.Command, cfg *config.ChainSyncConfig) error {
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

	server := p2p.NewBlockServer(h, n.storage, func() p2p.LeafSource { return n.chain.Accumulator() }, scoring)
	server.Start()
	defer server.Stop()

	if len(cfg.Network.BootstrapPeers) > 0 {
		connected := p2p.ConnectBootstrap(ctx, h, cfg.Network.BootstrapPeers)
		logx.Info("CMD", fmt.Sprintf("Connected to %d/%d bootstrap peers", connected, len(cfg.Network.BootstrapPeers)))
	}

	var metricsServer *http.Server
	if cfg.Metrics.ListenAddr != "" {
		monitoring.DefaultSyncMetrics()
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		exception.SafeGo("MetricsServer", func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error("CMD", "Metrics server stopped:", err)
			}
		})
	}

	head := n.chain.Head()
	fmt.Fprintf(cmd.OutOrStdout(), "serving head %d %s\n", head.Number(), head.ID())
	for _, addr := range p2p.OwnAddresses(h) {
		fmt.Fprintln(cmd.OutOrStdout(), addr)
	}

	<-ctx.Done()
	logx.Info("CMD", "Shutting down")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
