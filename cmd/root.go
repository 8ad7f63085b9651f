package cmd

import (
	"os"

	"github.com/mezonai/chainsync/config"
	"github.com/mezonai/chainsync/logx"
	"github.com/spf13/cobra"
)

var (
	configPath string
	tuningPath string
	debugLog   bool
	consoleLog bool
)

var rootCmd = &cobra.Command{
	Use:   "chainsync",
	Short: "Block accumulator sync node",
	Long:  "Command line interface for running, syncing and inspecting a chainsync node.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if consoleLog {
			logx.SetOutput(os.Stderr)
		}
		logx.SetDebug(debugLog)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to node.yml (in-memory defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "Optional .ini file whose [sync] section overrides sync settings")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&consoleLog, "console", false, "Log to stderr instead of the log file")
}

func loadConfiguration() (*config.ChainSyncConfig, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if tuningPath != "" {
		if err := config.LoadSyncTuning(tuningPath, &cfg.Sync); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
