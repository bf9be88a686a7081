package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	debug      bool
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "plinko",
		Short:         "Provably fair plinko outcome engine.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flags.debug {
				level = slog.LevelDebug
			}
			logger.Init(&logger.Options{
				Level:      level,
				TimeFormat: time.RFC3339,
			})
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "configs/config.yaml", "Path to config file.")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logs.")

	root.AddCommand(
		newServeCmd(flags),
		newChainCmd(flags),
		newVerifyCmd(flags),
		newSimulateCmd(flags),
		newTableCmd(),
		newBoardCmd(flags),
	)

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Config loaded", "path", flags.configPath, "environment", cfg.Environment)
	return cfg, nil
}
