package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fystack/plinko-engine/internal/chain"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
	"github.com/spf13/cobra"
)

func newChainCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Build or audit the lightning epoch hash chain.",
	}
	cmd.AddCommand(newChainBuildCmd(flags), newChainVerifyCmd(flags))
	return cmd
}

func openBuilder(flags *rootFlags) (*chain.Builder, chainstore.Store, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, nil, fmt.Errorf("open kvstore: %w", err)
	}
	store := chainstore.NewChainStore(kv)
	b, err := chain.NewBuilder(enum.GameLightningPlinko, cfg.Games.Lightning.Chain, store, logger.L())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return b, store, nil
}

func newChainBuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Extend the chain to game_count links, resuming from the stored head.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, store, err := openBuilder(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			written, err := b.Run(ctx)
			logger.Info("Chain build done",
				"written", written,
				"game_count", b.GameCount(),
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return err
		},
	}
}

func newChainVerifyCmd(flags *rootFlags) *cobra.Command {
	var from, to int64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-walk stored links and check each one hashes to the next.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, store, err := openBuilder(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			if to < 0 {
				head, ok, err := store.Head(enum.GameLightningPlinko)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("chain is empty")
				}
				to = head
			}
			if err := b.Audit(context.Background(), from, to); err != nil {
				return err
			}
			logger.Info("Chain verified", "from", from, "to", to)
			return nil
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "First chain index to check.")
	cmd.Flags().Int64Var(&to, "to", -1, "Last chain index to check (default: head).")
	return cmd
}
