package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fystack/plinko-engine/internal/server"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/ratelimiter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const limiterIdle = 10 * time.Minute

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rolls and verification over HTTP while the hash chain is built.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := server.NewHandler(server.Options{
				Version:       version,
				Engine:        a.engine,
				Rounds:        a.rounds,
				Epochs:        a.epochs,
				Locker:        a.locker,
				Limiter:       ratelimiter.NewPooledRateLimiter(cfg.Server.RPS, cfg.Server.Burst, limiterIdle),
				VerifyLimiter: ratelimiter.NewPooledRateLimiter(cfg.Server.VerifyRPS, cfg.Server.VerifyBurst, limiterIdle),
				LockTTL:       cfg.Server.LockTTL,
				Logger:        logger.L(),
			})
			srv := server.New(port, handler)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				written, err := a.builder.Run(gctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				logger.Info("Chain builder finished", "written", written)
				return nil
			})
			g.Go(func() error {
				return srv.Run(gctx)
			})

			logger.Info("Plinko engine is running... Press Ctrl+C to stop")
			err = g.Wait()
			logger.Info("Plinko engine stopped")
			return err
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port).")
	return cmd
}
