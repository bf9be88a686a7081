package main

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type simulationStats struct {
	mu        sync.Mutex
	boards    int
	fallbacks int
	offTarget int
	sumEV     float64
	minEV     float64
	maxEV     float64
	maxPayout float64
	pegs      int
}

func (s *simulationStats) add(b *lightning.Board, ev float64, onTarget bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boards == 0 {
		s.minEV, s.maxEV = ev, ev
	}
	s.boards++
	s.sumEV += ev
	s.minEV = math.Min(s.minEV, ev)
	s.maxEV = math.Max(s.maxEV, ev)
	s.pegs += len(b.Cells)
	if b.Fallback {
		s.fallbacks++
	}
	if !onTarget {
		s.offTarget++
	}
	for _, p := range b.Payouts {
		s.maxPayout = math.Max(s.maxPayout, p)
	}
}

// simulate generates boards for count synthetic hashes and measures each by
// walking every path, independently of the generator's own expected value.
func simulate(ctx context.Context, generator *lightning.Generator, count int, concurrency int64, prefix string, rtp, tolerance float64) (*simulationStats, error) {
	if count < 1 {
		return nil, fmt.Errorf("boards must be at least 1, got %d", count)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	stats := &simulationStats{}
	sem := semaphore.NewWeighted(concurrency)
	g, gctx := errgroup.WithContext(ctx)
	var acquireErr error
	for i := 0; i < count; i++ {
		if acquireErr = sem.Acquire(gctx, 1); acquireErr != nil {
			break
		}
		hash := fairness.SHA256(fmt.Sprintf("%s-%d", prefix, i))
		g.Go(func() error {
			defer sem.Release(1)
			b, err := generator.Generate(hash)
			if err != nil {
				return fmt.Errorf("board for %s: %w", hash, err)
			}
			ev := b.EnumeratedEV()
			onTarget := math.Abs(ev-rtp) <= tolerance
			if !onTarget {
				logger.Warn("Board off target RTP", "hash", hash, "ev", ev, "target_rtp", rtp)
			}
			stats.add(b, ev, onTarget)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}
	return stats, nil
}

// newSimulateCmd generates lightning boards for many synthetic epoch hashes
// and reports the spread of their expected values.
func newSimulateCmd(flags *rootFlags) *cobra.Command {
	var (
		boards      int
		concurrency int64
		prefix      string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Measure lightning board RTP over many epoch hashes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			lcfg := cfg.Games.Lightning
			generator, err := lightning.NewGenerator(lcfg.Board, lcfg.Edge, logger.L())
			if err != nil {
				return err
			}

			stats, err := simulate(cmd.Context(), generator, boards, concurrency, prefix, lcfg.RTP(), lcfg.Board.Tolerance)
			if err != nil {
				return err
			}

			logger.Info("Simulation done",
				"boards", stats.boards,
				"target_rtp", lcfg.RTP(),
				"mean_ev", stats.sumEV/float64(stats.boards),
				"min_ev", stats.minEV,
				"max_ev", stats.maxEV,
				"max_hole_payout", stats.maxPayout,
				"mean_pegs", float64(stats.pegs)/float64(stats.boards),
				"fallbacks", stats.fallbacks,
				"off_target", stats.offTarget,
			)
			if stats.offTarget > 0 {
				return fmt.Errorf("%d of %d boards outside the %.4f RTP tolerance", stats.offTarget, stats.boards, lcfg.Board.Tolerance)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&boards, "boards", 1000, "Number of epoch hashes to simulate.")
	cmd.Flags().Int64Var(&concurrency, "concurrency", int64(runtime.NumCPU()), "Boards generated in parallel.")
	cmd.Flags().StringVar(&prefix, "prefix", "simulation", "Seed prefix of the synthetic epoch hashes.")
	return cmd
}
