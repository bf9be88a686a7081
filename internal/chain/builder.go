package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/common/utils"
	"github.com/fystack/plinko-engine/pkg/retry"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
)

const (
	commitRetryInterval = 100 * time.Millisecond
	commitRetryMaxTime  = 30 * time.Second
)

// Builder extends a game's hash chain until it holds GameCount links.
type Builder struct {
	game   enum.Game
	cfg    config.ChainConfig
	hasher fairness.Hasher
	store  chainstore.Store
	logger *slog.Logger
}

func NewBuilder(game enum.Game, cfg config.ChainConfig, store chainstore.Store, l *slog.Logger) (*Builder, error) {
	const op = "chain.NewBuilder"
	if cfg.Seed == "" {
		return nil, types.Validation(op, "chain seed is required")
	}
	if cfg.GameCount <= 0 {
		return nil, types.Validation(op, "game count must be positive")
	}
	hasher, err := fairness.HasherFor(cfg.HashAlgorithm)
	if err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Builder{
		game:   game,
		cfg:    cfg,
		hasher: hasher,
		store:  store,
		logger: logger.Or(l).With("component", "chain_builder", "game", game),
	}, nil
}

func (b *Builder) Hasher() fairness.Hasher { return b.hasher }

func (b *Builder) GameCount() int64 { return b.cfg.GameCount }

// Ready reports whether every link has been persisted.
func (b *Builder) Ready() (bool, error) {
	head, ok, err := b.store.Head(b.game)
	if err != nil {
		return false, err
	}
	return ok && head >= b.cfg.GameCount-1, nil
}

// Run resumes from the highest persisted index and commits links in batches,
// pausing between batches. It returns the number of links written by this call.
func (b *Builder) Run(ctx context.Context) (int64, error) {
	next, previous, err := b.resumePoint()
	if err != nil {
		return 0, err
	}
	if next >= b.cfg.GameCount {
		b.logger.Debug("Chain already complete", "game_count", b.cfg.GameCount)
		return 0, nil
	}

	b.logger.Info("Building hash chain",
		"from", next,
		"game_count", b.cfg.GameCount,
		"batch_size", b.cfg.BatchSize,
	)
	startTime := time.Now()
	var written int64

	for next < b.cfg.GameCount {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled; chain build paused", "next", next, "written", written)
			return written, ctx.Err()
		default:
		}

		end := min(next+int64(b.cfg.BatchSize), b.cfg.GameCount)
		batch := make([]chainstore.Link, 0, end-next)
		for i := next; i < end; i++ {
			var hash string
			if i == 0 {
				hash = fairness.GenesisHash(b.hasher, b.cfg.Seed)
			} else {
				hash = fairness.NextHash(b.hasher, previous)
			}
			batch = append(batch, chainstore.Link{Index: i, Hash: hash, PreviousHash: previous})
			previous = hash
		}

		err := retry.Exponential(ctx, func() error {
			return b.store.SaveBatch(b.game, batch)
		}, retry.ExponentialConfig{
			InitialInterval: commitRetryInterval,
			MaxElapsedTime:  commitRetryMaxTime,
			OnRetry: func(err error, wait time.Duration) {
				b.logger.Warn("Chain batch commit failed, retrying",
					"range", utils.FormatRange(uint64(next), uint64(end-1)),
					"wait", wait,
					"error", err,
				)
			},
		})
		if err != nil {
			return written, fmt.Errorf("commit chain batch %s: %w", utils.FormatRange(uint64(next), uint64(end-1)), err)
		}

		written += end - next
		next = end
		b.logger.Debug("Chain batch committed", "head", next-1, "progress", fmt.Sprintf("%.1f%%", float64(next)/float64(b.cfg.GameCount)*100))

		if next < b.cfg.GameCount && b.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				b.logger.Info("Context cancelled; chain build paused", "next", next, "written", written)
				return written, ctx.Err()
			case <-time.After(b.cfg.BatchPause):
			}
		}
	}

	b.logger.Info("Hash chain complete",
		"game_count", b.cfg.GameCount,
		"written", written,
		"elapsed", time.Since(startTime).Truncate(time.Millisecond),
	)
	return written, nil
}

func (b *Builder) resumePoint() (int64, string, error) {
	head, ok, err := b.store.Head(b.game)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, "", nil
	}
	link, err := b.store.Get(b.game, head)
	if err != nil {
		return 0, "", types.Defect("chain.resumePoint", err)
	}
	return head + 1, link.Hash, nil
}

// Audit re-walks links [from, to] and reports every link that does not follow its predecessor.
func (b *Builder) Audit(ctx context.Context, from, to int64) error {
	return Audit(ctx, b.store, b.hasher, b.game, b.cfg.Seed, from, to)
}

// Audit checks hash[i] == H(hash[i-1]) for every stored link in [from, to].
// Link 0 is checked against the root seed when seed is not empty.
func Audit(ctx context.Context, store chainstore.Store, hasher fairness.Hasher, game enum.Game, seed string, from, to int64) error {
	const op = "chain.Audit"
	if from < 0 || to < from {
		return types.Validation(op, "invalid range %d-%d", from, to)
	}

	var errs types.MultiError
	var previous string
	if from > 0 {
		link, err := store.Get(game, from-1)
		if err != nil {
			return types.NotFound(op, err)
		}
		previous = link.Hash
	}

	for i := from; i <= to; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		link, err := store.Get(game, i)
		if err != nil {
			return types.NotFound(op, err)
		}
		switch {
		case i == 0 && seed != "":
			if link.Hash != fairness.GenesisHash(hasher, seed) {
				errs.Add(types.Mismatch(op, "link 0 does not match the root seed"))
			}
		case i > 0:
			if !fairness.VerifyLink(hasher, previous, link.Hash) {
				errs.Add(types.Mismatch(op, "link %d does not follow link %d", i, i-1))
			}
		}
		previous = link.Hash
	}
	return errs.ErrOrNil()
}
