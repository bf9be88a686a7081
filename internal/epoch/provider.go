package epoch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/pkg/cache"
	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/events"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
)

// Epoch is one board epoch of a game together with its derived board.
// Hash is secret until EndsAt.
type Epoch[T any] struct {
	Game       enum.Game `json:"game"`
	Number     int64     `json:"number"`
	BoardIndex int64     `json:"board_index"`
	ChainIndex int64     `json:"chain_index"`
	Hash       string    `json:"hash"`
	Commitment string    `json:"commitment"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Board      T         `json:"board"`
}

// Commitment is the public part of an epoch.
type Commitment struct {
	Game       enum.Game `json:"game"`
	Number     int64     `json:"number"`
	BoardIndex int64     `json:"board_index"`
	Commitment string    `json:"commitment"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// BoardFunc derives a board from an epoch hash. It must be deterministic.
type BoardFunc[T any] func(hash string) (T, error)

type Provider[T any] struct {
	game     enum.Game
	schedule Schedule
	salt     string
	store    chainstore.Store
	cache    cache.Cache[Epoch[T]]
	build    BoardFunc[T]
	emitter  events.Emitter
	now      func() time.Time
	logger   *slog.Logger
}

type Option[T any] func(*Provider[T])

func WithEmitter[T any](e events.Emitter) Option[T] {
	return func(p *Provider[T]) { p.emitter = e }
}

func WithClock[T any](now func() time.Time) Option[T] {
	return func(p *Provider[T]) { p.now = now }
}

func NewProvider[T any](
	game enum.Game,
	schedule Schedule,
	salt string,
	store chainstore.Store,
	c cache.Cache[Epoch[T]],
	build BoardFunc[T],
	l *slog.Logger,
	opts ...Option[T],
) (*Provider[T], error) {
	if err := schedule.Validate(); err != nil {
		return nil, types.E(types.KindValidation, "epoch.NewProvider", err)
	}
	p := &Provider[T]{
		game:     game,
		schedule: schedule,
		salt:     salt,
		store:    store,
		cache:    c,
		build:    build,
		now:      time.Now,
		logger:   logger.Or(l).With("component", "epoch_provider", "game", game),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider[T]) Schedule() Schedule { return p.schedule }

func cacheKey(game enum.Game, boardIndex int64) string {
	return fmt.Sprintf("%s:%s:%d", constant.CacheKeyEpoch, game, boardIndex)
}

// Current returns the active epoch. The result is cached until the epoch ends.
func (p *Provider[T]) Current(ctx context.Context) (Epoch[T], error) {
	now := p.now()
	number := p.schedule.Number(now)
	boardIndex := p.schedule.BoardIndex(number)

	e, err := p.cache.GetOrCompute(ctx, cacheKey(p.game, boardIndex), p.schedule.Remaining(now), func(ctx context.Context) (Epoch[T], error) {
		e, err := p.ByNumber(ctx, number)
		if err != nil {
			return e, err
		}
		p.publish(ctx, e)
		return e, nil
	})
	if err != nil {
		return Epoch[T]{}, err
	}
	// a stale entry for the same board index from an earlier cycle is never served
	if e.Number != number {
		if err := p.cache.Delete(ctx, cacheKey(p.game, boardIndex)); err != nil {
			p.logger.Warn("Failed to evict stale epoch", "board_index", boardIndex, "error", err)
		}
		return p.ByNumber(ctx, number)
	}
	return e, nil
}

// ByNumber regenerates epoch number from the chain, bypassing the cache.
func (p *Provider[T]) ByNumber(ctx context.Context, number int64) (Epoch[T], error) {
	e, err := p.ByBoardIndex(ctx, p.schedule.BoardIndex(number))
	if err != nil {
		return e, err
	}
	e.Number = number
	e.StartsAt, e.EndsAt = p.schedule.Bounds(number)
	return e, nil
}

// ByBoardIndex regenerates the hash, commitment and board of a board index.
// Timing fields are left zero because a board index recurs every GameCount epochs.
func (p *Provider[T]) ByBoardIndex(_ context.Context, boardIndex int64) (Epoch[T], error) {
	const op = "epoch.ByBoardIndex"
	if boardIndex < 0 || boardIndex >= p.schedule.GameCount {
		return Epoch[T]{}, types.Validation(op, "board index %d outside [0,%d)", boardIndex, p.schedule.GameCount)
	}
	hash, chainIndex, err := p.hash(boardIndex)
	if err != nil {
		return Epoch[T]{}, err
	}
	board, err := p.build(hash)
	if err != nil {
		return Epoch[T]{}, fmt.Errorf("build board %d: %w", boardIndex, err)
	}
	return Epoch[T]{
		Game:       p.game,
		Number:     -1,
		BoardIndex: boardIndex,
		ChainIndex: chainIndex,
		Hash:       hash,
		Commitment: fairness.SaltedCommitment(p.game, hash, p.salt),
		Board:      board,
	}, nil
}

// Commitment returns the public commitment of the active epoch.
func (p *Provider[T]) Commitment(ctx context.Context) (Commitment, error) {
	e, err := p.Current(ctx)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment{
		Game:       e.Game,
		Number:     e.Number,
		BoardIndex: e.BoardIndex,
		Commitment: e.Commitment,
		StartsAt:   e.StartsAt,
		EndsAt:     e.EndsAt,
	}, nil
}

// Reveal returns the hash of epoch number once that epoch has ended. The
// chain is reused every GameCount epochs, so a past epoch sharing its link
// with the active one stays sealed until the active epoch ends too.
func (p *Provider[T]) Reveal(_ context.Context, number int64) (string, error) {
	const op = "epoch.Reveal"
	now := p.now()
	_, end := p.schedule.Bounds(number)
	if now.Before(end) {
		return "", types.Validation(op, "epoch %d is still active until %s", number, end.Format(time.RFC3339))
	}
	boardIndex := p.schedule.BoardIndex(number)
	active := p.schedule.Number(now)
	if p.schedule.BoardIndex(active) == boardIndex {
		_, activeEnd := p.schedule.Bounds(active)
		return "", types.Validation(op, "board %d of epoch %d is in use by epoch %d until %s",
			boardIndex, number, active, activeEnd.Format(time.RFC3339))
	}
	hash, _, err := p.hash(boardIndex)
	return hash, err
}

// hash loads the chain link for a board. A missing link means the chain was
// never built this far, which is a deployment defect rather than bad input.
func (p *Provider[T]) hash(boardIndex int64) (string, int64, error) {
	const op = "epoch.hash"
	chainIndex := p.schedule.ChainIndex(boardIndex)
	link, err := p.store.Get(p.game, chainIndex)
	if err != nil {
		if errors.Is(err, chainstore.ErrLinkNotFound) {
			p.logger.Error("Epoch hash missing", "board_index", boardIndex, "chain_index", chainIndex)
			return "", chainIndex, types.Defect(op, err)
		}
		return "", chainIndex, types.Internal(op, err)
	}
	if link.Hash == "" {
		return "", chainIndex, types.Defect(op, fmt.Errorf("empty hash at chain index %d", chainIndex))
	}
	return link.Hash, chainIndex, nil
}

func (p *Provider[T]) publish(ctx context.Context, e Epoch[T]) {
	if p.emitter == nil {
		return
	}
	err := p.emitter.EmitEpochCommitted(ctx, events.EpochCommittedEvent{
		Game:       e.Game,
		Number:     e.Number,
		BoardIndex: e.BoardIndex,
		Commitment: e.Commitment,
		StartsAt:   e.StartsAt,
		EndsAt:     e.EndsAt,
	})
	if err != nil {
		p.logger.Warn("Failed to publish epoch commitment", "number", e.Number, "error", err)
	}
}
