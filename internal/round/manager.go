package round

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/events"
	"github.com/fystack/plinko-engine/pkg/store/roundstore"
	"github.com/google/uuid"
)

var ErrRoundClosed = errors.New("round is closed")

// Round is re-exported so callers do not need the store package.
type Round = roundstore.Round

// Manager owns the round lifecycle. Callers must hold a per (user, game) lock
// around every mutating call; Manager does not serialize access itself.
type Manager struct {
	store   roundstore.Store
	seeds   map[enum.Game]string
	emitter events.Emitter
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Manager)

// WithEmitter publishes a RoundClosedEvent whenever a round is closed.
func WithEmitter(e events.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager takes the server seed of every game it will manage.
func NewManager(store roundstore.Store, serverSeeds map[enum.Game]string, l *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		seeds:  serverSeeds,
		now:    time.Now,
		logger: logger.Or(l).With("component", "round_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) serverSeed(op string, game enum.Game) (string, error) {
	seed, ok := m.seeds[game]
	if !ok || seed == "" {
		return "", types.Validation(op, "no server seed for game %q", game)
	}
	return seed, nil
}

// Seed derives the secret seed of r. It is only handed out once r is over.
func (m *Manager) Seed(r *Round) (string, error) {
	serverSeed, err := m.serverSeed("round.Seed", r.Game)
	if err != nil {
		return "", err
	}
	return fairness.RoundSeed(serverSeed, r.ID), nil
}

// Current returns the user's open round, opening one when none exists.
func (m *Manager) Current(game enum.Game, userID string) (*Round, error) {
	const op = "round.Current"
	if userID == "" {
		return nil, types.Validation(op, "user id is required")
	}
	serverSeed, err := m.serverSeed(op, game)
	if err != nil {
		return nil, err
	}

	r, err := m.store.Open(game, userID)
	if err != nil {
		return nil, types.Internal(op, err)
	}
	if r != nil {
		return r, nil
	}

	id := uuid.NewString()
	r = &Round{
		ID:        id,
		UserID:    userID,
		Game:      game,
		Hash:      fairness.RoundHash(fairness.RoundSeed(serverSeed, id)),
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Save(r); err != nil {
		return nil, types.Internal(op, err)
	}
	m.logger.Debug("Opened round", "game", game, "user_id", userID, "round_id", id)
	return r, nil
}

// NextNonce reserves the next nonce of the user's current round. The returned
// round already carries the incremented counter; nonce is the one to play with.
func (m *Manager) NextNonce(game enum.Game, userID string) (*Round, uint64, error) {
	r, err := m.Current(game, userID)
	if err != nil {
		return nil, 0, err
	}
	nonce := r.Nonce
	r.Nonce++
	if err := m.store.Save(r); err != nil {
		return nil, 0, types.Internal("round.NextNonce", err)
	}
	return r, nonce, nil
}

// End closes the user's open round and reveals its seed. It returns nil when
// the user has no open round.
func (m *Manager) End(ctx context.Context, game enum.Game, userID string) (*Round, error) {
	r, err := m.store.Open(game, userID)
	if err != nil {
		return nil, types.Internal("round.End", err)
	}
	if r == nil {
		return nil, nil
	}
	return m.close(ctx, r)
}

// Close closes round id. Closing is idempotent: an already closed round
// returns nil and its seed is never revealed a second time through this call.
func (m *Manager) Close(ctx context.Context, game enum.Game, id string) (*Round, error) {
	r, err := m.Get(game, id)
	if err != nil {
		return nil, err
	}
	if r.RoundOver {
		return nil, nil
	}
	return m.close(ctx, r)
}

func (m *Manager) Get(game enum.Game, id string) (*Round, error) {
	const op = "round.Get"
	r, err := m.store.Get(game, id)
	if err != nil {
		if errors.Is(err, roundstore.ErrRoundNotFound) {
			return nil, types.NotFound(op, err)
		}
		return nil, types.Internal(op, err)
	}
	return r, nil
}

func (m *Manager) close(ctx context.Context, r *Round) (*Round, error) {
	const op = "round.close"
	seed, err := m.Seed(r)
	if err != nil {
		return nil, err
	}
	if fairness.RoundHash(seed) != r.Hash {
		return nil, types.Defect(op, errors.New("round seed does not match its commitment"))
	}

	now := m.now().UTC()
	r.Seed = seed
	r.RoundOver = true
	r.CompletedAt = &now
	if err := m.store.Save(r); err != nil {
		return nil, types.Internal(op, err)
	}

	m.logger.Info("Closed round", "game", r.Game, "user_id", r.UserID, "round_id", r.ID, "nonce", r.Nonce)
	if m.emitter != nil {
		if err := m.emitter.EmitRoundClosed(ctx, events.RoundClosedEvent{
			RoundID:     r.ID,
			UserID:      r.UserID,
			Game:        r.Game,
			Hash:        r.Hash,
			Seed:        r.Seed,
			Nonce:       r.Nonce,
			CompletedAt: now,
		}); err != nil {
			m.logger.Error("Failed to publish round closed event", "round_id", r.ID, "error", err)
		}
	}
	return r, nil
}
