package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/plinko"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine plays and verifies bets. Roll and Verify mutate the user's round, so
// the caller must hold the (user, game) lock for their duration.
type Engine struct {
	games   config.GamesConfig
	rounds  Rounds
	epochs  Epochs
	history History
	settler Settler
	now     func() time.Time
	logger  *slog.Logger
}

type Deps struct {
	Games   config.GamesConfig
	Rounds  Rounds
	Epochs  Epochs // required for lightning_plinko only
	History History
	Settler Settler // optional
	Now     func() time.Time
	Logger  *slog.Logger
}

func NewEngine(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	history := deps.History
	if history == nil {
		history = NewMemoryHistory()
	}
	return &Engine{
		games:   deps.Games,
		rounds:  deps.Rounds,
		epochs:  deps.Epochs,
		history: history,
		settler: deps.Settler,
		now:     now,
		logger:  logger.Or(deps.Logger).With("component", "game_engine"),
	}
}

func (e *Engine) validate(bet *Bet) error {
	const op = "game.Roll"
	if !bet.Game.IsValid() {
		return types.Validation(op, "unknown game %q", bet.Game)
	}
	if bet.UserID == "" {
		return types.Validation(op, "user id is required")
	}
	if !bet.Amount.IsPositive() {
		return types.Validation(op, "bet amount must be positive")
	}
	if bet.Game.Epochal() {
		if e.epochs == nil {
			return types.Validation(op, "game %s is not enabled", bet.Game)
		}
		return nil
	}
	if !bet.Risk.IsValid() {
		return types.Validation(op, "unknown risk %q", bet.Risk)
	}
	if _, ok := plinko.Curve(bet.Rows, bet.Risk); !ok {
		return types.Validation(op, "unsupported row count %d", bet.Rows)
	}
	return nil
}

// Roll resolves one bet, persists its roll fields and hands it to the settler.
// Rolling a bet id that is already stored returns the stored outcome and
// retries its settlement if that never completed; no new nonce is used.
func (e *Engine) Roll(ctx context.Context, bet Bet) (*Outcome, error) {
	const op = "game.Roll"
	if err := e.validate(&bet); err != nil {
		return nil, err
	}
	gameCfg, err := e.games.Game(bet.Game)
	if err != nil {
		return nil, types.Validation(op, "%v", err)
	}

	if bet.ID != "" {
		rec, err := e.history.Get(ctx, bet.Game, bet.ID)
		switch {
		case err == nil:
			return e.resume(ctx, bet, rec)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, types.Internal(op, fmt.Errorf("load bet %s: %w", bet.ID, err))
		}
	}

	var ep *epoch.Epoch[*lightning.Board]
	if bet.Game.Epochal() {
		current, err := e.epochs.Current(ctx)
		if err != nil {
			return nil, err
		}
		if bet.Rows != 0 && bet.Rows != current.Board.Rows {
			return nil, types.Validation(op, "lightning board has %d rows, bet asked for %d", current.Board.Rows, bet.Rows)
		}
		bet.Rows = current.Board.Rows
		bet.Risk = ""
		ep = &current
	}

	r, nonce, err := e.rounds.NextNonce(bet.Game, bet.UserID)
	if err != nil {
		return nil, err
	}
	seed, err := e.rounds.Seed(r)
	if err != nil {
		return nil, err
	}

	result, err := resolve(gameCfg.Edge, bet.Game, seed, bet.ClientSeed, nonce, bet.Rows, bet.Risk, ep)
	if err != nil {
		return nil, err
	}

	multiplier, clamped := clampMultiplier(bet.Amount, gameCfg.MaxProfitDecimal(), result.RawMultiplier)
	if clamped {
		e.logger.Info("Payout clamped to max profit",
			"game", bet.Game,
			"user_id", bet.UserID,
			"round_id", r.ID,
			"nonce", nonce,
			"original_multiplier", result.RawMultiplier,
			"clamped_multiplier", multiplier,
		)
	}
	result.PayoutMultiplier = multiplier

	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	record := &model.BetHistory{
		BaseModel:        model.BaseModel{ID: bet.ID, CreatedAt: e.now().UTC()},
		UserID:           bet.UserID,
		Game:             bet.Game,
		Amount:           bet.Amount,
		Risk:             bet.Risk,
		Rows:             bet.Rows,
		Edge:             gameCfg.Edge,
		PayoutMultiplier: multiplier,
		RawMultiplier:    result.RawMultiplier,
		Clamped:          clamped,
		Payout:           bet.Amount.Mul(decimal.NewFromFloat(multiplier)).Round(8),
		BoardIndex:       result.BoardIndex,
		Hole:             result.Hole,
		ClientSeed:       bet.ClientSeed,
		RoundID:          r.ID,
		RoundHash:        r.Hash,
		Nonce:            nonce,
		AutoBet:          bet.AutoBet,
		Settled:          e.settler == nil,
	}
	if ep != nil {
		number := ep.Number
		board := e.games.Lightning.Board
		board.Multipliers = append([]float64(nil), board.Multipliers...)
		record.EpochNumber = &number
		record.BoardConfig = &board
	}

	if err := e.history.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, types.Validation(op, "bet id %s is already in use", bet.ID)
		}
		return nil, types.Internal(op, fmt.Errorf("save bet %s: %w", bet.ID, err))
	}
	if err := e.settle(ctx, record); err != nil {
		return nil, err
	}

	e.logger.Debug("Bet resolved",
		"game", bet.Game,
		"user_id", bet.UserID,
		"round_id", r.ID,
		"nonce", nonce,
		"hole", result.Hole,
		"payout_multiplier", multiplier,
	)
	return &Outcome{Record: record, Result: result}, nil
}

// resume answers a bet id that was already rolled.
func (e *Engine) resume(ctx context.Context, bet Bet, rec *model.BetHistory) (*Outcome, error) {
	const op = "game.Roll"
	if rec.UserID != bet.UserID || !rec.Amount.Equal(bet.Amount) {
		return nil, types.Validation(op, "bet id %s is already in use", bet.ID)
	}
	r, err := e.rounds.Get(rec.Game, rec.RoundID)
	if err != nil {
		return nil, err
	}
	seed, err := e.rounds.Seed(r)
	if err != nil {
		return nil, err
	}
	result, err := e.replay(ctx, rec, seed)
	if err != nil {
		return nil, err
	}
	result.PayoutMultiplier = rec.PayoutMultiplier

	if !rec.Settled {
		e.logger.Info("Retrying bet settlement",
			"game", rec.Game,
			"user_id", rec.UserID,
			"round_id", rec.RoundID,
			"nonce", rec.Nonce,
			"bet_id", rec.ID,
		)
		if err := e.settle(ctx, rec); err != nil {
			return nil, err
		}
	}
	return &Outcome{Record: rec, Result: result}, nil
}

// settle hands a stored bet to the settler and flags it settled. The settler
// may see the same bet twice when flagging fails; events carry the bet id as
// their idempotency key.
func (e *Engine) settle(ctx context.Context, rec *model.BetHistory) error {
	const op = "game.Roll"
	if e.settler == nil || rec.Settled {
		return nil
	}
	if err := e.settler.Settle(ctx, rec); err != nil {
		return types.Internal(op, fmt.Errorf("settle bet %s: %w", rec.ID, err))
	}
	if err := e.history.MarkSettled(ctx, rec.Game, rec.ID); err != nil {
		return types.Internal(op, fmt.Errorf("mark bet %s settled: %w", rec.ID, err))
	}
	rec.Settled = true
	return nil
}

// resolve derives the path and multipliers of one play. Roll and Verify share
// it, so identical inputs always give identical results.
func resolve(edge float64, game enum.Game, seed, clientSeed string, nonce uint64, rows int, risk enum.Risk, ep *epoch.Epoch[*lightning.Board]) (Result, error) {
	const op = "game.resolve"
	path, err := plinko.SamplePath(seed, clientSeed, nonce, rows)
	if err != nil {
		return Result{}, types.Defect(op, err)
	}
	res := Result{
		RollHash: fairness.RollHash(seed, clientSeed, nonce),
		Path:     path,
	}

	if game.Epochal() {
		if ep == nil || ep.Board == nil {
			return Result{}, types.Defect(op, errors.New("lightning play without an epoch board"))
		}
		hole, holeMult, cellsMult, struck := ep.Board.Payout(path)
		boardIndex := ep.BoardIndex
		res.Hole, res.HoleMultiplier, res.CellsMultiplier, res.StruckCells = hole, holeMult, cellsMult, struck
		res.BoardIndex = &boardIndex
	} else {
		table, err := plinko.PayoutList(rows, risk, edge)
		if err != nil {
			return Result{}, err
		}
		res.Hole = plinko.Hole(path)
		res.HoleMultiplier = table[res.Hole]
		res.CellsMultiplier = 1
	}

	if res.Hole < 0 || res.Hole > rows {
		return Result{}, types.Mismatch(op, "hole %d outside a %d row board", res.Hole, rows)
	}
	res.RawMultiplier = res.HoleMultiplier * res.CellsMultiplier
	res.PayoutMultiplier = res.RawMultiplier
	return res, nil
}

// clampMultiplier caps the multiplier so amount*multiplier never exceeds maxProfit.
// A non-positive maxProfit disables the cap.
func clampMultiplier(amount, maxProfit decimal.Decimal, multiplier float64) (float64, bool) {
	if !maxProfit.IsPositive() || !amount.IsPositive() {
		return multiplier, false
	}
	if amount.Mul(decimal.NewFromFloat(multiplier)).LessThanOrEqual(maxProfit) {
		return multiplier, false
	}
	return maxProfit.Div(amount).InexactFloat64(), true
}
