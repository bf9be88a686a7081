package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/repository"
)

const multiplierTolerance = 1e-9

// Bet returns the stored roll fields of a bet.
func (e *Engine) Bet(ctx context.Context, game enum.Game, betID string) (*model.BetHistory, error) {
	const op = "game.Bet"
	rec, err := e.history.Get(ctx, game, betID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, types.NotFound(op, err)
		}
		return nil, types.Internal(op, err)
	}
	return rec, nil
}

// Verify replays a stored bet from its revealed round seed. An open round is
// closed first so its seed can be revealed. Lightning boards are regenerated
// from the chain, never read from the cache.
func (e *Engine) Verify(ctx context.Context, game enum.Game, betID string) (*Verification, error) {
	const op = "game.Verify"
	if !game.IsValid() {
		return nil, types.Validation(op, "unknown game %q", game)
	}

	rec, err := e.Bet(ctx, game, betID)
	if err != nil {
		return nil, err
	}

	r, err := e.rounds.Get(game, rec.RoundID)
	if err != nil {
		return nil, err
	}
	if !r.RoundOver {
		closed, err := e.rounds.Close(ctx, game, r.ID)
		if err != nil {
			return nil, types.E(types.KindValidation, op, err)
		}
		if closed == nil {
			// closed concurrently; read the revealed seed back
			if r, err = e.rounds.Get(game, rec.RoundID); err != nil {
				return nil, err
			}
		} else {
			r = closed
		}
	}
	if r.Seed == "" {
		return nil, types.Validation(op, "round %s has no revealed seed", r.ID)
	}
	if fairness.RoundHash(r.Seed) != rec.RoundHash {
		return nil, types.Mismatch(op, "revealed seed does not match round hash of bet %s", betID)
	}

	result, err := e.replay(ctx, rec, r.Seed)
	if err != nil {
		return nil, err
	}
	if result.Hole != rec.Hole {
		return nil, types.Mismatch(op, "replayed hole %d, bet recorded %d", result.Hole, rec.Hole)
	}
	if math.Abs(result.RawMultiplier-rec.RawMultiplier) > multiplierTolerance {
		return nil, types.Mismatch(op, "replayed multiplier %v, bet recorded %v", result.RawMultiplier, rec.RawMultiplier)
	}
	if rec.Clamped {
		if rec.PayoutMultiplier > result.RawMultiplier {
			return nil, types.Mismatch(op, "clamped multiplier %v above replayed %v", rec.PayoutMultiplier, result.RawMultiplier)
		}
		result.PayoutMultiplier = rec.PayoutMultiplier
	} else if math.Abs(result.PayoutMultiplier-rec.PayoutMultiplier) > multiplierTolerance {
		return nil, types.Mismatch(op, "replayed payout multiplier %v, bet recorded %v", result.PayoutMultiplier, rec.PayoutMultiplier)
	}

	v := &Verification{
		ServerSeed:       r.Seed,
		HashedServerSeed: r.Hash,
		Nonce:            rec.Nonce,
		ClientSeed:       rec.ClientSeed,
		Result:           result,
	}
	if game.Epochal() {
		hash, err := e.epochs.Reveal(ctx, *rec.EpochNumber)
		switch {
		case err == nil:
			v.GameHash = hash
		case errors.Is(err, types.KindValidation):
			// epoch hash stays secret while its link is in use
		default:
			return nil, err
		}
	}
	return v, nil
}

// replay recomputes a stored bet with the edge and board settings it was
// rolled with.
func (e *Engine) replay(ctx context.Context, rec *model.BetHistory, seed string) (Result, error) {
	const op = "game.replay"
	var ep *epoch.Epoch[*lightning.Board]
	if rec.Game.Epochal() {
		if e.epochs == nil {
			return Result{}, types.Validation(op, "game %s is not enabled", rec.Game)
		}
		if rec.EpochNumber == nil || rec.BoardIndex == nil {
			return Result{}, types.Validation(op, "bet %s has no epoch", rec.ID)
		}
		regenerated, err := e.epochs.ByNumber(ctx, *rec.EpochNumber)
		if err != nil {
			return Result{}, err
		}
		if regenerated.BoardIndex != *rec.BoardIndex {
			return Result{}, types.Mismatch(op, "epoch %d uses board %d, bet recorded %d", *rec.EpochNumber, regenerated.BoardIndex, *rec.BoardIndex)
		}
		board, err := e.boardFor(rec, regenerated)
		if err != nil {
			return Result{}, err
		}
		regenerated.Board = board
		ep = &regenerated
	}
	return resolve(rec.Edge, rec.Game, seed, rec.ClientSeed, rec.Nonce, rec.Rows, rec.Risk, ep)
}

// boardFor returns the board a lightning bet was played on. The epoch's board
// is built from the current settings; a bet rolled under other settings gets
// its board rebuilt from the same epoch hash.
func (e *Engine) boardFor(rec *model.BetHistory, ep epoch.Epoch[*lightning.Board]) (*lightning.Board, error) {
	const op = "game.boardFor"
	current := e.games.Lightning
	if rec.BoardConfig == nil || (rec.Edge == current.Edge && reflect.DeepEqual(*rec.BoardConfig, current.Board)) {
		return ep.Board, nil
	}
	g, err := lightning.NewGenerator(*rec.BoardConfig, rec.Edge, e.logger)
	if err != nil {
		return nil, types.Defect(op, fmt.Errorf("board settings of bet %s: %w", rec.ID, err))
	}
	e.logger.Debug("Rebuilding board with recorded settings", "bet_id", rec.ID, "board_index", ep.BoardIndex)
	return g.Generate(ep.Hash)
}

// Replay recomputes a play offline from a revealed round seed. Lightning plays
// need the board regenerated from the revealed epoch hash.
func Replay(cfg config.GameConfig, g enum.Game, seed, clientSeed string, nonce uint64, rows int, risk enum.Risk, board *lightning.Board, boardIndex int64) (Result, error) {
	var ep *epoch.Epoch[*lightning.Board]
	if g.Epochal() {
		if board == nil {
			return Result{}, types.Validation("game.Replay", "lightning replay needs the epoch board")
		}
		ep = &epoch.Epoch[*lightning.Board]{Game: g, BoardIndex: boardIndex, Board: board}
		rows = board.Rows
	}
	return resolve(cfg.Edge, g, seed, clientSeed, nonce, rows, risk, ep)
}
