package repository

import (
	"context"

	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/model"
	"gorm.io/gorm"
)

// BetHistoryRepository stores the roll-derived fields of settled bets.
type BetHistoryRepository struct {
	Repository[model.BetHistory]
}

func NewBetHistoryRepository(db *gorm.DB) *BetHistoryRepository {
	return &BetHistoryRepository{Repository: NewRepository[model.BetHistory](db)}
}

func (r *BetHistoryRepository) Save(ctx context.Context, bet *model.BetHistory) error {
	return r.Create(ctx, bet)
}

func (r *BetHistoryRepository) Get(ctx context.Context, game enum.Game, betID string) (*model.BetHistory, error) {
	return r.FindOne(ctx, FindOptions{Where: WhereType{"id": betID, "game": game}})
}

// MarkSettled flags a stored bet as handed to the settler.
func (r *BetHistoryRepository) MarkSettled(ctx context.Context, game enum.Game, betID string) error {
	n, err := r.Update(ctx, WhereType{"id": betID, "game": game}, map[string]any{"settled": true})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRound returns a round's bets in nonce order.
func (r *BetHistoryRepository) ListByRound(ctx context.Context, game enum.Game, roundID string) ([]*model.BetHistory, error) {
	return r.Find(ctx, FindOptions{
		Where: WhereType{"round_id": roundID, "game": game},
		Order: Order{{Field: "nonce", Dir: OrderTypeAsc}},
	})
}
