package game

import (
	"context"

	"github.com/fystack/plinko-engine/pkg/events"
	"github.com/fystack/plinko-engine/pkg/model"
)

// Settler hands a resolved bet to the balance owner.
type Settler interface {
	Settle(ctx context.Context, bet *model.BetHistory) error
}

type SettlerFunc func(ctx context.Context, bet *model.BetHistory) error

func (f SettlerFunc) Settle(ctx context.Context, bet *model.BetHistory) error {
	return f(ctx, bet)
}

// EventSettler publishes settlements on the message queue.
type EventSettler struct {
	emitter events.Emitter
}

func NewEventSettler(emitter events.Emitter) *EventSettler {
	return &EventSettler{emitter: emitter}
}

func (s *EventSettler) Settle(ctx context.Context, bet *model.BetHistory) error {
	return s.emitter.EmitSettlement(ctx, events.SettlementEvent{
		BetID:            bet.ID,
		UserID:           bet.UserID,
		Game:             bet.Game,
		Amount:           bet.Amount,
		PayoutMultiplier: bet.PayoutMultiplier,
		Payout:           bet.Payout,
		Clamped:          bet.Clamped,
		Risk:             bet.Risk,
		Rows:             bet.Rows,
		Hole:             bet.Hole,
		BoardIndex:       bet.BoardIndex,
		ClientSeed:       bet.ClientSeed,
		RoundID:          bet.RoundID,
		RoundHash:        bet.RoundHash,
		Nonce:            bet.Nonce,
		AutoBet:          bet.AutoBet,
		CreatedAt:        bet.CreatedAt,
	})
}
