package events

import (
	"time"

	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

const (
	TypeSettlement     = "settlement"
	TypeRoundClosed    = "round_closed"
	TypeEpochCommitted = "epoch_committed"
)

// Envelope wraps every published event.
type Envelope struct {
	Type      string    `json:"type"`
	Game      enum.Game `json:"game"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// SettlementEvent carries a resolved bet to the settlement service. Balance
// changes are owned by the consumer.
type SettlementEvent struct {
	BetID            string          `json:"bet_id"`
	UserID           string          `json:"user_id"`
	Game             enum.Game       `json:"game"`
	Amount           decimal.Decimal `json:"amount"`
	PayoutMultiplier float64         `json:"payout_multiplier"`
	Payout           decimal.Decimal `json:"payout"`
	Clamped          bool            `json:"clamped"`
	Risk             enum.Risk       `json:"risk,omitempty"`
	Rows             int             `json:"rows"`
	Hole             int             `json:"hole"`
	BoardIndex       *int64          `json:"board_index,omitempty"`
	ClientSeed       string          `json:"client_seed"`
	RoundID          string          `json:"round_id"`
	RoundHash        string          `json:"round_hash"`
	Nonce            uint64          `json:"nonce"`
	AutoBet          bool            `json:"auto_bet"`
	CreatedAt        time.Time       `json:"created_at"`
}

type RoundClosedEvent struct {
	RoundID     string    `json:"round_id"`
	UserID      string    `json:"user_id"`
	Game        enum.Game `json:"game"`
	Hash        string    `json:"hash"`
	Seed        string    `json:"seed"`
	Nonce       uint64    `json:"nonce"`
	CompletedAt time.Time `json:"completed_at"`
}

// EpochCommittedEvent publishes the commitment of an epoch before any play in it.
type EpochCommittedEvent struct {
	Game       enum.Game `json:"game"`
	Number     int64     `json:"number"`
	BoardIndex int64     `json:"board_index"`
	Commitment string    `json:"commitment"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}
