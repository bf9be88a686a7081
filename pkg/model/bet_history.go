package model

import (
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

// BetHistory holds the outcome fields needed to settle and later verify a roll.
// ID is the bet id. Edge and BoardConfig are the payout parameters the roll was
// resolved with, so a later config change does not break verification.
type BetHistory struct {
	BaseModel
	UserID           string              `gorm:"not null;type:varchar(255);index:idx_bet_user"         json:"user_id"`
	Game             enum.Game           `gorm:"not null;type:varchar(32)"                             json:"game"`
	Amount           decimal.Decimal     `gorm:"not null;type:numeric(36,18)"                          json:"amount"`
	Risk             enum.Risk           `gorm:"type:varchar(16)"                                      json:"risk,omitempty"`
	Rows             int                 `gorm:"not null"                                              json:"rows"`
	Edge             float64             `gorm:"not null"                                              json:"edge"`
	BoardConfig      *config.BoardConfig `gorm:"type:jsonb;serializer:json"                            json:"board_config,omitempty"`
	PayoutMultiplier float64             `gorm:"not null"                                              json:"payout_multiplier"`
	RawMultiplier    float64             `gorm:"not null"                                              json:"raw_multiplier"`
	Clamped          bool                `gorm:"not null;default:false"                                json:"clamped"`
	Payout           decimal.Decimal     `gorm:"not null;type:numeric(36,18)"                          json:"payout"`
	BoardIndex       *int64              `                                                             json:"board_index,omitempty"`
	EpochNumber      *int64              `                                                             json:"epoch_number,omitempty"`
	Hole             int                 `gorm:"not null"                                              json:"hole"`
	ClientSeed       string              `gorm:"type:varchar(255)"                                     json:"client_seed"`
	RoundID          string              `gorm:"not null;type:uuid;index:idx_bet_round;uniqueIndex:idx_bet_round_nonce" json:"round_id"`
	RoundHash        string              `gorm:"not null;type:varchar(64)"                             json:"round_hash"`
	Nonce            uint64              `gorm:"not null;uniqueIndex:idx_bet_round_nonce"              json:"nonce"`
	AutoBet          bool                `gorm:"not null;default:false"                                json:"auto_bet"`
	Settled          bool                `gorm:"not null;default:false;index:idx_bet_settled"          json:"settled"`
}

func (BetHistory) TableName() string {
	return "bet_histories"
}
