package game

import (
	"context"
	"sync"

	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/plinko"
	"github.com/fystack/plinko-engine/internal/round"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/repository"
	"github.com/shopspring/decimal"
)

// Bet is a play request that has already passed authentication and balance checks.
type Bet struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Game       enum.Game       `json:"game"`
	Amount     decimal.Decimal `json:"amount"`
	Risk       enum.Risk       `json:"risk,omitempty"`
	Rows       int             `json:"rows"`
	ClientSeed string          `json:"client_seed"`
	AutoBet    bool            `json:"auto_bet"`
}

// Result is everything derived from the seeds of one play.
type Result struct {
	RollHash         string               `json:"roll_hash"              yaml:"roll_hash"`
	Path             []plinko.Cell        `json:"path"                   yaml:"path,flow"`
	Hole             int                  `json:"hole"                   yaml:"hole"`
	HoleMultiplier   float64              `json:"hole_multiplier"        yaml:"hole_multiplier"`
	CellsMultiplier  float64              `json:"cells_multiplier"       yaml:"cells_multiplier"`
	StruckCells      []plinko.SpecialCell `json:"struck_cells,omitempty" yaml:"struck_cells,omitempty"`
	RawMultiplier    float64              `json:"raw_multiplier"         yaml:"raw_multiplier"`
	PayoutMultiplier float64              `json:"payout_multiplier"      yaml:"payout_multiplier"`
	BoardIndex       *int64               `json:"board_index,omitempty"  yaml:"board_index,omitempty"`
}

type Outcome struct {
	Record *model.BetHistory `json:"bet"`
	Result Result            `json:"result"`
}

type Verification struct {
	ServerSeed       string `json:"server_seed"`
	HashedServerSeed string `json:"hashed_server_seed"`
	Nonce            uint64 `json:"nonce"`
	ClientSeed       string `json:"client_seed"`
	Result           Result `json:"result"`
	GameHash         string `json:"game_hash,omitempty"`
}

type Rounds interface {
	NextNonce(game enum.Game, userID string) (*round.Round, uint64, error)
	Seed(r *round.Round) (string, error)
	Get(game enum.Game, id string) (*round.Round, error)
	Close(ctx context.Context, game enum.Game, id string) (*round.Round, error)
}

type Epochs interface {
	Current(ctx context.Context) (epoch.Epoch[*lightning.Board], error)
	ByNumber(ctx context.Context, number int64) (epoch.Epoch[*lightning.Board], error)
	Reveal(ctx context.Context, number int64) (string, error)
}

// History persists roll-derived bet fields. Get and MarkSettled return
// repository.ErrNotFound for unknown bets.
type History interface {
	Save(ctx context.Context, bet *model.BetHistory) error
	Get(ctx context.Context, game enum.Game, betID string) (*model.BetHistory, error)
	MarkSettled(ctx context.Context, game enum.Game, betID string) error
}

// MemoryHistory keeps bets in process memory.
type MemoryHistory struct {
	mu   sync.RWMutex
	bets map[string]model.BetHistory
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{bets: make(map[string]model.BetHistory)}
}

func (h *MemoryHistory) Save(_ context.Context, bet *model.BetHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(bet.Game) + "/" + bet.ID
	if _, ok := h.bets[key]; ok {
		return repository.ErrDuplicate
	}
	h.bets[key] = *bet
	return nil
}

func (h *MemoryHistory) MarkSettled(_ context.Context, game enum.Game, betID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(game) + "/" + betID
	bet, ok := h.bets[key]
	if !ok {
		return repository.ErrNotFound
	}
	bet.Settled = true
	h.bets[key] = bet
	return nil
}

func (h *MemoryHistory) Get(_ context.Context, game enum.Game, betID string) (*model.BetHistory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bet, ok := h.bets[string(game)+"/"+betID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &bet, nil
}
