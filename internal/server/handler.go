package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/game"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/round"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/lock"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/ratelimiter"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 16

type Engine interface {
	Roll(ctx context.Context, bet game.Bet) (*game.Outcome, error)
	Verify(ctx context.Context, g enum.Game, betID string) (*game.Verification, error)
	Bet(ctx context.Context, g enum.Game, betID string) (*model.BetHistory, error)
}

type Rounds interface {
	Current(g enum.Game, userID string) (*round.Round, error)
	End(ctx context.Context, g enum.Game, userID string) (*round.Round, error)
}

type Epochs interface {
	Current(ctx context.Context) (epoch.Epoch[*lightning.Board], error)
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type RollRequest struct {
	BetID      string          `json:"bet_id"`
	UserID     string          `json:"user_id"`
	Game       enum.Game       `json:"game"`
	Amount     decimal.Decimal `json:"amount"`
	Risk       enum.Risk       `json:"risk"`
	Rows       int             `json:"rows"`
	ClientSeed string          `json:"client_seed"`
	AutoBet    bool            `json:"auto_bet"`
}

type RollResponse struct {
	BetID       string          `json:"bet_id"`
	Game        enum.Game       `json:"game"`
	RoundID     string          `json:"round_id"`
	RoundHash   string          `json:"round_hash"`
	Nonce       uint64          `json:"nonce"`
	Payout      decimal.Decimal `json:"payout"`
	Clamped     bool            `json:"clamped"`
	EpochNumber *int64          `json:"epoch_number,omitempty"`
	Result      game.Result     `json:"result"`
}

type VerifyRequest struct {
	Game  enum.Game `json:"game"`
	BetID string    `json:"bet_id"`
}

type RoundResponse struct {
	RoundID   string     `json:"round_id"`
	Game      enum.Game  `json:"game"`
	Hash      string     `json:"hash"`
	Nonce     uint64     `json:"nonce"`
	Seed      string     `json:"seed,omitempty"`
	RoundOver bool       `json:"round_over"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"completed_at,omitempty"`
}

// CommitmentResponse is the public view of the active lightning epoch. The
// epoch hash itself is withheld until the epoch ends.
type CommitmentResponse struct {
	epoch.Commitment
	Board *lightning.Board `json:"board"`
}

type Handler struct {
	version string
	engine  Engine
	rounds  Rounds
	epochs  Epochs
	locker  lock.Locker
	limiter *ratelimiter.PooledRateLimiter
	verify  *ratelimiter.PooledRateLimiter
	lockTTL time.Duration
	logger  *slog.Logger
}

type Options struct {
	Version string
	Engine  Engine
	Rounds  Rounds
	Epochs  Epochs // nil disables /v1/commitment
	Locker  lock.Locker
	Limiter *ratelimiter.PooledRateLimiter // per user; nil disables throttling
	// VerifyLimiter throttles /v1/verify per client address, apart from the
	// bet owner's roll budget. nil disables it.
	VerifyLimiter *ratelimiter.PooledRateLimiter
	LockTTL       time.Duration
	Logger        *slog.Logger
}

func NewHandler(opts Options) *Handler {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Handler{
		version: version,
		engine:  opts.Engine,
		rounds:  opts.Rounds,
		epochs:  opts.Epochs,
		locker:  locker,
		limiter: opts.Limiter,
		verify:  opts.VerifyLimiter,
		lockTTL: ttl,
		logger:  logger.Or(opts.Logger).With("component", "http"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/v1/commitment", h.HandleCommitment)
	mux.HandleFunc("/v1/round", h.HandleRound)
	mux.HandleFunc("/v1/round/end", h.HandleEndRound)
	mux.HandleFunc("/v1/roll", h.HandleRoll)
	mux.HandleFunc("/v1/verify", h.HandleVerify)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

func (h *Handler) HandleCommitment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.epochs == nil {
		writeErrorJSON(w, http.StatusNotFound, "lightning plinko is not enabled")
		return
	}
	e, err := h.epochs.Current(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommitmentResponse{
		Commitment: epoch.Commitment{
			Game:       e.Game,
			Number:     e.Number,
			BoardIndex: e.BoardIndex,
			Commitment: e.Commitment,
			StartsAt:   e.StartsAt,
			EndsAt:     e.EndsAt,
		},
		Board: e.Board,
	})
}

// HandleRound returns the public hash of the user's open round, opening one if needed.
func (h *Handler) HandleRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g, err := enum.ParseGame(strings.TrimSpace(r.URL.Query().Get("game")))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	unlock, err := h.lock(r.Context(), userID, g)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unlock()

	rd, err := h.rounds.Current(g, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roundResponse(rd))
}

// HandleEndRound closes the user's open round and reveals its seed.
func (h *Handler) HandleEndRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Game   enum.Game `json:"game"`
		UserID string    `json:"user_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Game.IsValid() {
		writeErrorJSON(w, http.StatusBadRequest, fmt.Sprintf("unknown game %q", req.Game))
		return
	}

	unlock, err := h.lock(r.Context(), req.UserID, req.Game)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unlock()

	rd, err := h.rounds.End(r.Context(), req.Game, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rd == nil {
		writeErrorJSON(w, http.StatusNotFound, "no open round")
		return
	}
	writeJSON(w, http.StatusOK, roundResponse(rd))
}

func (h *Handler) HandleRoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req RollRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.allow(req.UserID) {
		writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	unlock, err := h.lock(r.Context(), req.UserID, req.Game)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unlock()

	out, err := h.engine.Roll(r.Context(), game.Bet{
		ID:         req.BetID,
		UserID:     req.UserID,
		Game:       req.Game,
		Amount:     req.Amount,
		Risk:       req.Risk,
		Rows:       req.Rows,
		ClientSeed: req.ClientSeed,
		AutoBet:    req.AutoBet,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RollResponse{
		BetID:       out.Record.ID,
		Game:        out.Record.Game,
		RoundID:     out.Record.RoundID,
		RoundHash:   out.Record.RoundHash,
		Nonce:       out.Record.Nonce,
		Payout:      out.Record.Payout,
		Clamped:     out.Record.Clamped,
		EpochNumber: out.Record.EpochNumber,
		Result:      out.Result,
	})
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Game.IsValid() || req.BetID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "game and bet_id are required")
		return
	}

	if h.verify != nil && !h.verify.TryAcquire(clientAddr(r)) {
		writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// the bet owner's round may be force-closed, so hold the owner's lock
	bet, err := h.engine.Bet(r.Context(), req.Game, req.BetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	unlock, err := h.lock(r.Context(), bet.UserID, req.Game)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unlock()

	v, err := h.engine.Verify(r.Context(), req.Game, req.BetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) allow(userID string) bool {
	if h.limiter == nil || userID == "" {
		return true
	}
	return h.limiter.TryAcquire(userID)
}

// clientAddr is the remote host of r without its port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) lock(ctx context.Context, userID string, g enum.Game) (lock.Unlock, error) {
	if userID == "" {
		return nil, types.Validation("server.lock", "user id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, h.lockTTL)
	defer cancel()
	return h.locker.Lock(ctx, LockKey(userID, g), h.lockTTL)
}

// LockKey is the mutual-exclusion key of one user's rounds in one game.
func LockKey(userID string, g enum.Game) string {
	return fmt.Sprintf("user:%s:%s", userID, g)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "kind", types.KindOf(err).String(), "err", err)
	}
	resp := APIErrorResponse{
		Status:    "error",
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
	var te *types.Error
	if errors.As(err, &te) {
		resp.Kind = te.Kind.String()
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.KindValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.KindNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.KindMismatch):
		return http.StatusConflict
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func roundResponse(rd *round.Round) RoundResponse {
	return RoundResponse{
		RoundID:   rd.ID,
		Game:      rd.Game,
		Hash:      rd.Hash,
		Nonce:     rd.Nonce,
		Seed:      rd.Seed,
		RoundOver: rd.RoundOver,
		CreatedAt: rd.CreatedAt,
		ClosedAt:  rd.CompletedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}
