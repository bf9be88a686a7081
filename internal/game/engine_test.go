package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fystack/plinko-engine/internal/chain"
	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/plinko"
	"github.com/fystack/plinko-engine/internal/round"
	"github.com/fystack/plinko-engine/pkg/cache"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
	"github.com/fystack/plinko-engine/pkg/store/roundstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const gameCount = 20

type EngineTestSuite struct {
	suite.Suite
	kv       *kvstore.BadgerStore
	now      time.Time
	games    config.GamesConfig
	history  *MemoryHistory
	settled  []*model.BetHistory
	rounds   *round.Manager
	provider *epoch.Provider[*lightning.Board]
	engine   *Engine
}

func (s *EngineTestSuite) SetupTest() {
	kv, err := kvstore.NewBadgerStore(s.T().TempDir(), "", infra.JSONcodec{})
	s.Require().NoError(err)
	s.kv = kv
	s.now = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.games = config.GamesConfig{
		Plinko: config.GameConfig{Edge: 1, MaxProfit: "100000", ServerSeed: "plinko-seed"},
		Lightning: config.LightningConfig{
			GameConfig:  config.GameConfig{Edge: 1, MaxProfit: "100000", ServerSeed: "lightning-seed"},
			EpochWindow: time.Minute,
			Chain: config.ChainConfig{
				Seed: "chain-root", Salt: "chain-salt", GameCount: gameCount, BatchSize: 8, HashAlgorithm: enum.HashSHA256,
			},
			Board: config.DefaultBoard(),
		},
	}

	chains := chainstore.NewChainStore(kv)
	builder, err := chain.NewBuilder(enum.GameLightningPlinko, s.games.Lightning.Chain, chains, logger.Discard())
	s.Require().NoError(err)
	_, err = builder.Run(context.Background())
	s.Require().NoError(err)

	generator, err := lightning.NewGenerator(s.games.Lightning.Board, s.games.Lightning.Edge, logger.Discard())
	s.Require().NoError(err)
	c, err := cache.NewMemory[epoch.Epoch[*lightning.Board]](16, "")
	s.Require().NoError(err)
	s.T().Cleanup(c.Close)

	s.provider, err = epoch.NewProvider[*lightning.Board](
		enum.GameLightningPlinko,
		epoch.Schedule{Window: time.Minute, GameCount: gameCount},
		s.games.Lightning.Chain.Salt,
		chains,
		c,
		generator.Generate,
		logger.Discard(),
		epoch.WithClock[*lightning.Board](clock),
	)
	s.Require().NoError(err)

	s.rounds = round.NewManager(roundstore.NewRoundStore(kv), map[enum.Game]string{
		enum.GamePlinko:          s.games.Plinko.ServerSeed,
		enum.GameLightningPlinko: s.games.Lightning.ServerSeed,
	}, logger.Discard(), round.WithClock(clock))

	s.history = NewMemoryHistory()
	s.settled = nil
	s.engine = NewEngine(Deps{
		Games:   s.games,
		Rounds:  s.rounds,
		Epochs:  s.provider,
		History: s.history,
		Settler: SettlerFunc(func(_ context.Context, bet *model.BetHistory) error {
			s.settled = append(s.settled, bet)
			return nil
		}),
		Now:    clock,
		Logger: logger.Discard(),
	})
}

func (s *EngineTestSuite) TearDownTest() {
	s.NoError(s.kv.Close())
}

func (s *EngineTestSuite) standardBet(id string) Bet {
	return Bet{
		ID:         id,
		UserID:     "user-1",
		Game:       enum.GamePlinko,
		Amount:     decimal.RequireFromString("10"),
		Risk:       enum.RiskMedium,
		Rows:       16,
		ClientSeed: "client-seed",
	}
}

func (s *EngineTestSuite) TestStandardRollAndVerify() {
	ctx := context.Background()
	table, err := plinko.PayoutList(16, enum.RiskMedium, 1)
	s.Require().NoError(err)

	var outcomes []*Outcome
	for i := 0; i < 5; i++ {
		out, err := s.engine.Roll(ctx, s.standardBet(fmt.Sprintf("bet-%d", i)))
		s.Require().NoError(err)
		s.Equal(uint64(i), out.Record.Nonce)
		s.Equal(table[out.Result.Hole], out.Result.HoleMultiplier)
		s.Equal(1.0, out.Result.CellsMultiplier)
		s.Len(out.Result.Path, 16)
		s.Nil(out.Record.BoardIndex)
		s.True(out.Record.Payout.Equal(out.Record.Amount.Mul(decimal.NewFromFloat(out.Result.PayoutMultiplier)).Round(8)))
		outcomes = append(outcomes, out)
	}
	s.Len(s.settled, 5)

	for _, out := range outcomes {
		v, err := s.engine.Verify(ctx, enum.GamePlinko, out.Record.ID)
		s.Require().NoError(err)
		s.Equal(out.Result.Path, v.Result.Path)
		s.Equal(out.Result.Hole, v.Result.Hole)
		s.Equal(out.Result.PayoutMultiplier, v.Result.PayoutMultiplier)
		s.Equal(out.Result.RollHash, v.Result.RollHash)
		s.Equal(out.Record.RoundHash, v.HashedServerSeed)
		s.Equal(fairness.RoundHash(v.ServerSeed), v.HashedServerSeed)
		s.Equal(out.Record.Nonce, v.Nonce)
		s.Equal("client-seed", v.ClientSeed)
		s.Empty(v.GameHash)

		replayed, err := Replay(s.games.Plinko, enum.GamePlinko, v.ServerSeed, "client-seed", out.Record.Nonce, 16, enum.RiskMedium, nil, 0)
		s.Require().NoError(err)
		s.Equal(out.Result.Hole, replayed.Hole)
		s.Equal(out.Result.RawMultiplier, replayed.RawMultiplier)
	}

	// verification closed the round, so the next bet starts a new one
	next, err := s.engine.Roll(ctx, s.standardBet("bet-next"))
	s.Require().NoError(err)
	s.NotEqual(outcomes[0].Record.RoundID, next.Record.RoundID)
	s.Zero(next.Record.Nonce)
}

func (s *EngineTestSuite) TestLightningRollAndVerify() {
	ctx := context.Background()
	bet := Bet{
		ID:         "lightning-1",
		UserID:     "user-1",
		Game:       enum.GameLightningPlinko,
		Amount:     decimal.RequireFromString("1"),
		ClientSeed: "abc",
	}
	out, err := s.engine.Roll(ctx, bet)
	s.Require().NoError(err)
	s.Require().NotNil(out.Record.BoardIndex)
	s.Require().NotNil(out.Record.EpochNumber)
	s.Equal(16, out.Record.Rows)
	s.Empty(out.Record.Risk)

	current, err := s.provider.Current(ctx)
	s.Require().NoError(err)
	s.Equal(current.BoardIndex, *out.Record.BoardIndex)
	s.Equal(current.Board.Payouts[out.Result.Hole], out.Result.HoleMultiplier)
	s.InDelta(out.Result.HoleMultiplier*out.Result.CellsMultiplier, out.Result.PayoutMultiplier, 1e-12)

	v, err := s.engine.Verify(ctx, enum.GameLightningPlinko, "lightning-1")
	s.Require().NoError(err)
	s.Equal(out.Result.Path, v.Result.Path)
	s.Equal(out.Result.PayoutMultiplier, v.Result.PayoutMultiplier)
	s.Equal(*out.Record.BoardIndex, *v.Result.BoardIndex)
	s.Empty(v.GameHash, "epoch hash must stay secret while the epoch runs")

	s.now = current.EndsAt.Add(time.Second)
	v, err = s.engine.Verify(ctx, enum.GameLightningPlinko, "lightning-1")
	s.Require().NoError(err)
	s.Equal(current.Hash, v.GameHash)
	s.Equal(current.Commitment, fairness.SaltedCommitment(enum.GameLightningPlinko, v.GameHash, "chain-salt"))

	generator, err := lightning.NewGenerator(s.games.Lightning.Board, s.games.Lightning.Edge, logger.Discard())
	s.Require().NoError(err)
	board, err := generator.Generate(v.GameHash)
	s.Require().NoError(err)
	replayed, err := Replay(s.games.Lightning.GameConfig, enum.GameLightningPlinko, v.ServerSeed, "abc", v.Nonce, 0, "", board, *out.Record.BoardIndex)
	s.Require().NoError(err)
	s.Equal(out.Result.PayoutMultiplier, replayed.PayoutMultiplier)

	_, err = Replay(s.games.Lightning.GameConfig, enum.GameLightningPlinko, v.ServerSeed, "abc", v.Nonce, 0, "", nil, 0)
	s.ErrorIs(err, types.KindValidation)

	_, err = s.engine.Roll(ctx, Bet{UserID: "user-1", Game: enum.GameLightningPlinko, Amount: decimal.NewFromInt(1), Rows: 8})
	s.ErrorIs(err, types.KindValidation)
}

func (s *EngineTestSuite) TestMaxProfitClamp() {
	s.games.Plinko.MaxProfit = "1"
	s.engine.games = s.games
	ctx := context.Background()

	bet := s.standardBet("big")
	bet.Amount = decimal.RequireFromString("100")
	out, err := s.engine.Roll(ctx, bet)
	s.Require().NoError(err)
	s.True(out.Record.Clamped)
	s.Equal(0.01, out.Result.PayoutMultiplier)
	s.Greater(out.Result.RawMultiplier, 0.01)
	s.True(out.Record.Payout.Equal(decimal.NewFromInt(1)))

	v, err := s.engine.Verify(ctx, enum.GamePlinko, "big")
	s.Require().NoError(err)
	s.Equal(0.01, v.Result.PayoutMultiplier)
}

func (s *EngineTestSuite) TestTamperedBetIsMismatch() {
	ctx := context.Background()
	out, err := s.engine.Roll(ctx, s.standardBet("honest"))
	s.Require().NoError(err)

	forged := *out.Record
	forged.ID = "forged"
	forged.Hole = (forged.Hole + 1) % 17
	s.Require().NoError(s.history.Save(ctx, &forged))

	_, err = s.engine.Verify(ctx, enum.GamePlinko, "forged")
	s.ErrorIs(err, types.KindMismatch)

	_, err = s.engine.Verify(ctx, enum.GamePlinko, "missing")
	s.ErrorIs(err, types.KindNotFound)
}

func (s *EngineTestSuite) TestRollValidation() {
	ctx := context.Background()
	cases := map[string]func(*Bet){
		"rows":   func(b *Bet) { b.Rows = 9 },
		"risk":   func(b *Bet) { b.Risk = "extreme" },
		"amount": func(b *Bet) { b.Amount = decimal.Zero },
		"user":   func(b *Bet) { b.UserID = "" },
		"game":   func(b *Bet) { b.Game = "dice" },
	}
	for name, mutate := range cases {
		bet := s.standardBet(name)
		mutate(&bet)
		_, err := s.engine.Roll(ctx, bet)
		s.ErrorIs(err, types.KindValidation, name)
	}
	s.Empty(s.settled)
}

func (s *EngineTestSuite) TestMissingChainIsDefect() {
	s.now = s.now.Add(time.Minute)
	empty, err := kvstore.NewInMemoryBadgerStore("", infra.JSONcodec{})
	s.Require().NoError(err)
	defer empty.Close()

	generator, err := lightning.NewGenerator(s.games.Lightning.Board, 1, logger.Discard())
	s.Require().NoError(err)
	c, err := cache.NewMemory[epoch.Epoch[*lightning.Board]](16, "")
	s.Require().NoError(err)
	defer c.Close()
	provider, err := epoch.NewProvider[*lightning.Board](enum.GameLightningPlinko,
		epoch.Schedule{Window: time.Minute, GameCount: gameCount}, "salt",
		chainstore.NewChainStore(empty), c, generator.Generate, logger.Discard())
	s.Require().NoError(err)
	s.engine.epochs = provider

	_, err = s.engine.Roll(context.Background(), Bet{UserID: "u", Game: enum.GameLightningPlinko, Amount: decimal.NewFromInt(1)})
	s.ErrorIs(err, types.KindDefect)
}

func (s *EngineTestSuite) TestSettlementRetryReusesStoredBet() {
	ctx := context.Background()
	failures := 1
	s.engine.settler = SettlerFunc(func(_ context.Context, bet *model.BetHistory) error {
		if failures > 0 {
			failures--
			return errors.New("nats down")
		}
		s.settled = append(s.settled, bet)
		return nil
	})

	_, err := s.engine.Roll(ctx, s.standardBet("bet-x"))
	s.ErrorIs(err, types.KindInternal)
	stored, err := s.history.Get(ctx, enum.GamePlinko, "bet-x")
	s.Require().NoError(err)
	s.False(stored.Settled)
	s.Empty(s.settled)

	out, err := s.engine.Roll(ctx, s.standardBet("bet-x"))
	s.Require().NoError(err)
	s.Equal(stored.Nonce, out.Record.Nonce)
	s.Equal(stored.Hole, out.Result.Hole)
	s.Equal(stored.PayoutMultiplier, out.Result.PayoutMultiplier)
	s.True(out.Record.Settled)
	s.Require().Len(s.settled, 1)
	s.Equal("bet-x", s.settled[0].ID)

	stored, err = s.history.Get(ctx, enum.GamePlinko, "bet-x")
	s.Require().NoError(err)
	s.True(stored.Settled)

	// a settled bet is answered from history without settling again
	again, err := s.engine.Roll(ctx, s.standardBet("bet-x"))
	s.Require().NoError(err)
	s.Equal(out.Result.Path, again.Result.Path)
	s.Len(s.settled, 1)

	// replays of bet-x never used a nonce
	next, err := s.engine.Roll(ctx, s.standardBet("bet-y"))
	s.Require().NoError(err)
	s.Equal(stored.Nonce+1, next.Record.Nonce)

	other := s.standardBet("bet-x")
	other.UserID = "user-2"
	_, err = s.engine.Roll(ctx, other)
	s.ErrorIs(err, types.KindValidation)
}

func (s *EngineTestSuite) TestVerifyUsesRecordedEdge() {
	ctx := context.Background()
	out, err := s.engine.Roll(ctx, s.standardBet("edge-1"))
	s.Require().NoError(err)
	s.Equal(1.0, out.Record.Edge)
	s.Nil(out.Record.BoardConfig)

	s.engine.games.Plinko.Edge = 3
	v, err := s.engine.Verify(ctx, enum.GamePlinko, "edge-1")
	s.Require().NoError(err)
	s.Equal(out.Result.Hole, v.Result.Hole)
	s.Equal(out.Result.PayoutMultiplier, v.Result.PayoutMultiplier)

	next, err := s.engine.Roll(ctx, s.standardBet("edge-3"))
	s.Require().NoError(err)
	s.Equal(3.0, next.Record.Edge)
}

func (s *EngineTestSuite) TestVerifyRebuildsBoardWithRecordedSettings() {
	ctx := context.Background()
	out, err := s.engine.Roll(ctx, Bet{
		ID:         "lightning-old",
		UserID:     "user-1",
		Game:       enum.GameLightningPlinko,
		Amount:     decimal.RequireFromString("1"),
		ClientSeed: "abc",
	})
	s.Require().NoError(err)
	s.Require().NotNil(out.Record.BoardConfig)
	s.Equal(s.games.Lightning.Board, *out.Record.BoardConfig)
	s.Equal(s.games.Lightning.Edge, out.Record.Edge)

	changed := s.games
	changed.Lightning.Edge = 3
	changed.Lightning.Board.Multipliers = []float64{7}
	generator, err := lightning.NewGenerator(changed.Lightning.Board, changed.Lightning.Edge, logger.Discard())
	s.Require().NoError(err)
	c, err := cache.NewMemory[epoch.Epoch[*lightning.Board]](16, "")
	s.Require().NoError(err)
	defer c.Close()
	provider, err := epoch.NewProvider[*lightning.Board](enum.GameLightningPlinko,
		epoch.Schedule{Window: time.Minute, GameCount: gameCount}, s.games.Lightning.Chain.Salt,
		chainstore.NewChainStore(s.kv), c, generator.Generate, logger.Discard(),
		epoch.WithClock[*lightning.Board](func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.engine.games = changed
	s.engine.epochs = provider

	v, err := s.engine.Verify(ctx, enum.GameLightningPlinko, "lightning-old")
	s.Require().NoError(err)
	s.Equal(out.Result.Hole, v.Result.Hole)
	s.Equal(out.Result.CellsMultiplier, v.Result.CellsMultiplier)
	s.Equal(out.Result.PayoutMultiplier, v.Result.PayoutMultiplier)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
