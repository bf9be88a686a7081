package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
games:
  plinko:
    max_profit: "5000"
    server_seed: plinko-seed
  lightning_plinko:
    edge: 2
    max_profit: "2500.50"
    server_seed: ${TEST_LIGHTNING_SEED}
    epoch_window: 1m
    chain:
      seed: root
      salt: salt
kvstore:
  type: badger
`

func TestParse_AppliesDefaults(t *testing.T) {
	t.Setenv("TEST_LIGHTNING_SEED", "from-env")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, constant.EnvDevelopment, cfg.Environment)
	assert.Equal(t, constant.DefaultEdge, cfg.Games.Plinko.Edge)
	assert.Equal(t, 2.0, cfg.Games.Lightning.Edge)
	assert.Equal(t, "from-env", cfg.Games.Lightning.ServerSeed)
	assert.Equal(t, time.Minute, cfg.Games.Lightning.EpochWindow)
	assert.Equal(t, int64(constant.DefaultChainGameCount), cfg.Games.Lightning.Chain.GameCount)
	assert.Equal(t, enum.HashSHA256, cfg.Games.Lightning.Chain.HashAlgorithm)
	assert.Equal(t, DefaultBoard(), cfg.Games.Lightning.Board)
	assert.Equal(t, "data/badger", cfg.KVStore.Badger.Directory)
	assert.Equal(t, enum.CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Nil(t, cfg.Database)

	assert.True(t, cfg.Games.Lightning.MaxProfitDecimal().Equal(decimal.RequireFromString("2500.5")))
	assert.InDelta(t, 0.98, cfg.Games.Lightning.RTP(), 1e-12)
}

func TestParse_ExplicitZerosAreKept(t *testing.T) {
	doc := `
games:
  plinko:
    edge: 0
    max_profit: "0"
    server_seed: s
  lightning_plinko:
    edge: 0
    max_profit: "1"
    server_seed: s
    chain: {seed: a, salt: b}
    board:
      min_pegs: 0
      max_pegs: 0
      zero_band_min: 0
      zero_band_max: 0
      multipliers: [4]
kvstore: {type: badger}
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Zero(t, cfg.Games.Plinko.Edge)
	assert.Zero(t, cfg.Games.Lightning.Edge)
	assert.InDelta(t, 1.0, cfg.Games.Lightning.RTP(), 1e-12)
	assert.True(t, cfg.Games.Plinko.MaxProfitDecimal().IsZero())

	board := cfg.Games.Lightning.Board
	assert.Zero(t, board.MinPegs)
	assert.Zero(t, board.MaxPegs)
	assert.Zero(t, board.ZeroBandMin)
	assert.Zero(t, board.ZeroBandMax)
	assert.Equal(t, []float64{4}, board.Multipliers)

	// omitted keys still come from the defaults
	def := DefaultBoard()
	assert.Equal(t, def.Rows, board.Rows)
	assert.Equal(t, def.MinRow, board.MinRow)
	assert.Equal(t, def.PlacementRetries, board.PlacementRetries)
	assert.Equal(t, constant.DefaultEpochWindow, cfg.Games.Lightning.EpochWindow)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing seed": `
games:
  plinko: {max_profit: "1"}
  lightning_plinko: {max_profit: "1", server_seed: s, chain: {seed: a, salt: b}}
kvstore: {type: badger}
`,
		"non numeric max profit": `
games:
  plinko: {max_profit: "lots", server_seed: s}
  lightning_plinko: {max_profit: "1", server_seed: s, chain: {seed: a, salt: b}}
kvstore: {type: badger}
`,
		"unknown kvstore": `
games:
  plinko: {max_profit: "1", server_seed: s}
  lightning_plinko: {max_profit: "1", server_seed: s, chain: {seed: a, salt: b}}
kvstore: {type: etcd}
`,
		"min row beyond board": `
games:
  plinko: {max_profit: "1", server_seed: s}
  lightning_plinko:
    max_profit: "1"
    server_seed: s
    chain: {seed: a, salt: b}
    board: {rows: 8, min_row: 9}
kvstore: {type: badger}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_LIGHTNING_SEED", "x")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plinko-seed", cfg.Games.Plinko.ServerSeed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGamesConfig_Game(t *testing.T) {
	g := GamesConfig{
		Plinko:    GameConfig{ServerSeed: "p"},
		Lightning: LightningConfig{GameConfig: GameConfig{ServerSeed: "l"}},
	}
	pc, err := g.Game(enum.GamePlinko)
	require.NoError(t, err)
	assert.Equal(t, "p", pc.ServerSeed)

	lc, err := g.Game(enum.GameLightningPlinko)
	require.NoError(t, err)
	assert.Equal(t, "l", lc.ServerSeed)

	_, err = g.Game("dice")
	assert.Error(t, err)
}
