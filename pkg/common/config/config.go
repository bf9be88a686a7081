package config

import (
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string      `yaml:"environment" validate:"required,oneof=production development"`
	Games       GamesConfig `yaml:"games"       validate:"required"`
	KVStore     KVSConfig   `yaml:"kvstore"     validate:"required"`
	Cache       CacheConfig `yaml:"cache"`
	Redis       RedisConfig `yaml:"redis"`
	Nats        NatsConfig  `yaml:"nats"`
	Database    *DBConfig   `yaml:"database,omitempty"`
	Server      ServerCfg   `yaml:"server"`
}

type GamesConfig struct {
	Plinko    GameConfig      `yaml:"plinko"           validate:"required"`
	Lightning LightningConfig `yaml:"lightning_plinko" validate:"required"`
}

// Game returns the shared settings of g.
func (g GamesConfig) Game(game enum.Game) (GameConfig, error) {
	switch game {
	case enum.GamePlinko:
		return g.Plinko, nil
	case enum.GameLightningPlinko:
		return g.Lightning.GameConfig, nil
	default:
		return GameConfig{}, fmt.Errorf("game %s not configured", game)
	}
}

type GameConfig struct {
	Edge       float64 `yaml:"edge"        validate:"gte=0,lt=100"`
	MaxProfit  string  `yaml:"max_profit"  validate:"required,numeric"`
	ServerSeed string  `yaml:"server_seed" validate:"required"`
}

// MaxProfitDecimal parses MaxProfit; validation guarantees it is numeric.
func (g GameConfig) MaxProfitDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(g.MaxProfit)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RTP is the target return to player for the configured edge.
func (g GameConfig) RTP() float64 {
	return 1 - g.Edge/100
}

type LightningConfig struct {
	GameConfig  `yaml:",inline"`
	EpochWindow time.Duration `yaml:"epoch_window" validate:"required"`
	Chain       ChainConfig   `yaml:"chain"        validate:"required"`
	Board       BoardConfig   `yaml:"board"        validate:"required"`
}

type ChainConfig struct {
	Seed          string             `yaml:"seed"           validate:"required"`
	Salt          string             `yaml:"salt"           validate:"required"`
	GameCount     int64              `yaml:"game_count"     validate:"gt=0"`
	BatchSize     int                `yaml:"batch_size"     validate:"gt=0"`
	BatchPause    time.Duration      `yaml:"batch_pause"`
	HashAlgorithm enum.HashAlgorithm `yaml:"hash_algorithm" validate:"oneof=sha256 sha3_256"`
}

type BoardConfig struct {
	Rows             int       `yaml:"rows"              validate:"gte=8,lte=16"`
	MinPegs          int       `yaml:"min_pegs"          validate:"gte=0"`
	MaxPegs          int       `yaml:"max_pegs"          validate:"gtefield=MinPegs"`
	MinRow           int       `yaml:"min_row"           validate:"gte=2"`
	MinSeparation    int       `yaml:"min_separation"    validate:"gte=1"`
	Multipliers      []float64 `yaml:"multipliers"       validate:"required,min=1,dive,gt=1"`
	MaxPayout        float64   `yaml:"max_payout"        validate:"gt=1"`
	ZeroBandMin      int       `yaml:"zero_band_min"     validate:"gte=0"`
	ZeroBandMax      int       `yaml:"zero_band_max"     validate:"gtefield=ZeroBandMin"`
	MaxAttempts      int       `yaml:"max_attempts"      validate:"gte=1"`
	PlacementRetries int       `yaml:"placement_retries" validate:"gte=1"`
	Tolerance        float64   `yaml:"tolerance"         validate:"gt=0"`
}

type KVSConfig struct {
	Type   enum.KVStoreType `yaml:"type"   validate:"required,oneof=badger consul"`
	Badger BadgerConfig     `yaml:"badger"`
	Consul ConsulConfig     `yaml:"consul"`
}

type BadgerConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

type ConsulConfig struct {
	Scheme   string         `yaml:"scheme"`
	Address  string         `yaml:"address"`
	Folder   string         `yaml:"folder"`
	Token    string         `yaml:"token"`
	HttpAuth HttpAuthConfig `yaml:"http_auth"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type CacheConfig struct {
	Backend   enum.CacheBackend `yaml:"backend"    validate:"oneof=memory redis"`
	MaxCost   int64             `yaml:"max_cost"`
	KeyPrefix string            `yaml:"key_prefix"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

type NatsConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TLS           NatsTLSConfig `yaml:"tls"`
}

type NatsTLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type DBConfig struct {
	URL string `yaml:"url" validate:"required"`
}

type ServerCfg struct {
	Port        int           `yaml:"port"         validate:"gte=0,lte=65535"`
	RPS         int           `yaml:"rps"`
	Burst       int           `yaml:"burst"`
	VerifyRPS   int           `yaml:"verify_rps"`
	VerifyBurst int           `yaml:"verify_burst"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}
