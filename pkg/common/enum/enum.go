package enum

import "fmt"

// Game is the closed set of games served by the engine.
type Game string

const (
	GamePlinko          Game = "plinko"
	GameLightningPlinko Game = "lightning_plinko"
)

var Games = []Game{GamePlinko, GameLightningPlinko}

func (g Game) IsValid() bool {
	return g == GamePlinko || g == GameLightningPlinko
}

// Epochal reports whether the game draws its board from the epoch hash chain.
func (g Game) Epochal() bool {
	return g == GameLightningPlinko
}

func ParseGame(s string) (Game, error) {
	g := Game(s)
	if !g.IsValid() {
		return "", fmt.Errorf("unknown game %q", s)
	}
	return g, nil
}

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

var Risks = []Risk{RiskLow, RiskMedium, RiskHigh}

func (r Risk) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

func ParseRisk(s string) (Risk, error) {
	r := Risk(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown risk %q", s)
	}
	return r, nil
}

type KVStoreType string

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

type HashAlgorithm string

const (
	HashSHA256  HashAlgorithm = "sha256"
	HashSHA3256 HashAlgorithm = "sha3_256"
)
