package config

import (
	"time"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
)

// DefaultBoard is the lightning board configuration used when the file omits a field.
func DefaultBoard() BoardConfig {
	return BoardConfig{
		Rows:             constant.DefaultRows,
		MinPegs:          3,
		MaxPegs:          5,
		MinRow:           4,
		MinSeparation:    4,
		Multipliers:      []float64{2, 3, 5, 10},
		MaxPayout:        1000,
		ZeroBandMin:      1,
		ZeroBandMax:      3,
		MaxAttempts:      10,
		PlacementRetries: 64,
		Tolerance:        constant.RTPTolerance,
	}
}

func DefaultChain() ChainConfig {
	return ChainConfig{
		GameCount:     constant.DefaultChainGameCount,
		BatchSize:     constant.DefaultChainBatchSize,
		BatchPause:    constant.DefaultChainBatchPause,
		HashAlgorithm: enum.HashSHA256,
	}
}

func defaults() Config {
	return Config{
		Environment: constant.EnvDevelopment,
		Games: GamesConfig{
			Plinko: GameConfig{Edge: constant.DefaultEdge},
			Lightning: LightningConfig{
				GameConfig:  GameConfig{Edge: constant.DefaultEdge},
				EpochWindow: constant.DefaultEpochWindow,
				Chain:       DefaultChain(),
				Board:       DefaultBoard(),
			},
		},
		KVStore: KVSConfig{
			Type:   enum.KVStoreTypeBadger,
			Badger: BadgerConfig{Directory: "data/badger", Prefix: "plinko"},
		},
		Cache: CacheConfig{
			Backend:   enum.CacheBackendMemory,
			MaxCost:   1 << 24,
			KeyPrefix: "plinko",
		},
		Nats: NatsConfig{
			Stream:        "plinko",
			SubjectPrefix: "plinko",
		},
		Server: ServerCfg{
			Port:        8080,
			RPS:         50,
			Burst:       100,
			VerifyRPS:   10,
			VerifyBurst: 20,
			LockTTL:     5 * time.Second,
		},
	}
}
