package main

import (
	"context"
	"fmt"

	"github.com/fystack/plinko-engine/internal/chain"
	"github.com/fystack/plinko-engine/internal/epoch"
	"github.com/fystack/plinko-engine/internal/game"
	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/round"
	"github.com/fystack/plinko-engine/pkg/cache"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/events"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/fystack/plinko-engine/pkg/lock"
	"github.com/fystack/plinko-engine/pkg/model"
	"github.com/fystack/plinko-engine/pkg/repository"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
	"github.com/fystack/plinko-engine/pkg/store/roundstore"
)

// app holds every long-lived component of one process.
type app struct {
	cfg     *config.Config
	kv      infra.KVStore
	chains  chainstore.Store
	redis   infra.RedisClient
	emitter events.Emitter
	locker  lock.Locker
	builder *chain.Builder
	epochs  *epoch.Provider[*lightning.Board]
	rounds  *round.Manager
	engine  *game.Engine
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}
	a.kv = kv
	a.closers = append(a.closers, func() { _ = kv.Close() })
	a.chains = chainstore.NewChainStore(kv)

	if cfg.Redis.URL != "" {
		rc, err := infra.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rc
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.locker = lock.NewRedisLocker(rc, cfg.Cache.KeyPrefix)
	} else {
		a.locker = lock.NewKeyedMutex()
	}

	if cfg.Nats.URL != "" {
		nc, err := infra.GetNATSConnection(cfg.Nats, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, nc.Close)
		queue, err := infra.NewJetStreamQueue(ctx, nc, cfg.Nats.Stream, cfg.Nats.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.emitter = events.NewEmitter(queue)
		a.closers = append(a.closers, a.emitter.Close)
	}

	lcfg := cfg.Games.Lightning
	a.builder, err = chain.NewBuilder(enum.GameLightningPlinko, lcfg.Chain, a.chains, logger.L())
	if err != nil {
		return nil, err
	}

	generator, err := lightning.NewGenerator(lcfg.Board, lcfg.Edge, logger.L())
	if err != nil {
		return nil, err
	}
	epochCache, err := cache.New[epoch.Epoch[*lightning.Board]](cfg.Cache, a.redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, epochCache.Close)

	epochOpts := []epoch.Option[*lightning.Board]{}
	roundOpts := []round.Option{}
	if a.emitter != nil {
		epochOpts = append(epochOpts, epoch.WithEmitter[*lightning.Board](a.emitter))
		roundOpts = append(roundOpts, round.WithEmitter(a.emitter))
	}
	a.epochs, err = epoch.NewProvider[*lightning.Board](
		enum.GameLightningPlinko,
		epoch.Schedule{Window: lcfg.EpochWindow, GameCount: lcfg.Chain.GameCount},
		lcfg.Chain.Salt,
		a.chains,
		epochCache,
		generator.Generate,
		logger.L(),
		epochOpts...,
	)
	if err != nil {
		return nil, err
	}

	a.rounds = round.NewManager(roundstore.NewRoundStore(kv), map[enum.Game]string{
		enum.GamePlinko:          cfg.Games.Plinko.ServerSeed,
		enum.GameLightningPlinko: lcfg.ServerSeed,
	}, logger.L(), roundOpts...)

	var history game.History
	if cfg.Database != nil {
		db, err := infra.NewDBConnection(cfg.Database.URL, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.WithContext(ctx).AutoMigrate(&model.BetHistory{}); err != nil {
			return nil, fmt.Errorf("migrate bet history: %w", err)
		}
		history = repository.NewBetHistoryRepository(db)
	}

	var settler game.Settler
	if a.emitter != nil {
		settler = game.NewEventSettler(a.emitter)
	}

	a.engine = game.NewEngine(game.Deps{
		Games:   cfg.Games,
		Rounds:  a.rounds,
		Epochs:  a.epochs,
		History: history,
		Settler: settler,
		Logger:  logger.L(),
	})

	ok = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
