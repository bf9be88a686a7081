package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/retry"
)

const (
	publishRetryInterval = 200 * time.Millisecond
	publishRetryMaxTime  = 10 * time.Second
)

type Emitter interface {
	EmitSettlement(ctx context.Context, e SettlementEvent) error
	EmitRoundClosed(ctx context.Context, e RoundClosedEvent) error
	EmitEpochCommitted(ctx context.Context, e EpochCommittedEvent) error
	Close()
}

type emitter struct {
	queue infra.MessageQueue
}

func NewEmitter(queue infra.MessageQueue) Emitter {
	return &emitter{queue: queue}
}

// EmitSettlement is deduplicated on the bet id.
func (e *emitter) EmitSettlement(ctx context.Context, ev SettlementEvent) error {
	return e.emit(ctx, constant.SettlementSubject, TypeSettlement, ev.Game, ev, ev.BetID)
}

func (e *emitter) EmitRoundClosed(ctx context.Context, ev RoundClosedEvent) error {
	return e.emit(ctx, constant.RoundSubject, TypeRoundClosed, ev.Game, ev, ev.RoundID)
}

func (e *emitter) EmitEpochCommitted(ctx context.Context, ev EpochCommittedEvent) error {
	return e.emit(ctx, constant.EpochSubject, TypeEpochCommitted, ev.Game, ev, fmt.Sprintf("%s:%d", ev.Game, ev.Number))
}

func (e *emitter) emit(ctx context.Context, subject, typ string, game enum.Game, data any, idempotentKey string) error {
	payload, err := json.Marshal(Envelope{
		Type:      typ,
		Game:      game,
		Data:      data,
		Timestamp: time.Now().UTC().Unix(),
	})
	if err != nil {
		return err
	}

	return retry.Exponential(ctx, func() error {
		return e.queue.Enqueue(ctx, subject, payload, &infra.EnqueueOptions{IdempotentKey: idempotentKey})
	}, retry.ExponentialConfig{
		InitialInterval: publishRetryInterval,
		MaxElapsedTime:  publishRetryMaxTime,
		OnRetry: func(err error, next time.Duration) {
			logger.Warn("Publish failed, retrying", "subject", subject, "type", typ, "next", next, "error", err)
		},
	})
}

func (e *emitter) Close() {
	if e.queue != nil {
		e.queue.Close()
	}
}
