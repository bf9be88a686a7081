package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
	key     string
}

type fakeQueue struct {
	mu       sync.Mutex
	failures int
	messages []published
}

func (q *fakeQueue) Enqueue(_ context.Context, subject string, message []byte, opts *infra.EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures > 0 {
		q.failures--
		return errors.New("nats unavailable")
	}
	key := ""
	if opts != nil {
		key = opts.IdempotentKey
	}
	q.messages = append(q.messages, published{subject: subject, data: message, key: key})
	return nil
}

func (q *fakeQueue) Dequeue(context.Context, string, func([]byte) error) error { return nil }
func (q *fakeQueue) Close()                                                     {}

func TestEmitter_Settlement(t *testing.T) {
	q := &fakeQueue{failures: 1}
	e := NewEmitter(q)

	board := int64(12)
	err := e.EmitSettlement(context.Background(), SettlementEvent{
		BetID:            "bet-1",
		Game:             enum.GameLightningPlinko,
		Amount:           decimal.RequireFromString("2.50"),
		PayoutMultiplier: 4,
		Payout:           decimal.RequireFromString("10"),
		BoardIndex:       &board,
		CreatedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, q.messages, 1)

	msg := q.messages[0]
	assert.Equal(t, constant.SettlementSubject, msg.subject)
	assert.Equal(t, "bet-1", msg.key)

	var env struct {
		Type string          `json:"type"`
		Game enum.Game       `json:"game"`
		Data SettlementEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.data, &env))
	assert.Equal(t, TypeSettlement, env.Type)
	assert.Equal(t, enum.GameLightningPlinko, env.Game)
	assert.True(t, decimal.RequireFromString("2.5").Equal(env.Data.Amount))
	assert.Equal(t, int64(12), *env.Data.BoardIndex)
}

func TestEmitter_RoundAndEpoch(t *testing.T) {
	q := &fakeQueue{}
	e := NewEmitter(q)

	require.NoError(t, e.EmitRoundClosed(context.Background(), RoundClosedEvent{RoundID: "r-1", Game: enum.GamePlinko}))
	require.NoError(t, e.EmitEpochCommitted(context.Background(), EpochCommittedEvent{Game: enum.GameLightningPlinko, Number: 99}))

	require.Len(t, q.messages, 2)
	assert.Equal(t, constant.RoundSubject, q.messages[0].subject)
	assert.Equal(t, "r-1", q.messages[0].key)
	assert.Equal(t, constant.EpochSubject, q.messages[1].subject)
	assert.Equal(t, "lightning_plinko:99", q.messages[1].key)
}
