package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	ErrPermanent = errors.New("permanent messaging error")
	MaxMsgSize   = 64 * 1024
)

type MessageQueue interface {
	Enqueue(ctx context.Context, subject string, message []byte, options *EnqueueOptions) error
	// handler shouldn't block: JetStream redelivers messages that are not acked in time.
	Dequeue(ctx context.Context, consumerName string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	IdempotentKey string
}

type jetStreamQueue struct {
	stream          string
	subjectPrefix   string
	js              jetstream.JetStream
	consumerContext jetstream.ConsumeContext
}

// NewJetStreamQueue creates (or updates) a work-queue stream capturing prefix.> and returns a queue bound to it.
func NewJetStreamQueue(ctx context.Context, nc *nats.Conn, stream, subjectPrefix string) (MessageQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if s, err := js.Stream(ctx, stream); err == nil {
		if info, err := s.Info(ctx); err == nil {
			logger.Info("Stream found", "name", info.Config.Name, "subjects", info.Config.Subjects, "messages", info.State.Msgs)
		}
	} else {
		logger.Warn("Stream not found, creating new stream", "stream", stream)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Settlement hand-off for " + stream,
		Subjects:    []string{subjectPrefix + ".>"},
		MaxMsgSize:  int32(MaxMsgSize),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create jetstream stream %s: %w", stream, err)
	}

	return &jetStreamQueue{stream: stream, subjectPrefix: subjectPrefix, js: js}, nil
}

func (q *jetStreamQueue) Enqueue(ctx context.Context, subject string, message []byte, options *EnqueueOptions) error {
	header := nats.Header{}
	if options != nil && options.IdempotentKey != "" {
		header.Add(jetstream.MsgIDHeader, options.IdempotentKey)
	}

	_, err := q.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    message,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("error enqueueing message: %w", err)
	}
	logger.Debug("Enqueued message", "subject", subject, "size", len(message))
	return nil
}

func (q *jetStreamQueue) Dequeue(ctx context.Context, consumerName string, handler func(message []byte) error) error {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Name:           consumerName,
		Durable:        consumerName,
		MaxAckPending:  16,
		MaxDeliver:     5,
		FilterSubjects: []string{q.subjectPrefix + ".>"},
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	c, err := consumer.Consume(func(msg jetstream.Msg) {
		meta, _ := msg.Metadata()
		if err := handler(msg.Data()); err != nil {
			if errors.Is(err, ErrPermanent) {
				logger.Warn("Permanent error on message", "meta", meta, "error", err)
				_ = msg.Term()
				return
			}
			logger.Error("Error handling message", "meta", meta, "error", err)
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Error("Error acknowledging message", "error", err)
		}
	})
	if err != nil {
		return err
	}
	q.consumerContext = c
	return nil
}

func (q *jetStreamQueue) Close() {
	if q.consumerContext != nil {
		q.consumerContext.Stop()
	}
}
