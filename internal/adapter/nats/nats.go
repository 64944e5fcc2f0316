// Package nats implements the messagequeue.Queue port using NATS
// JetStream. It carries the coordinator's job/state/agent events and grid
// task output streams (§4.4/§5); the scheduler's loop does not subscribe
// to them.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge/internal/logger"
	"github.com/Strob0t/CodeForge/internal/port/messagequeue"
)

const (
	streamName       = "GRID"
	headerRequestID  = "X-Request-Id"
	headerRetryCount = "X-Retry-Count"
	maxRetries       = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ messagequeue.Queue = (*Queue)(nil)

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"grid.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish validates data against subject's schema, then sends it. Messages
// that fail validation go straight to the subject's DLQ instead of failing
// the caller — a malformed publish must not block the coordinator.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("publish validation failed, routing to DLQ", "subject", subject, "error", err)
		return q.publishRaw(ctx, subject+".dlq", data, 0)
	}
	return q.publishRaw(ctx, subject, data, 0)
}

func (q *Queue) publishRaw(ctx context.Context, subject string, data []byte, retries int) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if retries > 0 {
		msg.Header.Set(headerRetryCount, strconv.Itoa(retries))
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. A
// handler error increments the message's retry count; once it reaches
// maxRetries the message is moved to subject+".dlq" instead of retried
// forever.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		hctx := ctx
		if reqID := msg.Headers().Get(headerRequestID); reqID != "" {
			hctx = logger.WithRequestID(ctx, reqID)
		}

		if err := handler(hctx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			q.retryOrDLQ(hctx, msg)
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) retryOrDLQ(ctx context.Context, msg jetstream.Msg) {
	retries := retryCount(msg.Headers()) + 1
	if retries >= maxRetries {
		if err := q.publishRaw(ctx, msg.Subject()+".dlq", msg.Data(), retries); err != nil {
			slog.Error("nats move to DLQ failed", "subject", msg.Subject(), "error", err)
		}
		_ = msg.Ack() // remove from the main subject now that it's in the DLQ
		return
	}
	if err := q.publishRaw(ctx, msg.Subject(), msg.Data(), retries); err != nil {
		slog.Error("nats republish for retry failed", "subject", msg.Subject(), "error", err)
	}
	_ = msg.Ack()
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// KV returns the named JetStream key-value bucket, creating it with ttl if
// it does not already exist. Used by the HTTP layer's idempotency
// middleware to store replayed add_job responses.
func (q *Queue) KV(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: key-value bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the queue is currently connected.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
