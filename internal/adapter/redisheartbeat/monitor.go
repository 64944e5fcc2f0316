// Package redisheartbeat implements the heartbeat.Monitor port using a
// Redis TTL key per agent. Expiry is detected by polling rather than
// keyspace notifications, so it works unmodified against any go-redis-
// compatible server without requiring notify-keyspace-events to be
// configured.
package redisheartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "grid:heartbeat:agent:"
	indexKey   = "grid:heartbeat:agents"
	defaultTTL = 30 * time.Second
	pollPeriod = 2 * time.Second
)

// Monitor is the Redis-backed implementation of heartbeat.Monitor.
type Monitor struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
	lost   chan string
}

// New creates a Monitor. ttl is the liveness window refreshed by Touch; if
// zero, defaultTTL (30s) is used.
func New(client *redis.Client, ttl time.Duration) *Monitor {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Monitor{
		client: client,
		ttl:    ttl,
		poll:   pollPeriod,
		lost:   make(chan string, 64),
	}
}

func agentKey(id string) string {
	return keyPrefix + id
}

// Touch refreshes agentID's liveness TTL, registering it if new.
func (m *Monitor) Touch(ctx context.Context, agentID string) error {
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, agentKey(agentID), time.Now().UTC().Format(time.RFC3339), m.ttl)
	pipe.SAdd(ctx, indexKey, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisheartbeat: touch %s: %w", agentID, err)
	}
	return nil
}

// Forget removes agentID's liveness tracking.
func (m *Monitor) Forget(ctx context.Context, agentID string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, agentKey(agentID))
	pipe.SRem(ctx, indexKey, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisheartbeat: forget %s: %w", agentID, err)
	}
	return nil
}

// Lost returns a channel of agent ids whose TTL has expired.
func (m *Monitor) Lost() <-chan string {
	return m.lost
}

// Start launches the background expiry sweep in a goroutine and returns at
// once; the sweep stops when ctx is cancelled, closing the Lost channel.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.lost)
		ticker := time.NewTicker(m.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

func (m *Monitor) sweep(ctx context.Context) {
	ids, err := m.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		slog.Error("redisheartbeat: sweep failed to list agents", "error", err)
		return
	}

	for _, id := range ids {
		exists, err := m.client.Exists(ctx, agentKey(id)).Result()
		if err != nil {
			slog.Error("redisheartbeat: sweep failed to check agent", "agent_id", id, "error", err)
			continue
		}
		if exists == 0 {
			if err := m.client.SRem(ctx, indexKey, id).Err(); err != nil {
				slog.Error("redisheartbeat: failed to drop expired agent from index", "agent_id", id, "error", err)
			}
			select {
			case m.lost <- id:
			case <-ctx.Done():
				return
			}
		}
	}
}
