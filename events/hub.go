package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fwornle/kg-orchestrator/internal/cache"
	"github.com/fwornle/kg-orchestrator/internal/channel"
	"github.com/fwornle/kg-orchestrator/internal/pool"
)

// subscriber is one observer's outbound queue: a tunable channel so a burst
// of events grows its buffer rather than blocking the broadcaster, and
// shrinks again once the burst passes (grounded on internal/channel's
// self-tuning pattern).
type subscriber struct {
	id string
	ch *channel.TunableChannel[Event]
}

// HubConfig tunes the Hub's fan-out and optional redis mirror.
type HubConfig struct {
	SubscriberBuffer channel.TunableConfig
	BroadcastWorkers pool.GoroutinePoolConfig
	HistoryTTL       time.Duration
	RedisKeyPrefix   string
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBuffer: channel.DefaultTunableConfig(),
		BroadcastWorkers: pool.DefaultGoroutinePoolConfig(),
		HistoryTTL:       10 * time.Minute,
		RedisKeyPrefix:   "kg-orchestrator:events",
	}
}

// Hub fans one Event out to N observers without letting a slow observer
// block the orchestrator: broadcast to each subscriber's TunableChannel is
// via TrySend, and a subscriber whose buffer is still full is disconnected
// rather than making everyone else wait (spec §4.5). Broadcast is mirrored
// onto a redis pub/sub channel, keyed by workflowId, so other processes can
// observe without a direct hop to this one, and onto a cache.Manager replay
// buffer so a client that connects mid-run can catch up on recent history.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	workers     *pool.GoroutinePool
	bufPool     *pool.Pool[*bytes.Buffer]
	redis       *redis.Client
	history     *cache.Manager
	config      HubConfig
	logger      *zap.Logger
}

// NewHub constructs a Hub. redisClient and historyCache are both optional
// (nil disables that mirror) so the relay still works against a bare
// in-process set of subscribers in tests.
func NewHub(config HubConfig, redisClient *redis.Client, historyCache *cache.Manager, logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		workers: pool.NewGoroutinePool(config.BroadcastWorkers),
		bufPool: pool.NewPool(
			func() *bytes.Buffer { return new(bytes.Buffer) },
			func(b **bytes.Buffer) { (*b).Reset() },
		),
		redis:   redisClient,
		history: historyCache,
		config:  config,
		logger:  logger.With(zap.String("component", "events_hub")),
	}
}

// Subscribe registers a new observer and returns its receive channel plus an
// Unsubscribe func. The returned channel is closed by Unsubscribe.
func (h *Hub) Subscribe(id string) (<-chan Event, func()) {
	sub := &subscriber{id: id, ch: channel.NewTunableChannel[Event](h.config.SubscriberBuffer)}
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	return sub.ch.Chan(), func() { h.unsubscribe(id) }
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		sub.ch.Close()
	}
}

// Replay returns up to limit recently broadcast events for workflowID from
// the history cache, oldest first, for a client that connects mid-run.
func (h *Hub) Replay(ctx context.Context, workflowID string, limit int) []Event {
	if h.history == nil {
		return nil
	}
	var entries []Event
	if err := h.history.GetJSON(ctx, h.historyKey(workflowID), &entries); err != nil {
		return nil
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func (h *Hub) historyKey(workflowID string) string {
	return fmt.Sprintf("%s:history:%s", h.config.RedisKeyPrefix, workflowID)
}

// Broadcast delivers ev to every current subscriber (dropping any whose
// buffer is still full), mirrors it to redis, and appends it to the replay
// history. Broadcast never blocks on a slow subscriber or a slow mirror:
// subscriber delivery is a non-blocking TrySend, and the redis and history
// mirrors are submitted to the bounded goroutine pool; a submission the pool
// rejects (queue full or pool closed) is dropped without being logged.
func (h *Hub) Broadcast(ctx context.Context, ev Event) {
	if err := ev.Validate(); err != nil {
		h.logger.Warn("refusing to broadcast invalid event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub := sub
		if !sub.ch.TrySend(ev) {
			h.logger.Info("disconnecting slow observer", zap.String("subscriber", sub.id), zap.String("workflowId", ev.WorkflowID))
			h.unsubscribe(sub.id)
		}
	}

	if h.redis != nil {
		_ = h.workers.Submit(ctx, func(ctx context.Context) error { return h.publishRedis(ctx, ev) })
	}
	if h.history != nil {
		_ = h.workers.Submit(ctx, func(ctx context.Context) error { return h.appendHistory(ctx, ev) })
	}
}

func (h *Hub) publishRedis(ctx context.Context, ev Event) error {
	buf := h.bufPool.Get()
	defer h.bufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return fmt.Errorf("marshal event for redis mirror: %w", err)
	}
	channelName := fmt.Sprintf("%s:%s", h.config.RedisKeyPrefix, ev.WorkflowID)
	if err := h.redis.Publish(ctx, channelName, buf.Bytes()).Err(); err != nil {
		h.logger.Warn("redis mirror publish failed", zap.Error(err))
	}
	return nil
}

func (h *Hub) appendHistory(ctx context.Context, ev Event) error {
	key := h.historyKey(ev.WorkflowID)
	var entries []Event
	_ = h.history.GetJSON(ctx, key, &entries)
	entries = append(entries, ev)
	const maxHistory = 200
	if len(entries) > maxHistory {
		entries = entries[len(entries)-maxHistory:]
	}
	if err := h.history.SetJSON(ctx, key, entries, h.config.HistoryTTL); err != nil {
		h.logger.Warn("event history append failed", zap.Error(err))
	}
	return nil
}

// Close releases every subscriber's channel and the broadcast worker pool.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.unsubscribe(id)
	}
	h.workers.Close()
}
