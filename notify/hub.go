package notify

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultShards          = 16
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 5 * time.Second
)

// Hub fans events out to sinks without blocking publishers. A channel key
// always lands on the same shard and each shard has one worker, so events
// for one recipient are delivered in publish order. A full shard queue
// drops the event.
type Hub struct {
	shards    []chan Event
	shardN    int
	queueSize int
	sinks     []Sink
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	dropped int64
	now     func() time.Time
}

var _ Publisher = (*Hub)(nil)

type HubOption func(*Hub)

func WithShards(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.shardN = n
		}
	}
}

func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithDeliveryTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.timeout = d
	}
}

func WithSinks(sinks ...Sink) HubOption {
	return func(h *Hub) {
		h.sinks = append(h.sinks, sinks...)
	}
}

func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		shardN:    defaultShards,
		queueSize: defaultQueueSize,
		timeout:   defaultDeliveryTimeout,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.shards = make([]chan Event, h.shardN)
	for i := range h.shards {
		h.shards[i] = make(chan Event, h.queueSize)
	}
	return h
}

// Start launches one worker per shard. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.closed {
		return
	}
	h.started = true

	for _, q := range h.shards {
		h.wg.Add(1)
		go h.run(q)
	}
	h.logger.Info("notification hub started", zap.Int("shards", len(h.shards)), zap.Int("sinks", len(h.sinks)))
}

// Publish enqueues the event and returns immediately.
func (h *Hub) Publish(channel string, kind EventKind, payload map[string]interface{}) {
	ev := Event{Channel: channel, Kind: kind, Payload: payload, At: h.now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	select {
	case h.shards[h.shardFor(channel)] <- ev:
	default:
		atomic.AddInt64(&h.dropped, 1)
		h.logger.Warn("notification queue full, dropping event",
			zap.String("channel", channel), zap.String("kind", string(kind)))
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, q := range h.shards {
		close(q)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// Dropped reports how many events were discarded because a queue was full.
func (h *Hub) Dropped() int64 {
	return atomic.LoadInt64(&h.dropped)
}

func (h *Hub) shardFor(channel string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(channel))
	return int(f.Sum32() % uint32(len(h.shards)))
}

func (h *Hub) run(q chan Event) {
	defer h.wg.Done()
	for ev := range q {
		for _, s := range h.sinks {
			h.deliver(s, ev)
		}
	}
}

func (h *Hub) deliver(s Sink, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("notification sink panicked",
				zap.String("channel", ev.Channel), zap.String("kind", string(ev.Kind)), zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := s.Deliver(ctx, ev); err != nil {
		h.logger.Warn("notification delivery failed",
			zap.String("channel", ev.Channel), zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
