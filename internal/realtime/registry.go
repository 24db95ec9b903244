// Package realtime tracks live client connections and drives server-sent
// event streams.
package realtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const shardCount = 32

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locashare_ws_connections",
		Help: "Currently registered WebSocket connections.",
	})
	droppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_ws_dropped_sends_total",
		Help: "Messages that could not be delivered to a connection.",
	})
	idleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_ws_idle_evictions_total",
		Help: "Connections closed by the idle sweep.",
	})
)

// Sink is the transport behind a connection.
type Sink interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// SendResult tells whether a message reached the sink.
type SendResult int

const (
	Delivered SendResult = iota
	Dropped
)

func (r SendResult) String() string {
	if r == Delivered {
		return "delivered"
	}
	return "dropped"
}

// ConnInfo is a read-only snapshot of a connection.
type ConnInfo struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
}

type connection struct {
	id        string
	userID    string
	createdAt time.Time
	sink      Sink
	lastSeen  atomic.Int64 // unix nanos

	mu     sync.Mutex // serialises writes to sink
	closed bool
}

func (c *connection) info() ConnInfo {
	return ConnInfo{
		ID:           c.id,
		UserID:       c.userID,
		CreatedAt:    c.createdAt,
		LastActivity: time.Unix(0, c.lastSeen.Load()),
	}
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// Registry maps connection IDs to live connections. Lookups and updates
// only lock one shard. Writes to one connection are linearised by its own
// mutex, and no registry lock is held while a sink is written.
type Registry struct {
	shards      [shardCount]shard
	idleTimeout time.Duration
	nowFunc     func() time.Time
	logger      *slog.Logger
}

func NewRegistry(idleTimeout time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		idleTimeout: idleTimeout,
		nowFunc:     time.Now,
		logger:      logger.With(slog.String("component", "registry")),
	}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]*connection)
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

// Register adds a connection for userID and returns its new ID.
func (r *Registry) Register(userID string, sink Sink) string {
	now := r.nowFunc()
	c := &connection{id: uuid.NewString(), userID: userID, createdAt: now, sink: sink}
	c.lastSeen.Store(now.UnixNano())

	s := r.shardFor(c.id)
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	activeConnections.Inc()
	r.logger.Debug("connection registered", slog.String("conn_id", c.id), slog.String("user_id", userID))
	return c.id
}

// Unregister removes the connection and closes its sink. Unknown or already
// removed IDs are a no-op. It reports whether a connection was removed.
func (r *Registry) Unregister(connID string) bool {
	s := r.shardFor(connID)
	s.mu.Lock()
	c, ok := s.conns[connID]
	if ok {
		delete(s.conns, connID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	activeConnections.Dec()
	c.mu.Lock()
	c.closed = true
	err := c.sink.Close()
	c.mu.Unlock()
	if err != nil {
		r.logger.Debug("sink close failed", slog.String("conn_id", connID), slog.Any("error", err))
	}
	return true
}

func (r *Registry) get(connID string) (*connection, bool) {
	s := r.shardFor(connID)
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()
	return c, ok
}

// Lookup returns a snapshot of the connection.
func (r *Registry) Lookup(connID string) (ConnInfo, bool) {
	c, ok := r.get(connID)
	if !ok {
		return ConnInfo{}, false
	}
	return c.info(), true
}

// SendTo writes msg to one connection. A failed write removes the
// connection.
func (r *Registry) SendTo(ctx context.Context, connID string, msg []byte) SendResult {
	c, ok := r.get(connID)
	if !ok {
		droppedSends.Inc()
		return Dropped
	}
	return r.send(ctx, c, msg)
}

func (r *Registry) send(ctx context.Context, c *connection, msg []byte) SendResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		droppedSends.Inc()
		return Dropped
	}
	err := c.sink.Send(ctx, msg)
	c.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		// The sender gave up; the connection itself is fine.
		droppedSends.Inc()
		return Dropped
	}
	if err != nil {
		droppedSends.Inc()
		r.logger.Debug("send failed, dropping connection", slog.String("conn_id", c.id), slog.Any("error", err))
		r.Unregister(c.id)
		return Dropped
	}
	c.lastSeen.Store(r.nowFunc().UnixNano())
	return Delivered
}

// Broadcast sends msg to every connection matching pred (all when nil) and
// returns how many deliveries succeeded. Each target gets the message at
// most once.
func (r *Registry) Broadcast(ctx context.Context, pred func(ConnInfo) bool, msg []byte) int {
	var targets []*connection
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, c := range s.conns {
			if pred == nil || pred(c.info()) {
				targets = append(targets, c)
			}
		}
		s.mu.RUnlock()
	}

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			if r.send(ctx, c, msg) == Delivered {
				delivered.Add(1)
			}
		}(c)
	}
	wg.Wait()
	return int(delivered.Load())
}

// SendToUser sends msg to every connection owned by userID.
func (r *Registry) SendToUser(ctx context.Context, userID string, msg []byte) int {
	return r.Broadcast(ctx, func(c ConnInfo) bool { return c.UserID == userID }, msg)
}

// Touch records inbound activity on a connection. Successful sends count
// as activity too.
func (r *Registry) Touch(connID string) {
	if c, ok := r.get(connID); ok {
		c.lastSeen.Store(r.nowFunc().UnixNano())
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []ConnInfo {
	var out []ConnInfo
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, c := range s.conns {
			out = append(out, c.info())
		}
		s.mu.RUnlock()
	}
	return out
}

// Sweep unregisters connections idle for longer than the idle timeout at
// instant now, and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTimeout).UnixNano()
	var stale []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for id, c := range s.conns {
			if c.lastSeen.Load() < cutoff {
				stale = append(stale, id)
			}
		}
		s.mu.RUnlock()
	}

	removed := 0
	for _, id := range stale {
		if r.Unregister(id) {
			removed++
		}
	}
	if removed > 0 {
		idleEvictions.Add(float64(removed))
		r.logger.Info("idle connections evicted", slog.Int("count", removed))
	}
	return removed
}

// Run sweeps idle connections every interval until ctx is done, then closes
// all remaining connections.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep(r.nowFunc())
		}
	}
}

// CloseAll unregisters every connection.
func (r *Registry) CloseAll() {
	for _, c := range r.Connections() {
		r.Unregister(c.ID)
	}
}
