package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// DefaultRelaySubject carries broadcasts between instances.
const DefaultRelaySubject = "locashare.broadcast"

// relayEnvelope is the payload published on the relay subject.
type relayEnvelope struct {
	Origin      string          `json:"origin"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Broadcaster fans a message out to every connection except those of
// excludeUser, on this instance and, when relayed, on all others.
type Broadcaster interface {
	BroadcastExcept(ctx context.Context, excludeUser string, msg []byte) int
}

// LocalBroadcaster broadcasts on this instance only.
type LocalBroadcaster struct {
	Registry *Registry
}

func (b LocalBroadcaster) BroadcastExcept(ctx context.Context, excludeUser string, msg []byte) int {
	return b.Registry.Broadcast(ctx, func(c ConnInfo) bool { return c.UserID != excludeUser }, msg)
}

// NATSRelay delivers broadcasts locally and publishes them on a NATS subject
// so every other instance delivers them to its own connections.
type NATSRelay struct {
	nc       *nats.Conn
	subject  string
	registry *Registry
	instance string
	sub      *nats.Subscription
	logger   *slog.Logger
}

// NewNATSRelay subscribes to subject and starts relaying.
func NewNATSRelay(nc *nats.Conn, subject string, registry *Registry, logger *slog.Logger) (*NATSRelay, error) {
	if subject == "" {
		subject = DefaultRelaySubject
	}
	r := &NATSRelay{
		nc:       nc,
		subject:  subject,
		registry: registry,
		instance: uuid.NewString(),
		logger:   logger.With(slog.String("component", "relay")),
	}
	sub, err := nc.Subscribe(subject, r.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	r.sub = sub
	return r, nil
}

// BroadcastExcept delivers locally and publishes for the other instances.
// The local count is returned; remote deliveries are not awaited.
func (r *NATSRelay) BroadcastExcept(ctx context.Context, excludeUser string, msg []byte) int {
	n := LocalBroadcaster{Registry: r.registry}.BroadcastExcept(ctx, excludeUser, msg)

	data, err := json.Marshal(relayEnvelope{Origin: r.instance, ExcludeUser: excludeUser, Payload: msg})
	if err == nil {
		err = r.nc.Publish(r.subject, data)
	}
	if err != nil {
		r.logger.Warn("relay publish failed", slog.Any("error", err))
	}
	return n
}

func (r *NATSRelay) handle(m *nats.Msg) {
	var env relayEnvelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		r.logger.Warn("malformed relay message", slog.Any("error", err))
		return
	}
	if env.Origin == r.instance {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	LocalBroadcaster{Registry: r.registry}.BroadcastExcept(ctx, env.ExcludeUser, env.Payload)
}

// Close stops relaying. The NATS connection stays open.
func (r *NATSRelay) Close() error {
	return r.sub.Unsubscribe()
}

// StartEmbeddedNATS runs an in-process NATS server on a random port.
func StartEmbeddedNATS() (*server.Server, error) {
	opts := &server.Options{
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}
	return ns, nil
}
