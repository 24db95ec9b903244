package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closes int
}

func (s *fakeSink) Send(_ context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.msgs = append(s.msgs, append([]byte(nil), msg...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = string(m)
	}
	return out
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func TestRegisterSendUnregister(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	sink := &fakeSink{}
	id := r.Register("alice", sink)

	info, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "alice", info.UserID)
	assert.Equal(t, 1, r.Count())

	assert.Equal(t, Delivered, r.SendTo(context.Background(), id, []byte("hi")))
	assert.Equal(t, []string{"hi"}, sink.received())

	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.Equal(t, 1, sink.closeCount())
	assert.Equal(t, 0, r.Count())

	assert.Equal(t, Dropped, r.SendTo(context.Background(), id, []byte("late")))
	assert.Equal(t, []string{"hi"}, sink.received())
}

func TestSendFailureUnregisters(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	sink := &fakeSink{fail: true}
	id := r.Register("bob", sink)

	assert.Equal(t, Dropped, r.SendTo(context.Background(), id, []byte("x")))
	_, ok := r.Lookup(id)
	assert.False(t, ok)
	assert.Equal(t, 1, sink.closeCount())
}

// ctxSink fails only when the caller's context is done.
type ctxSink struct{ fakeSink }

func (s *ctxSink) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeSink.Send(ctx, msg)
}

func TestSendWithCancelledContextKeepsConnection(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	sink := &ctxSink{}
	id := r.Register("carol", sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Dropped, r.SendTo(ctx, id, []byte("late")))

	_, ok := r.Lookup(id)
	assert.True(t, ok)
	assert.Zero(t, sink.closeCount())

	assert.Equal(t, Delivered, r.SendTo(context.Background(), id, []byte("hi")))
	assert.Equal(t, []string{"hi"}, sink.received())
}

func TestBroadcastAndSendToUser(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	a1, a2, b := &fakeSink{}, &fakeSink{}, &fakeSink{}
	r.Register("alice", a1)
	r.Register("alice", a2)
	r.Register("bob", b)

	n := LocalBroadcaster{Registry: r}.BroadcastExcept(context.Background(), "alice", []byte("joined"))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"joined"}, b.received())
	assert.Empty(t, a1.received())

	assert.Equal(t, 2, r.SendToUser(context.Background(), "alice", []byte("dm")))
	assert.Equal(t, []string{"dm"}, a1.received())
	assert.Equal(t, []string{"dm"}, a2.received())

	assert.Equal(t, 3, r.Broadcast(context.Background(), nil, []byte("all")))
}

func TestSweepEvictsIdleConnections(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return now }

	idle := &fakeSink{}
	idleID := r.Register("idle", idle)
	touched := r.Register("touched", &fakeSink{})
	sent := r.Register("sent", &fakeSink{})

	now = now.Add(50 * time.Second)
	r.Touch(touched)
	assert.Equal(t, Delivered, r.SendTo(context.Background(), sent, []byte("ping")))

	assert.Equal(t, 1, r.Sweep(now.Add(30*time.Second)))
	_, ok := r.Lookup(idleID)
	assert.False(t, ok)
	assert.Equal(t, 1, idle.closeCount())
	assert.Equal(t, 2, r.Count())
}

func TestConcurrentSendAndUnregister(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	sinks := make([]*fakeSink, 50)
	ids := make([]string, 50)
	for i := range sinks {
		sinks[i] = &fakeSink{}
		ids[i] = r.Register("u", sinks[i])
	}

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			r.SendTo(context.Background(), id, []byte("m"))
		}(ids[i])
		go func(id string) {
			defer wg.Done()
			r.Unregister(id)
		}(ids[i])
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
	for _, s := range sinks {
		assert.Equal(t, 1, s.closeCount())
		assert.LessOrEqual(t, len(s.received()), 1)
	}
}

func TestRunClosesEverythingOnShutdown(t *testing.T) {
	r := NewRegistry(time.Minute, discardLogger())
	sink := &fakeSink{}
	r.Register("carol", sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1, sink.closeCount())
}
