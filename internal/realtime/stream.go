package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	customerrors "github.com/axellelanca/locashare/internal/errors"
)

var (
	streamOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locashare_stream_sessions_total",
		Help: "Finished stream sessions by final state.",
	}, []string{"state"})
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locashare_stream_sessions_active",
		Help: "Stream sessions not yet finished.",
	})
)

// State is the lifecycle state of a stream session.
type State int32

const (
	StateCreated State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s >= StateCompleted }

// Chunk types emitted by the dispatcher itself.
const (
	ChunkDone  = "done"
	ChunkError = "error"
)

// Chunk is one frame of a stream. Seq starts at 1 and strictly increases
// within a session.
type Chunk struct {
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
	Final   bool   `json:"finished"`
}

// Producer generates the chunks of a session. emit fails once the session
// is cancelled or failed, and the producer must then return.
type Producer func(ctx context.Context, emit func(Chunk) error) error

var (
	// ErrSessionClosed is returned by emit after the session ended.
	ErrSessionClosed = errors.New("stream session closed")
	// ErrConsumerIdle fails a session whose consumer stopped reading.
	ErrConsumerIdle = errors.New("stream consumer idle timeout")
)

// StreamRequest describes what a session streams.
type StreamRequest struct {
	Query     string
	UserID    string
	Latitude  *float64
	Longitude *float64
}

// Dispatcher opens stream sessions with a shared buffer and idle policy.
type Dispatcher struct {
	bufferSize  int
	idleTimeout time.Duration
	logger      *slog.Logger
}

func NewDispatcher(bufferSize int, idleTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		bufferSize:  bufferSize,
		idleTimeout: idleTimeout,
		logger:      logger.With(slog.String("component", "dispatcher")),
	}
}

// Session is one producer/consumer pair. The producer writes into a capped
// buffer; a pump goroutine hands chunks to the consumer through Events.
type Session struct {
	ID      string
	Request StreamRequest

	state     atomic.Int32
	mu        sync.Mutex // guards seq, err, terminal and buf sends
	seq       uint64
	err       error
	terminal  *Chunk
	bufClosed bool

	buf       chan Chunk
	out       chan Chunk
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled chan struct{}
	done      chan struct{}

	stopParent func() bool

	idleTimeout time.Duration
	logger      *slog.Logger
}

// Open starts a session running producer. The session is cancelled when
// ctx is done.
func (d *Dispatcher) Open(ctx context.Context, req StreamRequest, producer Producer) *Session {
	pctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.NewString(),
		Request:     req,
		buf:         make(chan Chunk, d.bufferSize),
		out:         make(chan Chunk),
		ctx:         pctx,
		cancel:      cancel,
		cancelled:   make(chan struct{}),
		done:        make(chan struct{}),
		idleTimeout: d.idleTimeout,
	}
	s.logger = d.logger.With(slog.String("session_id", s.ID))
	activeStreams.Inc()

	s.stopParent = context.AfterFunc(ctx, s.Cancel)
	go s.pump()
	go s.run(producer)
	return s
}

// Events yields the chunks in order and is closed when the session ends.
func (s *Session) Events() <-chan Chunk { return s.out }

// Done is closed once the session reached a terminal state and the
// consumer side has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State { return State(s.state.Load()) }

// Err returns why the session failed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the session. At most one chunk already in flight to the
// consumer can still be received, and no terminal chunk follows.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.State().Terminal() {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(StateCancelled))
	close(s.cancelled)
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) run(producer Producer) {
	s.state.CompareAndSwap(int32(StateCreated), int32(StateStreaming))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("producer panic: %v", r)
			}
		}()
		return producer(s.ctx, s.emit)
	}()

	s.mu.Lock()
	if !s.State().Terminal() {
		if err == nil {
			s.finishLocked(StateCompleted, nil, &Chunk{Type: ChunkDone, Final: true})
		} else {
			s.finishLocked(StateFailed, err, s.errorChunk(err))
		}
	}
	s.bufClosed = true
	close(s.buf)
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) emit(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bufClosed || s.State().Terminal() {
		return ErrSessionClosed
	}
	if err := s.ctx.Err(); err != nil {
		return ErrSessionClosed
	}
	s.seq++
	c.Seq = s.seq
	select {
	case s.buf <- c:
		return nil
	default:
		err := customerrors.Overflow("stream.emit", "stream buffer of %d chunks overflowed", cap(s.buf))
		s.finishLocked(StateFailed, err, s.errorChunk(err))
		s.cancel()
		return err
	}
}

// finishLocked moves to a terminal state. The terminal chunk, if any, is
// delivered after every buffered chunk. Caller holds s.mu.
func (s *Session) finishLocked(state State, err error, terminal *Chunk) {
	s.state.Store(int32(state))
	s.err = err
	if terminal != nil {
		s.seq++
		terminal.Seq = s.seq
		s.terminal = terminal
	}
}

// streamFailedDetail is what clients see for errors without a public detail.
const streamFailedDetail = "stream failed"

func (s *Session) errorChunk(err error) *Chunk {
	var de *customerrors.Error
	if errors.As(err, &de) {
		return &Chunk{Type: ChunkError, Content: de.Detail(), Final: true}
	}
	s.logger.Error("stream producer failed", slog.Any("error", err))
	return &Chunk{Type: ChunkError, Content: streamFailedDetail, Final: true}
}

func (s *Session) pump() {
	defer func() {
		s.stopParent()
		close(s.out)
		st := s.State()
		streamOutcomes.WithLabelValues(st.String()).Inc()
		activeStreams.Dec()
		s.logger.Debug("stream finished", slog.String("state", st.String()))
		close(s.done)
	}()

	for c := range s.buf {
		if !s.deliver(c) {
			return
		}
	}
	s.mu.Lock()
	terminal := s.terminal
	s.mu.Unlock()
	if terminal != nil {
		s.deliver(*terminal)
	}
}

// deliver hands c to the consumer. It gives up when the session is
// cancelled or the consumer stays idle past the idle timeout.
func (s *Session) deliver(c Chunk) bool {
	var idle <-chan time.Time
	if s.idleTimeout > 0 {
		t := time.NewTimer(s.idleTimeout)
		defer t.Stop()
		idle = t.C
	}
	select {
	case <-s.cancelled:
		return false
	default:
	}
	select {
	case s.out <- c:
		return true
	case <-s.cancelled:
		return false
	case <-idle:
		s.mu.Lock()
		if !s.State().Terminal() {
			s.finishLocked(StateFailed, ErrConsumerIdle, nil)
		}
		s.mu.Unlock()
		s.cancel()
		s.logger.Warn("stream consumer idle, session failed")
		return false
	}
}
