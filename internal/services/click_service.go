package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/repository"
)

var (
	clicksRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_clicks_recorded_total",
		Help: "Clicks persisted by the click recorder.",
	})
	clickFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_click_failures_total",
		Help: "Clicks that could not be persisted.",
	})
	clickQueueFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_click_queue_fallbacks_total",
		Help: "Clicks recorded outside the worker pool because the queue was full.",
	})
	clicksDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_clicks_dropped_total",
		Help: "Clicks discarded because the recorder was already stopped.",
	})
)

// ClickRecorder persists click events on a pool of worker goroutines fed by
// a buffered channel. Enqueue never blocks: when the buffer is full the
// event is recorded on its own goroutine instead of being dropped. Events
// arriving after Stop are discarded and counted.
type ClickRecorder struct {
	events    chan models.ClickEvent
	linkRepo  repository.LinkRepository
	clickRepo repository.ClickRepository
	store     StorePolicy
	workers   int
	logger    *slog.Logger

	mu       sync.RWMutex // guards closed against concurrent Enqueue
	closed   bool
	wg       sync.WaitGroup
	overflow sync.WaitGroup
}

func NewClickRecorder(linkRepo repository.LinkRepository, clickRepo repository.ClickRepository, bufferSize, workers int, store StorePolicy, logger *slog.Logger) *ClickRecorder {
	if workers < 1 {
		workers = 1
	}
	return &ClickRecorder{
		events:    make(chan models.ClickEvent, bufferSize),
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		store:     store.orDefault(),
		workers:   workers,
		logger:    logger.With(slog.String("component", "click_recorder")),
	}
}

// Start launches the worker goroutines.
func (r *ClickRecorder) Start() {
	r.logger.Info("starting click workers", slog.Int("workers", r.workers))
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

func (r *ClickRecorder) worker() {
	defer r.wg.Done()
	// exits once Stop closes the channel and the buffer is drained
	for ev := range r.events {
		r.record(ev)
	}
}

// Enqueue hands an event to the workers.
func (r *ClickRecorder) Enqueue(ev models.ClickEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		clicksDroppedTotal.Inc()
		r.logger.Debug("click dropped, recorder stopped", slog.String("code", ev.ShortCode))
		return
	}
	select {
	case r.events <- ev:
	default:
		clickQueueFallbacksTotal.Inc()
		r.overflow.Add(1)
		go func() {
			defer r.overflow.Done()
			r.record(ev)
		}()
	}
}

// Stop closes the queue and waits until every accepted event is persisted
// or ctx is done.
func (r *ClickRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		r.overflow.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("click workers drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ClickRecorder) record(ev models.ClickEvent) {
	ctx := context.Background()
	err := r.store.doRetry(ctx, func(ctx context.Context) error {
		return r.linkRepo.IncrementClicks(ctx, ev.ShortCode)
	})
	if err == nil {
		err = r.store.doRetry(ctx, func(ctx context.Context) error {
			return r.clickRepo.CreateClick(ctx, &models.Click{
				ShortCode: ev.ShortCode,
				Timestamp: ev.Timestamp,
				UserAgent: ev.UserAgent,
				IPAddress: ev.IPAddress,
			})
		})
	}
	if err != nil {
		clickFailuresTotal.Inc()
		level := slog.LevelError
		if errors.Is(err, customerrors.ErrNotFound) {
			// link deleted between redirect and recording
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "click not recorded",
			slog.Any("error", customerrors.ErrClickRecordingFailed{Code: ev.ShortCode, Reason: err.Error()}))
		return
	}
	clicksRecordedTotal.Inc()
}
