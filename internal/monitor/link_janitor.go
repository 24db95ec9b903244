// Package monitor runs periodic maintenance over short links.
package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/axellelanca/locashare/internal/models"
)

var (
	purgedLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_links_purged_total",
		Help: "Expired short links removed after the retention period.",
	})
	unreachableTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locashare_link_targets_unreachable",
		Help: "Short link targets that failed the last reachability check.",
	})
)

// LinkStore is what the janitor needs from the link service.
type LinkStore interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context, limit int) ([]models.Link, error)
}

// DefaultCheckLimit matches the largest page the link service returns.
const DefaultCheckLimit = 1000

// LinkJanitor deletes links that expired more than Retention ago and,
// when CheckTargets is set, logs when a target URL changes reachability.
// Only the newest CheckLimit links are checked on each pass.
type LinkJanitor struct {
	links        LinkStore
	interval     time.Duration
	retention    time.Duration
	CheckTargets bool
	CheckLimit   int

	mu          sync.Mutex
	knownStates map[string]bool // short code -> reachable
	httpClient  *http.Client
	nowFunc     func() time.Time
	logger      *slog.Logger
}

func NewLinkJanitor(links LinkStore, interval, retention time.Duration, logger *slog.Logger) *LinkJanitor {
	return &LinkJanitor{
		links:       links,
		interval:    interval,
		retention:   retention,
		CheckLimit:  DefaultCheckLimit,
		knownStates: make(map[string]bool),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		nowFunc:     time.Now,
		logger:      logger.With(slog.String("component", "janitor")),
	}
}

// Run does one pass immediately and then one per interval until ctx is done.
func (j *LinkJanitor) Run(ctx context.Context) {
	j.logger.Info("link janitor started", slog.Duration("interval", j.interval), slog.Duration("retention", j.retention))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("link janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce purges and, if enabled, checks targets.
func (j *LinkJanitor) RunOnce(ctx context.Context) {
	cutoff := j.nowFunc().UTC().Add(-j.retention)
	n, err := j.links.PurgeExpired(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "purging expired links failed", slog.Any("error", err))
	} else if n > 0 {
		purgedLinks.Add(float64(n))
		j.logger.InfoContext(ctx, "expired links purged", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}

	if j.CheckTargets {
		j.checkTargets(ctx)
	}
}

func (j *LinkJanitor) checkTargets(ctx context.Context) {
	limit := j.CheckLimit
	if limit <= 0 {
		limit = DefaultCheckLimit
	}
	links, err := j.links.List(ctx, limit)
	if err != nil {
		j.logger.ErrorContext(ctx, "listing links for target check failed", slog.Any("error", err))
		return
	}

	down := 0
	for _, link := range links {
		current := j.isReachable(ctx, link.LongURL)
		if !current {
			down++
		}

		j.mu.Lock()
		previous, seen := j.knownStates[link.ShortCode]
		j.knownStates[link.ShortCode] = current
		j.mu.Unlock()

		if seen && previous != current {
			j.logger.WarnContext(ctx, "link target reachability changed",
				slog.String("code", link.ShortCode),
				slog.String("url", link.LongURL),
				slog.String("from", formatState(previous)),
				slog.String("to", formatState(current)))
		}
	}
	unreachableTargets.Set(float64(down))
}

// isReachable sends a HEAD request; 2xx and 3xx count as reachable.
func (j *LinkJanitor) isReachable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := j.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// State returns the last known reachability of a link target.
func (j *LinkJanitor) State(code string) (reachable, known bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	reachable, known = j.knownStates[code]
	return reachable, known
}

func formatState(reachable bool) string {
	if reachable {
		return "reachable"
	}
	return "unreachable"
}
