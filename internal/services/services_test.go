package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// memLinkStore is an in-memory LinkRepository and ClickRepository.
type memLinkStore struct {
	mu     sync.Mutex
	links  map[string]*models.Link
	clicks map[string][]time.Time

	// failNext makes the next n calls fail with StoreUnavailable
	failNext int
	calls    int
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{links: map[string]*models.Link{}, clicks: map[string][]time.Time{}}
}

func (m *memLinkStore) fail(op string) error {
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return customerrors.StoreUnavailable(op, io.ErrUnexpectedEOF)
	}
	return nil
}

func (m *memLinkStore) CreateLink(_ context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create"); err != nil {
		return err
	}
	if _, ok := m.links[link.ShortCode]; ok {
		return customerrors.Conflict("create", "taken")
	}
	cp := *link
	m.links[link.ShortCode] = &cp
	return nil
}

func (m *memLinkStore) ReplaceExpiredLink(_ context.Context, link *models.Link, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("replace"); err != nil {
		return err
	}
	if old, ok := m.links[link.ShortCode]; ok && !old.ExpiredAt(now) {
		return customerrors.Conflict("replace", "taken")
	}
	cp := *link
	m.links[link.ShortCode] = &cp
	delete(m.clicks, link.ShortCode)
	return nil
}

func (m *memLinkStore) GetLinkByShortCode(_ context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get"); err != nil {
		return nil, err
	}
	l, ok := m.links[code]
	if !ok {
		return nil, customerrors.NotFound("get", "missing")
	}
	cp := *l
	return &cp, nil
}

func (m *memLinkStore) GetAllLinks(_ context.Context, limit int) ([]models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLinkStore) IncrementClicks(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("incr"); err != nil {
		return err
	}
	l, ok := m.links[code]
	if !ok {
		return customerrors.NotFound("incr", "missing")
	}
	l.Clicks++
	return nil
}

func (m *memLinkStore) DeleteLink(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[code]; !ok {
		return customerrors.NotFound("delete", "missing")
	}
	delete(m.links, code)
	delete(m.clicks, code)
	return nil
}

func (m *memLinkStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, l := range m.links {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(before) {
			delete(m.links, code)
			n++
		}
	}
	return n, nil
}

func (m *memLinkStore) CreateClick(_ context.Context, c *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks[c.ShortCode] = append([]time.Time{c.Timestamp}, m.clicks[c.ShortCode]...)
	return nil
}

func (m *memLinkStore) RecentClicks(_ context.Context, code string, limit int) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.clicks[code]
	if len(c) > limit {
		c = c[:limit]
	}
	return append([]time.Time(nil), c...), nil
}
