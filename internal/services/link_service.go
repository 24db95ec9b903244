// Package services contains the business logic of the application.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/repository"
)

// charset is base62: 62^7 is about 3.5e12 codes at the default length.
const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	maxURLLength   = 2048
	maxTTLDays     = 3650
	defaultListMax = 100
	maxListLimit   = 1000
)

var (
	customCodeRe = regexp.MustCompile(`^[A-Za-z0-9]{3,32}$`)
	// lookups accept anything a past configuration could have generated
	lookupCodeRe = regexp.MustCompile(`^[A-Za-z0-9]{1,32}$`)
)

// LinkConfig tunes code generation and the redirect cache.
type LinkConfig struct {
	CodeLength  int
	MaxAttempts int
	CacheSize   int
	CacheTTL    time.Duration
	Store       StorePolicy
}

// DefaultLinkConfig matches the shipped configuration.
var DefaultLinkConfig = LinkConfig{CodeLength: 7, MaxAttempts: 8, CacheSize: 10000, CacheTTL: 5 * time.Minute}

// ClickQueue accepts click events without blocking the caller.
type ClickQueue interface {
	Enqueue(ev models.ClickEvent)
}

// CreateLinkInput is a request to shorten a URL.
type CreateLinkInput struct {
	URL        string
	CustomCode string
	TTLDays    *int // nil means the link never expires
}

// Visitor identifies who followed a short link.
type Visitor struct {
	UserAgent string
	IPAddress string
}

// LinkService creates, resolves and reports on short links.
type LinkService struct {
	linkRepo  repository.LinkRepository
	clickRepo repository.ClickRepository
	clicks    ClickQueue
	cache     *LinkCache
	locks     *KeyedMutex
	store     StorePolicy
	cfg       LinkConfig
	logger    *slog.Logger

	nowFunc  func() time.Time
	generate func(length int) (string, error)
}

// NewLinkService wires the service. clicks may be nil, in which case
// resolved links are not counted.
func NewLinkService(linkRepo repository.LinkRepository, clickRepo repository.ClickRepository, clicks ClickQueue, cfg LinkConfig, logger *slog.Logger) *LinkService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultLinkConfig.CodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultLinkConfig.MaxAttempts
	}
	return &LinkService{
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		clicks:    clicks,
		cache:     NewLinkCache(cfg.CacheSize, cfg.CacheTTL),
		locks:     NewKeyedMutex(),
		store:     cfg.Store.orDefault(),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "links")),
		nowFunc:   time.Now,
		generate:  GenerateShortCode,
	}
}

// GenerateShortCode returns a random base62 code of the given length drawn
// from crypto/rand.
func GenerateShortCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func (s *LinkService) now() time.Time { return s.nowFunc().UTC() }

// CreateLink validates the request and stores a new link. A custom code that
// is taken by an active link fails with Conflict. A custom code held by an
// expired link is reclaimed. Generated codes are retried on collision up to
// MaxAttempts times.
func (s *LinkService) CreateLink(ctx context.Context, in CreateLinkInput) (*models.Link, error) {
	const op = "links.Create"
	target, err := normalizeTargetURL(in.URL)
	if err != nil {
		return nil, customerrors.InvalidArgument(op, "%s", err.Error())
	}
	if in.TTLDays != nil && (*in.TTLDays <= 0 || *in.TTLDays > maxTTLDays) {
		return nil, customerrors.InvalidArgument(op, "ttl_days must be within 1..%d", maxTTLDays)
	}

	now := s.now()
	newLink := func(code string, custom bool) *models.Link {
		link := &models.Link{ShortCode: code, LongURL: target, Custom: custom, CreatedAt: now}
		if in.TTLDays != nil {
			exp := now.Add(time.Duration(*in.TTLDays) * 24 * time.Hour)
			link.ExpiresAt = &exp
		}
		return link
	}

	if custom := strings.TrimSpace(in.CustomCode); custom != "" {
		if !customCodeRe.MatchString(custom) {
			return nil, customerrors.InvalidArgument(op, "custom code must be 3 to 32 letters or digits")
		}
		return s.createCustom(ctx, newLink(custom, true), now)
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		code, err := s.generate(s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		link := newLink(code, false)
		err = s.store.doRetry(ctx, func(ctx context.Context) error {
			return s.linkRepo.CreateLink(ctx, link)
		})
		if err == nil {
			s.logger.InfoContext(ctx, "short link created", slog.String("code", code))
			return link, nil
		}
		if !errors.Is(err, customerrors.ErrConflict) {
			return nil, err
		}
		s.logger.DebugContext(ctx, "short code collision", slog.String("code", code), slog.Int("attempt", attempt))
	}
	s.logger.WarnContext(ctx, "short code space exhausted", slog.Int("attempts", s.cfg.MaxAttempts))
	return nil, customerrors.ErrShortCodeGenerationFailed
}

func (s *LinkService) createCustom(ctx context.Context, link *models.Link, now time.Time) (*models.Link, error) {
	unlock := s.locks.Lock(link.ShortCode)
	defer unlock()

	err := s.store.doRetry(ctx, func(ctx context.Context) error {
		return s.linkRepo.CreateLink(ctx, link)
	})
	if errors.Is(err, customerrors.ErrConflict) {
		err = s.store.doRetry(ctx, func(ctx context.Context) error {
			return s.linkRepo.ReplaceExpiredLink(ctx, link, now)
		})
		if err == nil {
			s.logger.InfoContext(ctx, "expired custom code reclaimed", slog.String("code", link.ShortCode))
		}
	}
	if errors.Is(err, customerrors.ErrConflict) {
		return nil, customerrors.Conflict("links.Create", "custom code %q is already in use", link.ShortCode)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Delete(link.ShortCode)
	return link, nil
}

// Resolve returns the target URL of an active link and queues a click.
// Unknown and expired codes both fail with the same NotFound error.
func (s *LinkService) Resolve(ctx context.Context, code string, visitor Visitor) (string, error) {
	notFound := customerrors.NotFound("links.Resolve", "short link not found")
	if !lookupCodeRe.MatchString(code) {
		return "", notFound
	}

	link, ok := s.cache.Get(code)
	if !ok {
		var stored *models.Link
		err := s.store.do(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.linkRepo.GetLinkByShortCode(ctx, code)
			return err
		})
		if errors.Is(err, customerrors.ErrNotFound) {
			return "", notFound
		}
		if err != nil {
			return "", err
		}
		link = *stored
		s.cache.Set(link)
	}

	now := s.now()
	if link.ExpiredAt(now) {
		return "", notFound
	}

	if s.clicks != nil {
		s.clicks.Enqueue(models.ClickEvent{
			ShortCode: code,
			Timestamp: now,
			UserAgent: visitor.UserAgent,
			IPAddress: visitor.IPAddress,
		})
	}
	return link.LongURL, nil
}

// Stats reports a link's counters whether or not it is expired.
func (s *LinkService) Stats(ctx context.Context, code string) (*models.LinkStats, error) {
	if !lookupCodeRe.MatchString(code) {
		return nil, customerrors.NotFound("links.Stats", "short link not found")
	}
	var link *models.Link
	var recent []time.Time
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		if link, err = s.linkRepo.GetLinkByShortCode(ctx, code); err != nil {
			return err
		}
		recent, err = s.clickRepo.RecentClicks(ctx, code, models.MaxRecentClicks)
		return err
	})
	if errors.Is(err, customerrors.ErrNotFound) {
		return nil, customerrors.NotFound("links.Stats", "short link not found")
	}
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []time.Time{}
	}
	return &models.LinkStats{
		Code:         link.ShortCode,
		OriginalURL:  link.LongURL,
		Clicks:       link.Clicks,
		CreatedAt:    link.CreatedAt,
		ExpiresAt:    link.ExpiresAt,
		Active:       !link.ExpiredAt(s.now()),
		RecentClicks: recent,
	}, nil
}

// List returns the newest links, at most maxListLimit.
func (s *LinkService) List(ctx context.Context, limit int) ([]models.Link, error) {
	if limit <= 0 {
		limit = defaultListMax
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var links []models.Link
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		links, err = s.linkRepo.GetAllLinks(ctx, limit)
		return err
	})
	if links == nil && err == nil {
		links = []models.Link{}
	}
	return links, err
}

// Delete removes a link with its click history.
func (s *LinkService) Delete(ctx context.Context, code string) error {
	if !lookupCodeRe.MatchString(code) {
		return customerrors.NotFound("links.Delete", "short link not found")
	}
	unlock := s.locks.Lock(code)
	defer unlock()

	err := s.store.doRetry(ctx, func(ctx context.Context) error {
		return s.linkRepo.DeleteLink(ctx, code)
	})
	s.cache.Delete(code)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "short link deleted", slog.String("code", code))
	return nil
}

// PurgeExpired removes links that expired before the cutoff.
func (s *LinkService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.linkRepo.PurgeExpired(ctx, before)
		return err
	})
	return n, err
}

func normalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	if len(raw) > maxURLLength {
		return "", fmt.Errorf("url must be at most %d characters", maxURLLength)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("url is not valid")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.New("url must use http or https")
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return "", errors.New("url must have a host")
	}
	return raw, nil
}
