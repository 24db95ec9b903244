package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
)

// Redis key layout, one set of keys per short code:
//
//	url:{code}        target URL
//	meta:{code}       hash: custom, created_at, expires_at (unix ms, 0 = never)
//	clicks:{code}     click counter
//	clicks_log:{code} recent click timestamps, newest first, capped
//
// Keys of an expiring link carry a TTL of expiry plus retention, so Redis
// drops them on its own once stats are no longer needed.
const (
	urlPrefix      = "url:"
	metaPrefix     = "meta:"
	clicksPrefix   = "clicks:"
	clickLogPrefix = "clicks_log:"
)

func linkKeys(code string) []string {
	return []string{urlPrefix + code, metaPrefix + code, clicksPrefix + code, clickLogPrefix + code}
}

// incrScript increments the counter only while the link exists, and gives
// the counter the same TTL as the link.
var incrScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then return -1 end
local n = redis.call('INCR', KEYS[2])
if ttl > 0 then redis.call('PEXPIRE', KEYS[2], ttl) end
return n
`)

// logScript prepends a click timestamp and trims the log.
var logScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then return -1 end
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[2]) - 1)
if ttl > 0 then redis.call('PEXPIRE', KEYS[2], ttl) end
return 1
`)

// RedisStore keeps short links and their click log in Redis. It implements
// both LinkRepository and ClickRepository.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

var (
	_ LinkRepository  = (*RedisStore)(nil)
	_ ClickRepository = (*RedisStore)(nil)
)

// NewRedisClient builds a client and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore returns a store keeping expired links for retention.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) CreateLink(ctx context.Context, link *models.Link) error {
	keys := linkKeys(link.ShortCode)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys[0]).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return customerrors.Conflict("links.Create", "short code %q already in use", link.ShortCode)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeLink(ctx, pipe, link)
			return nil
		})
		return err
	}, keys[0])
	if errors.Is(err, redis.TxFailedErr) {
		return customerrors.Conflict("links.Create", "short code %q already in use", link.ShortCode)
	}
	return storeErr("links.Create", err)
}

func (s *RedisStore) ReplaceExpiredLink(ctx context.Context, link *models.Link, now time.Time) error {
	keys := linkKeys(link.ShortCode)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, keys[1], "expires_at").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		exists, err := tx.Exists(ctx, keys[0]).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			expiresMs, _ := strconv.ParseInt(raw, 10, 64)
			if expiresMs == 0 || !now.After(time.UnixMilli(expiresMs)) {
				return customerrors.Conflict("links.Replace", "short code %q already in use", link.ShortCode)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			s.writeLink(ctx, pipe, link)
			return nil
		})
		return err
	}, keys[0], keys[1])
	if errors.Is(err, redis.TxFailedErr) {
		return customerrors.Conflict("links.Replace", "short code %q already in use", link.ShortCode)
	}
	return storeErr("links.Replace", err)
}

func (s *RedisStore) writeLink(ctx context.Context, pipe redis.Pipeliner, link *models.Link) {
	keys := linkKeys(link.ShortCode)
	var expiresMs int64
	if link.ExpiresAt != nil {
		expiresMs = link.ExpiresAt.UnixMilli()
	}
	pipe.Set(ctx, keys[0], link.LongURL, 0)
	pipe.HSet(ctx, keys[1],
		"custom", strconv.FormatBool(link.Custom),
		"created_at", link.CreatedAt.UnixMilli(),
		"expires_at", expiresMs,
	)
	if link.ExpiresAt != nil {
		purgeAt := link.ExpiresAt.Add(s.retention)
		pipe.PExpireAt(ctx, keys[0], purgeAt)
		pipe.PExpireAt(ctx, keys[1], purgeAt)
	}
}

func (s *RedisStore) GetLinkByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	keys := linkKeys(shortCode)
	pipe := s.client.Pipeline()
	urlCmd := pipe.Get(ctx, keys[0])
	metaCmd := pipe.HGetAll(ctx, keys[1])
	clicksCmd := pipe.Get(ctx, keys[2])
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("links.Get", err)
	}

	target, err := urlCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, customerrors.NotFound("links.Get", "short code %q not found", shortCode)
	}
	if err != nil {
		return nil, storeErr("links.Get", err)
	}

	link := &models.Link{ShortCode: shortCode, LongURL: target}
	meta := metaCmd.Val()
	link.Custom, _ = strconv.ParseBool(meta["custom"])
	if ms, err := strconv.ParseInt(meta["created_at"], 10, 64); err == nil {
		link.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(meta["expires_at"], 10, 64); err == nil && ms > 0 {
		exp := time.UnixMilli(ms).UTC()
		link.ExpiresAt = &exp
	}
	if n, err := clicksCmd.Int64(); err == nil {
		link.Clicks = n
	}
	return link, nil
}

// GetAllLinks scans the keyspace, so it is meant for admin listing only.
func (s *RedisStore) GetAllLinks(ctx context.Context, limit int) ([]models.Link, error) {
	codes, err := s.scanCodes(ctx)
	if err != nil {
		return nil, storeErr("links.List", err)
	}
	links := make([]models.Link, 0, len(codes))
	for _, code := range codes {
		link, err := s.GetLinkByShortCode(ctx, code)
		if errors.Is(err, customerrors.ErrNotFound) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ShortCode < links[j].ShortCode
	})
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (s *RedisStore) IncrementClicks(ctx context.Context, shortCode string) error {
	keys := linkKeys(shortCode)
	n, err := incrScript.Run(ctx, s.client, []string{keys[0], keys[2]}).Int64()
	if err != nil {
		return storeErr("links.IncrementClicks", err)
	}
	if n < 0 {
		return customerrors.NotFound("links.IncrementClicks", "short code %q not found", shortCode)
	}
	return nil
}

func (s *RedisStore) DeleteLink(ctx context.Context, shortCode string) error {
	keys := linkKeys(shortCode)
	var delURL *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delURL = pipe.Del(ctx, keys[0])
		pipe.Del(ctx, keys[1:]...)
		return nil
	})
	if err != nil {
		return storeErr("links.Delete", err)
	}
	if delURL.Val() == 0 {
		return customerrors.NotFound("links.Delete", "short code %q not found", shortCode)
	}
	return nil
}

func (s *RedisStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	codes, err := s.scanCodes(ctx)
	if err != nil {
		return 0, storeErr("links.PurgeExpired", err)
	}
	var purged int64
	for _, code := range codes {
		keys := linkKeys(code)
		raw, err := s.client.HGet(ctx, keys[1], "expires_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return purged, storeErr("links.PurgeExpired", err)
		}
		ms, _ := strconv.ParseInt(raw, 10, 64)
		if ms == 0 || !time.UnixMilli(ms).Before(before) {
			continue
		}
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return purged, storeErr("links.PurgeExpired", err)
		}
		if n > 0 {
			purged++
		}
	}
	return purged, nil
}

func (s *RedisStore) CreateClick(ctx context.Context, click *models.Click) error {
	keys := linkKeys(click.ShortCode)
	ts := click.Timestamp.UTC().Format(time.RFC3339Nano)
	n, err := logScript.Run(ctx, s.client, []string{keys[0], keys[3]}, ts, models.MaxRecentClicks).Int64()
	if err != nil {
		return storeErr("clicks.Create", err)
	}
	if n < 0 {
		return customerrors.NotFound("clicks.Create", "short code %q not found", click.ShortCode)
	}
	return nil
}

func (s *RedisStore) RecentClicks(ctx context.Context, shortCode string, limit int) ([]time.Time, error) {
	raw, err := s.client.LRange(ctx, clickLogPrefix+shortCode, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, storeErr("clicks.Recent", err)
	}
	stamps := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339Nano, r)
		if err != nil {
			continue
		}
		stamps = append(stamps, t)
	}
	return stamps, nil
}

func (s *RedisStore) scanCodes(ctx context.Context) ([]string, error) {
	var codes []string
	iter := s.client.Scan(ctx, 0, urlPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(iter.Val(), urlPrefix))
	}
	return codes, iter.Err()
}
