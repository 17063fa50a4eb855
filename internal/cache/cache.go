package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/domain"
)

const (
	userKeyPrefix     = "user:"
	denylistKeyPrefix = "denylist:"
	resetKeyPrefix    = "reset:"
)

// NewRedis connects to redis. It returns a nil client when no address is
// configured, in which case every cache in this package falls back to
// process memory.
func NewRedis(ctx context.Context, conf *config.RedisConfig) (*redis.Client, error) {
	if conf == nil || conf.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rdb.Ping -> %w", err)
	}

	return rdb, nil
}

// UserCache keeps users by id. Entries are dropped explicitly whenever the
// user or their balance changes.
type UserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUserCache(rdb *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{rdb: rdb, ttl: ttl}
}

func userKey(id uint) string {
	return fmt.Sprintf("%s%d", userKeyPrefix, id)
}

func (c *UserCache) Get(ctx context.Context, id uint) (domain.User, bool) {
	if c == nil || c.rdb == nil {
		return domain.User{}, false
	}

	data, err := c.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("user cache get failed", zap.Uint("userID", id), zap.Error(err))
		}
		return domain.User{}, false
	}

	var user domain.User
	if err = json.Unmarshal(data, &user); err != nil {
		return domain.User{}, false
	}

	return user, true
}

func (c *UserCache) Set(ctx context.Context, user domain.User) {
	if c == nil || c.rdb == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err = c.rdb.Set(ctx, userKey(user.ID), data, c.ttl).Err(); err != nil {
		zap.L().Warn("user cache set failed", zap.Uint("userID", user.ID), zap.Error(err))
	}
}

func (c *UserCache) Invalidate(ctx context.Context, ids ...uint) {
	if c == nil || c.rdb == nil || len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("user cache invalidate failed", zap.Uints("userIDs", ids), zap.Error(err))
	}
}

// expiringSet is the in-process fallback shared by Denylist and RateLimiter.
type expiringSet struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func newExpiringSet() *expiringSet {
	return &expiringSet{items: make(map[string]time.Time)}
}

// add stores key until now+ttl and reports whether it was absent.
func (s *expiringSet) add(key string, now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, exp := range s.items {
		if !now.Before(exp) {
			delete(s.items, k)
		}
	}

	if exp, ok := s.items[key]; ok && now.Before(exp) {
		return false
	}
	s.items[key] = now.Add(ttl)

	return true
}

func (s *expiringSet) contains(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.items[key]
	return ok && now.Before(exp)
}

// Denylist holds revoked bearer tokens until they would have expired anyway.
type Denylist struct {
	rdb   *redis.Client
	local *expiringSet
	now   func() time.Time
}

func NewDenylist(rdb *redis.Client) *Denylist {
	return &Denylist{rdb: rdb, local: newExpiringSet(), now: time.Now}
}

func (d *Denylist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if d.rdb == nil {
		d.local.add(token, d.now(), ttl)
		return nil
	}

	return d.rdb.Set(ctx, denylistKeyPrefix+token, 1, ttl).Err()
}

func (d *Denylist) Contains(ctx context.Context, token string) (bool, error) {
	if d.rdb == nil {
		return d.local.contains(token, d.now()), nil
	}

	n, err := d.rdb.Exists(ctx, denylistKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// RateLimiter allows one hit per key per window.
type RateLimiter struct {
	rdb    *redis.Client
	window time.Duration
	local  *expiringSet
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, window: window, local: newExpiringSet(), now: time.Now}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.window <= 0 {
		return true, nil
	}
	if l.rdb == nil {
		return l.local.add(key, l.now(), l.window), nil
	}

	return l.rdb.SetNX(ctx, resetKeyPrefix+key, 1, l.window).Result()
}
