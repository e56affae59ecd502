// Package token caches the application access token used for upstream calls.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultFetchTimeout = 30 * time.Second
	appKey              = "app"
)

// AppToken is an application access token and the time it was issued.
type AppToken struct {
	Value    string
	IssuedAt time.Time
}

// Fresh reports whether the token is still usable at now.
func (t AppToken) Fresh(now time.Time, ttl time.Duration) bool {
	return t.Value != "" && now.Sub(t.IssuedAt) < ttl
}

// Fetcher performs a client-credentials grant.
type Fetcher interface {
	FetchAppToken(ctx context.Context) (string, error)
}

// Cache hands out the current application token, fetching a new one once
// the cached token is older than the TTL. Concurrent misses share a fetch.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	items        *ttlcache.Cache[string, AppToken]
	group        singleflight.Group
	logger       logger.Logger
}

// NewCache builds a cache over the given fetcher.
func NewCache(f Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      f,
		ttl:          defaultTTL,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       logger.Named("token"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.items = ttlcache.New[string, AppToken](
		ttlcache.WithTTL[string, AppToken](c.ttl),
		ttlcache.WithDisableTouchOnHit[string, AppToken](),
	)
	return c
}

// Start runs expired-item eviction until Stop is called.
func (c *Cache) Start() { go c.items.Start() }

// Stop ends eviction.
func (c *Cache) Stop() { c.items.Stop() }

// Token returns a fresh token, fetching one if needed. The shared fetch is
// detached from the caller that started it and bounded by the fetch
// timeout; each caller stops waiting when its own ctx ends.
func (c *Cache) Token(ctx context.Context) (AppToken, error) {
	if tok, ok := c.cached(); ok {
		metrics.RecordTokenCacheHit()
		return tok, nil
	}

	ch := c.group.DoChan(appKey, func() (any, error) {
		// another caller may have refreshed while we waited on the group
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		value, err := c.fetcher.FetchAppToken(fetchCtx)
		if err != nil {
			metrics.RecordTokenFetch("error")
			return AppToken{}, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		tok := AppToken{Value: value, IssuedAt: c.now()}
		c.items.Set(appKey, tok, ttlcache.DefaultTTL)
		metrics.RecordTokenFetch("ok")
		c.logger.Info(fetchCtx, "app token refreshed")
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error(ctx, "app token fetch failed", logger.Error(res.Err))
			return AppToken{}, res.Err
		}
		return res.Val.(AppToken), nil
	case <-ctx.Done():
		return AppToken{}, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
	}
}

func (c *Cache) cached() (AppToken, bool) {
	item := c.items.Get(appKey)
	if item == nil {
		return AppToken{}, false
	}
	tok := item.Value()
	if !tok.Fresh(c.now(), c.ttl) {
		return AppToken{}, false
	}
	return tok, true
}
