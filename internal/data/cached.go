package data

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// cachedProvider decorates a Provider with an in-memory TTL cache so
// repeated scans within the TTL do not refetch chains. Errors are not cached.
type cachedProvider struct {
	next  Provider
	cache *cache.Cache
}

// NewCachedProvider wraps next. A non-positive ttl disables caching and
// returns next unchanged.
func NewCachedProvider(next Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return next
	}
	return &cachedProvider{next: next, cache: cache.New(ttl, 2*ttl)}
}

func cacheKey(kind, ticker string, dates ...time.Time) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(strings.ToUpper(ticker))
	for _, d := range dates {
		b.WriteByte('|')
		b.WriteString(d.Format(DateLayout))
	}
	return b.String()
}

func (c *cachedProvider) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	key := cacheKey("quote", ticker)
	if v, ok := c.cache.Get(key); ok {
		logger.Tracef("event=cache_hit key=%s", key)
		return v.(Quote), nil
	}
	q, err := c.next.GetQuote(ctx, ticker)
	if err != nil {
		return Quote{}, err
	}
	c.cache.SetDefault(key, q)
	return q, nil
}

func (c *cachedProvider) GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	key := cacheKey("expirations", ticker, asOf)
	if v, ok := c.cache.Get(key); ok {
		logger.Tracef("event=cache_hit key=%s", key)
		return append([]time.Time(nil), v.([]time.Time)...), nil
	}
	dates, err := c.next.GetExpirations(ctx, ticker, asOf)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, append([]time.Time(nil), dates...))
	return dates, nil
}

// GetChain returns a shared *Chain on hits; callers treat chains as read-only.
func (c *cachedProvider) GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	key := cacheKey("chain", ticker, expiry)
	if v, ok := c.cache.Get(key); ok {
		logger.Tracef("event=cache_hit key=%s", key)
		return v.(*Chain), nil
	}
	chain, err := c.next.GetChain(ctx, ticker, expiry)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, chain)
	return chain, nil
}

func (c *cachedProvider) GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error) {
	key := cacheKey("bars", ticker, fromDate, toDate)
	if v, ok := c.cache.Get(key); ok {
		logger.Tracef("event=cache_hit key=%s", key)
		return append([]Bar(nil), v.([]Bar)...), nil
	}
	bars, err := c.next.GetBars(ctx, ticker, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, append([]Bar(nil), bars...))
	return bars, nil
}
