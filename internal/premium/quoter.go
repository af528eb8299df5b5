package premium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

// Cache stores serialized quotes. Get returns sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Quoter memoizes premium computations. Cache failures never fail a quote:
// they are logged and the premium is computed directly.
type Quoter struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	hits   prometheus.Counter
	misses prometheus.Counter
}

// Option configures a Quoter.
type Option func(*Quoter)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(q *Quoter) {
		q.cache = c
		q.ttl = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Quoter) { q.logger = l }
}

// WithMetrics registers cache hit/miss counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(q *Quoter) {
		f := promauto.With(reg)
		q.hits = f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_quote_cache_hits_total",
			Help: "Premium quotes served from cache",
		})
		q.misses = f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_quote_cache_misses_total",
			Help: "Premium quotes computed because the cache had no entry",
		})
	}
}

// NewQuoter builds a Quoter. Without WithCache every call computes directly.
func NewQuoter(opts ...Option) *Quoter {
	q := &Quoter{logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Quoter) Vehicle(ctx context.Context, kind id.InstrumentKind, cc, ageInMonths int) (VehicleQuote, error) {
	key := fmt.Sprintf("quote:v1:%s:%d:%d", kind, cc, ageInMonths)
	return memoize(ctx, q, key, func() (VehicleQuote, error) {
		return Vehicle(kind, cc, ageInMonths)
	})
}

func (q *Quoter) Health(ctx context.Context, age, members int, sumInsured decimal.Decimal, smoker, preExisting bool) decimal.Decimal {
	key := fmt.Sprintf("quote:v1:health:%d:%d:%s:%t:%t", age, members, sumInsured.String(), smoker, preExisting)
	p, _ := memoize(ctx, q, key, func() (decimal.Decimal, error) {
		return Health(age, members, sumInsured, smoker, preExisting), nil
	})
	return p
}

func (q *Quoter) Life(ctx context.Context, age int, sumAssured decimal.Decimal, termYears int, smoker bool, occupationRisk string) (decimal.Decimal, error) {
	key := fmt.Sprintf("quote:v1:life:%d:%s:%d:%t:%s", age, sumAssured.String(), termYears, smoker, normalizeRisk(occupationRisk))
	return memoize(ctx, q, key, func() (decimal.Decimal, error) {
		return Life(age, sumAssured, termYears, smoker, occupationRisk)
	})
}

// memoize serves key from cache or computes and stores it. Errors from
// compute are returned uncached.
func memoize[T any](ctx context.Context, q *Quoter, key string, compute func() (T, error)) (T, error) {
	if q.cache == nil {
		return compute()
	}

	raw, err := q.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		jsonErr := json.Unmarshal(raw, &cached)
		if jsonErr == nil {
			q.inc(q.hits)
			return cached, nil
		}
		q.logger.WarnContext(ctx, "discarding unreadable cached quote", "key", key, "error", jsonErr)
	case !errors.Is(err, sentinel.ErrNotFound):
		q.logger.WarnContext(ctx, "quote cache read failed", "key", key, "error", err)
	}
	q.inc(q.misses)

	result, err := compute()
	if err != nil {
		return result, err
	}
	if raw, err := json.Marshal(result); err == nil {
		if err := q.cache.Set(ctx, key, raw, q.ttl); err != nil {
			q.logger.WarnContext(ctx, "quote cache write failed", "key", key, "error", err)
		}
	}
	return result, nil
}

func (q *Quoter) inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
