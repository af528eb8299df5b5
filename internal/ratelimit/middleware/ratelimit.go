// Package middleware throttles routes per client IP using a bucket store.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"coverline/internal/platform/metrics"
	"coverline/internal/ratelimit/models"
	"coverline/pkg/platform/circuit"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

// Store counts requests in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// Middleware checks the primary store and, once the breaker has opened after
// repeated primary errors, the fallback store. Without a fallback a primary
// error lets the request through.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[models.Class]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

func WithFallback(store Store, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = store
		m.breaker = breaker
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) { m.metrics = mt }
}

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

func New(primary Store, limits map[models.Class]models.Limit, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		limits:  limits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit limits requests of class per client IP. Classes without a
// configured limit pass through.
func (m *Middleware) RateLimit(class models.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, ok := m.limits[class]
			if m.disabled || !ok || limit.Requests <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, degraded, err := m.check(ctx, models.Key(class, requestcontext.ClientIP(ctx)), limit)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result, degraded)
			if !result.Allowed {
				m.metrics.IncRateLimited(string(class))
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, models.ExceededResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: "too many requests, retry later",
					RetryAfter:       result.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.Result, bool, error) {
	if m.breaker == nil {
		res, err := m.primary.Allow(ctx, key, limit)
		return res, false, err
	}

	if m.breaker.IsOpen() {
		// Probe the primary so the breaker can close once it recovers.
		if _, err := m.primary.Allow(ctx, key, limit); err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered", "breaker", m.breaker.Name())
			}
		} else {
			m.breaker.RecordFailure()
		}
		res, err := m.fallback.Allow(ctx, key, limit)
		return res, true, err
	}

	res, err := m.primary.Allow(ctx, key, limit)
	if err == nil {
		m.breaker.RecordSuccess()
		return res, false, nil
	}
	useFallback, change := m.breaker.RecordFailure()
	if change.Opened {
		m.logger.WarnContext(ctx, "rate limit store failing, using local fallback",
			"breaker", m.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return nil, false, err
	}
	res, err = m.fallback.Allow(ctx, key, limit)
	return res, true, err
}

func addHeaders(w http.ResponseWriter, result *models.Result, degraded bool) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
