package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/internal/ratelimit/models"
	"coverline/internal/ratelimit/store/bucket"
	"coverline/pkg/platform/circuit"
	"coverline/pkg/requestcontext"
	"coverline/pkg/testutil"
)

type brokenStore struct{ calls int }

func (s *brokenStore) Allow(context.Context, string, models.Limit) (*models.Result, error) {
	s.calls++
	return nil, errors.New("connection refused")
}

var authLimit = map[models.Class]models.Limit{
	models.ClassAuth: {Requests: 2, Window: time.Minute},
}

func serve(t *testing.T, h http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "curl/8.0", "api"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects the request past the limit", func(t *testing.T) {
		m := New(bucket.NewInMemoryStore(), authLimit, WithLogger(testutil.DiscardLogger()))
		h := m.RateLimit(models.ClassAuth)(okHandler())

		first := serve(t, h, "203.0.113.9")
		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

		serve(t, h, "203.0.113.9")
		denied := serve(t, h, "203.0.113.9")
		require.Equal(t, http.StatusTooManyRequests, denied.Code)
		assert.NotEmpty(t, denied.Header().Get("Retry-After"))
		testutil.AssertErrorCode(t, denied, "rate_limit_exceeded")

		assert.Equal(t, http.StatusNoContent, serve(t, h, "198.51.100.1").Code)
	})

	t.Run("unconfigured classes and disabled limiter pass through", func(t *testing.T) {
		m := New(bucket.NewInMemoryStore(), nil)
		h := m.RateLimit(models.ClassAuth)(okHandler())
		for range 5 {
			assert.Equal(t, http.StatusNoContent, serve(t, h, "203.0.113.9").Code)
		}

		off := New(bucket.NewInMemoryStore(), authLimit, WithDisabled(true))
		h = off.RateLimit(models.ClassAuth)(okHandler())
		for range 5 {
			assert.Equal(t, http.StatusNoContent, serve(t, h, "203.0.113.9").Code)
		}
	})

	t.Run("store errors without a fallback fail open", func(t *testing.T) {
		m := New(&brokenStore{}, authLimit, WithLogger(testutil.DiscardLogger()))
		h := m.RateLimit(models.ClassAuth)(okHandler())
		for range 3 {
			assert.Equal(t, http.StatusNoContent, serve(t, h, "203.0.113.9").Code)
		}
	})

	t.Run("open breaker switches to the fallback store", func(t *testing.T) {
		primary := &brokenStore{}
		breaker := circuit.New("ratelimit", circuit.WithFailureThreshold(1))
		m := New(primary, authLimit,
			WithFallback(bucket.NewInMemoryStore(), breaker),
			WithLogger(testutil.DiscardLogger()),
		)
		h := m.RateLimit(models.ClassAuth)(okHandler())

		first := serve(t, h, "203.0.113.9")
		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, "degraded", first.Header().Get("X-RateLimit-Status"))
		assert.True(t, breaker.IsOpen())

		serve(t, h, "203.0.113.9")
		assert.Equal(t, http.StatusTooManyRequests, serve(t, h, "203.0.113.9").Code)
		assert.Equal(t, 3, primary.calls, "the primary is still probed while open")
	})
}
