package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

func newTestLimiter(t *testing.T, perWindow int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	config := RateLimitConfig{RequestsPerWindow: perWindow, WindowDuration: time.Minute}
	return NewRateLimiter(client, config, logger), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAsMember(id int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(contextkeys.WithCaller(req.Context(), &directory.Member{ID: id}))
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAsMember(7))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAsMember(7))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterKeysPerCaller(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	handler := limiter.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	require.Equal(t, http.StatusOK, rec.Code)

	// A different member has their own window.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(8))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	handler := limiter.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	mr.FastForward(2 * time.Minute)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	handler := limiter.Middleware(okHandler())
	mr.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsMember(7))
	assert.Equal(t, http.StatusOK, rec.Code)
}
