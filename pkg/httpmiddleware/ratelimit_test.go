package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterTake(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("admits up to the budget then rejects", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 3, Window: time.Minute})

		for i := range 3 {
			_, _, ok := rl.take("client", now.Add(time.Duration(i)*time.Second))
			assert.True(t, ok, "request %d should be admitted", i+1)
		}

		remaining, _, ok := rl.take("client", now.Add(3*time.Second))
		assert.False(t, ok)
		assert.Equal(t, 0, remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

		_, _, ok := rl.take("a", now)
		require.True(t, ok)
		_, _, ok = rl.take("a", now)
		require.False(t, ok)

		_, _, ok = rl.take("b", now)
		assert.True(t, ok, "a different key keeps its own budget")
	})

	t.Run("budget returns after the window fully passes", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

		_, _, ok := rl.take("client", now)
		require.True(t, ok)
		_, _, ok = rl.take("client", now.Add(time.Second))
		require.False(t, ok)

		// Two windows later the previous window no longer overlaps.
		_, _, ok = rl.take("client", now.Add(2*time.Minute))
		assert.True(t, ok)
	})

	t.Run("previous window weighs into the sliding estimate", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})

		_, _, ok := rl.take("client", now)
		require.True(t, ok)
		_, _, ok = rl.take("client", now.Add(time.Second))
		require.True(t, ok)

		// Just past the window boundary most of the previous window still
		// overlaps: its two requests count almost fully, so one more request
		// fits but a second does not.
		_, _, ok = rl.take("client", now.Add(time.Minute+time.Second))
		assert.True(t, ok)
		_, _, ok = rl.take("client", now.Add(time.Minute+2*time.Second))
		assert.False(t, ok)
	})

	t.Run("first window aligns to the same boundary as later ones", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 5, Window: time.Minute})

		// A client arriving mid-window still resets on the minute boundary,
		// not a full window after its first request.
		_, resetAt, ok := rl.take("client", now.Add(30*time.Second))
		require.True(t, ok)
		assert.Equal(t, now.Add(time.Minute), resetAt)

		// After rotation the boundary is the same one the first window used.
		_, resetAt, ok = rl.take("client", now.Add(90*time.Second))
		require.True(t, ok)
		assert.Equal(t, now.Add(2*time.Minute), resetAt)
	})

	t.Run("remaining counts down", func(t *testing.T) {
		rl := newRateLimiter(RateLimitConfig{Max: 3, Window: time.Minute})

		remaining, _, _ := rl.take("client", now)
		assert.Equal(t, 2, remaining)
		remaining, _, _ = rl.take("client", now.Add(time.Millisecond))
		assert.Equal(t, 1, remaining)
	})
}

func TestRateLimiterEviction(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(RateLimitConfig{Max: 5, Window: time.Minute})

	rl.take("old", now)
	rl.take("fresh", now.Add(90*time.Second))

	rl.evictStale(now.Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "old")
	assert.Contains(t, rl.buckets, "fresh")
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:     2,
		Window:  time.Minute,
		KeyFunc: func(*http.Request) string { return "test" },
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	rec = do()
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "socket peer fallback",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for single hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-forwarded-for first of many",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2, 10.0.0.3"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "192.0.2.9"},
			want:       "192.0.2.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
