package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("/a", []byte("a"), "application/json")

	body, ct, ok := c.Get("/a")
	require.True(t, ok)
	assert.Equal(t, "a", string(body))
	assert.Equal(t, "application/json", ct)

	_, _, ok = c.Get("/missing")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("/a", []byte("a"), "")
	c.Set("/b", []byte("b"), "")
	_, _, _ = c.Get("/a")
	c.Set("/c", []byte("c"), "")

	_, _, ok := c.Get("/b")
	assert.False(t, ok, "b was least recently used")
	_, _, ok = c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewLRUCache(10, 30*time.Second)
	c.now = func() time.Time { return now }

	c.Set("/stats", []byte("{}"), "")
	now = now.Add(29 * time.Second)
	_, _, ok := c.Get("/stats")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, _, ok = c.Get("/stats")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRUCache_UpdateAndInvalidate(t *testing.T) {
	c := NewLRUCache(0, 0)
	c.Set("/a", []byte("1"), "")
	c.Set("/a", []byte("2"), "")
	body, _, ok := c.Get("/a")
	require.True(t, ok)
	assert.Equal(t, "2", string(body))
	assert.Equal(t, 1, c.Size())

	c.InvalidateAll()
	assert.Zero(t, c.Size())
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	})
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		status    int
		wantCalls int
		wantCache string
	}{
		{"GET 200 is cached", http.MethodGet, http.StatusOK, 1, "HIT"},
		{"POST passes through", http.MethodPost, http.StatusOK, 2, ""},
		{"errors are not cached", http.MethodGet, http.StatusInternalServerError, 2, "MISS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, tt.status))

			var last *httptest.ResponseRecorder
			for range 2 {
				last = httptest.NewRecorder()
				h.ServeHTTP(last, httptest.NewRequest(tt.method, "/overrides/statistics", nil))
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCache, last.Header().Get("X-Cache"))
			assert.Equal(t, tt.status, last.Code)
			assert.Equal(t, "application/json", last.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"path":"/overrides/statistics"}`, last.Body.String())
		})
	}
}

func TestMiddleware_KeysIncludeQuery(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK))
	for _, u := range []string{"/expiring?days=3", "/expiring?days=7", "/expiring?days=3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, u, nil))
	}
	assert.Equal(t, 2, calls)
}

func TestReportCache(t *testing.T) {
	assert.Nil(t, NewReportCache(&CacheConfig{Enabled: false}))
	assert.Nil(t, NewReportCache(nil))

	var disabled *ReportCache
	calls := 0
	h := disabled.Middleware()(countingHandler(&calls, http.StatusOK))
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/statistics", nil))
	}
	assert.Equal(t, 2, calls)
	disabled.Invalidate()

	rc := NewReportCache(DefaultCacheConfig())
	calls = 0
	h = rc.Middleware()(countingHandler(&calls, http.StatusOK))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/statistics", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/statistics", nil))
	assert.Equal(t, 1, calls)
	rc.Invalidate()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/statistics", nil))
	assert.Equal(t, 2, calls)
}

func TestCacheConfigFromEnv(t *testing.T) {
	t.Setenv("OVERRIDE_CACHE_ENABLED", "false")
	t.Setenv("OVERRIDE_CACHE_TTL_SECONDS", "5")
	t.Setenv("OVERRIDE_CACHE_MAX_SIZE", "nope")

	cfg := CacheConfigFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.TTL)
	assert.Equal(t, 500, cfg.MaxSize)
}
