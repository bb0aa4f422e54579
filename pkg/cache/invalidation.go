package cache

import "net/http"

// ReportCache caches override report responses until the next committed
// write. A nil *ReportCache is valid and caches nothing.
type ReportCache struct {
	lru *LRUCache
}

// NewReportCache returns a cache for cfg, or nil when caching is disabled.
func NewReportCache(cfg *CacheConfig) *ReportCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &ReportCache{lru: NewLRUCache(cfg.MaxSize, cfg.TTL)}
}

// Middleware returns the caching middleware, or a pass-through for a nil
// cache.
func (rc *ReportCache) Middleware() func(http.Handler) http.Handler {
	if rc == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return Middleware(rc.lru)
}

// Invalidate clears every cached report.
func (rc *ReportCache) Invalidate() {
	if rc == nil {
		return
	}
	rc.lru.InvalidateAll()
}
