package authz

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultDecisionTTL bounds how long a cached decision is reused.
const DefaultDecisionTTL = 10 * time.Second

type decision struct {
	allowed   bool
	expiresAt time.Time
}

// CachedAuthorizer memoizes another authorizer's decisions for a short
// TTL. Errors are never cached.
type CachedAuthorizer struct {
	inner Authorizer
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	decisions map[string]decision
}

// NewCachedAuthorizer wraps inner. A non-positive ttl uses DefaultDecisionTTL.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &CachedAuthorizer{inner: inner, ttl: ttl, now: time.Now, decisions: make(map[string]decision)}
}

// Authorize answers from the cache when it holds a live decision.
func (c *CachedAuthorizer) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	key := decisionKey(req)
	now := c.now()

	c.mu.Lock()
	d, ok := c.decisions[key]
	if ok && now.After(d.expiresAt) {
		delete(c.decisions, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return d.allowed, nil
	}

	allowed, err := c.inner.Authorize(ctx, req)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.decisions[key] = decision{allowed: allowed, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return allowed, nil
}

func decisionKey(req AuthzRequest) string {
	return strings.Join([]string{req.User, strings.Join(req.Groups, ","), req.Resource, req.Verb}, "|")
}
