package calculations

import (
	"context"
	"strconv"

	"github.com/portagency/pdadesk/internal/platform/cache"
)

// RuleCache keeps each port's rules in Redis. Keys are versioned per company so
// a single bump invalidates every port of that company.
type RuleCache struct {
	store *cache.Versioned
}

// NewRuleCache wraps a versioned cache. A nil store disables caching.
func NewRuleCache(store *cache.Versioned) *RuleCache {
	return &RuleCache{store: store}
}

func companyScope(companyID int64) string {
	return "company:" + strconv.FormatInt(companyID, 10)
}

// Port returns the cached rules of a port, loading them on a miss. Cache
// failures fall through to load.
func (c *RuleCache) Port(ctx context.Context, companyID, portID int64, load func(context.Context) ([]Calculation, error)) ([]Calculation, error) {
	var store *cache.Versioned
	if c != nil {
		store = c.store
	}
	key, err := store.BuildKey(ctx, companyScope(companyID), "port", strconv.FormatInt(portID, 10))
	if err != nil {
		return load(ctx)
	}
	var out []Calculation
	err = store.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return load(ctx)
	}
	return out, nil
}

// Invalidate drops every cached rule set of a company.
func (c *RuleCache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil {
		return nil
	}
	return c.store.Bump(ctx, companyScope(companyID))
}
