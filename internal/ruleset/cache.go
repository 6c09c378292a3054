package ruleset

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/avoscheidt/fiskal/internal/tax"
)

// CachedSource fronts a slower Source (e.g. a database-backed one) with a TTL
// cache. Published tables are immutable, so staleness is bounded only by new
// publications becoming visible after the TTL.
type CachedSource struct {
	src   Source
	cache *gocache.Cache
}

// NewCachedSource wraps src with a cache using the given TTL.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachedSource) Lookup(j tax.Jurisdiction, year int) (RuleTable, error) {
	key := fmt.Sprintf("table/%s/%d", j, year)
	if v, ok := c.cache.Get(key); ok {
		return v.(RuleTable), nil
	}
	t, err := c.src.Lookup(j, year)
	if err != nil {
		return RuleTable{}, err
	}
	c.cache.Set(key, t, gocache.DefaultExpiration)
	return t, nil
}

func (c *CachedSource) LookupTreaty(source, residence tax.Jurisdiction, category tax.IncomeCategory) (TreatyRule, error) {
	key := fmt.Sprintf("treaty/%s/%s/%s", source, residence, category)
	if v, ok := c.cache.Get(key); ok {
		return v.(TreatyRule), nil
	}
	tr, err := c.src.LookupTreaty(source, residence, category)
	if err != nil {
		return TreatyRule{}, err
	}
	c.cache.Set(key, tr, gocache.DefaultExpiration)
	return tr, nil
}
