package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corvalis/riskbot/internal/domain"
)

// DefaultMaxAge is the staleness bound applied when none is configured.
const DefaultMaxAge = 2 * time.Minute

// CachedPriceFeed implements domain.PriceFeed over a PriceCache. A quote that
// is missing, or older than MaxAge at read time, is reported as
// domain.ErrStalePrice so the engine skips the position instead of acting on
// a dead number.
type CachedPriceFeed struct {
	cache  domain.PriceCache
	maxAge time.Duration
	now    func() time.Time
}

// NewCachedPriceFeed creates a feed with the given staleness bound. A zero or
// negative maxAge falls back to DefaultMaxAge.
func NewCachedPriceFeed(cache domain.PriceCache, maxAge time.Duration) *CachedPriceFeed {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &CachedPriceFeed{
		cache:  cache,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// GetCurrentPrice returns the cached quote for the symbol. The venue argument
// is accepted for interface parity; quotes are keyed by symbol only.
func (f *CachedPriceFeed) GetCurrentPrice(ctx context.Context, symbol, venue string) (float64, time.Time, error) {
	price, ts, err := f.cache.GetPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, time.Time{}, fmt.Errorf("feed: no quote for %s: %w", symbol, domain.ErrStalePrice)
		}
		return 0, time.Time{}, fmt.Errorf("feed: get price %s: %w", symbol, err)
	}

	if age := f.now().Sub(ts); age > f.maxAge {
		return 0, time.Time{}, fmt.Errorf("feed: quote for %s is %s old: %w", symbol, age.Round(time.Second), domain.ErrStalePrice)
	}

	return price, ts, nil
}

// Compile-time interface check.
var _ domain.PriceFeed = (*CachedPriceFeed)(nil)
