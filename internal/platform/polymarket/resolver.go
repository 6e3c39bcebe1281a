package polymarket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/engine"
)

// defaultTokenTTL bounds how long a resolved token id is trusted. Token ids
// never change for a market, so the TTL only limits cache growth.
const defaultTokenTTL = 24 * time.Hour

// CachedResolver resolves outcome token ids via the Gamma API, memoizing
// results in a TokenCache so repeated trades on the same market skip the
// HTTP round trip.
type CachedResolver struct {
	gamma  *GammaClient
	cache  domain.TokenCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver creates a resolver backed by gamma and cache.
func NewCachedResolver(gamma *GammaClient, cache domain.TokenCache, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		gamma:  gamma,
		cache:  cache,
		ttl:    defaultTokenTTL,
		logger: logger.With(slog.String("component", "token_resolver")),
	}
}

// ResolveTokenID returns the CLOB token id for (marketID, outcomeIndex),
// consulting the cache first. Cache write failures are logged and ignored;
// the resolved id is still returned.
func (r *CachedResolver) ResolveTokenID(ctx context.Context, marketID string, outcomeIndex int) (string, error) {
	tokenID, err := r.cache.Get(ctx, marketID, outcomeIndex)
	if err == nil {
		return tokenID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("token cache read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	tokenID, err = r.gamma.TokenID(ctx, marketID, outcomeIndex)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, marketID, outcomeIndex, tokenID, r.ttl); err != nil {
		r.logger.Warn("token cache write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	return tokenID, nil
}

var _ engine.TokenResolver = (*CachedResolver)(nil)
