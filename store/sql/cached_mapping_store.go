package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-marketsync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const mappingCacheKeyPrefix = "go-marketsync::product_mapping::v1"

// CachedMappingStore fronts a MappingStore with a read-through cache.
// Mapping rows change rarely relative to webhook volume, so every stock
// and price handler would otherwise hit the mappings table per event.
type CachedMappingStore struct {
	base  core.MappingStore
	cache repositorycache.CacheService
}

var _ core.MappingStore = (*CachedMappingStore)(nil)

func NewCachedMappingStore(base core.MappingStore, cacheService repositorycache.CacheService) (*CachedMappingStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base mapping store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: mapping cache service is required")
	}
	return &CachedMappingStore{base: base, cache: cacheService}, nil
}

// MappingCacheKey returns the deterministic cache key contract for mapping
// reads: go-marketsync::product_mapping::v1::<marketplace>::<offer_id> with
// each segment URL-path escaped.
func MappingCacheKey(marketplace core.Marketplace, offerID string) (string, error) {
	mp := strings.TrimSpace(string(marketplace))
	offer := strings.TrimSpace(offerID)
	if mp == "" {
		return "", fmt.Errorf("sqlstore: marketplace is required for mapping cache key")
	}
	if offer == "" {
		return "", fmt.Errorf("sqlstore: offer id is required for mapping cache key")
	}
	segments := []string{url.PathEscape(mp), url.PathEscape(offer)}
	return strings.Join(append([]string{mappingCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedMappingStore) ResolveMapping(ctx context.Context, marketplace core.Marketplace, offerID string) (core.ProductMapping, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ProductMapping{}, fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	cacheKey, err := MappingCacheKey(marketplace, offerID)
	if err != nil {
		return core.ProductMapping{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ProductMapping, error) {
		return s.base.ResolveMapping(ctx, marketplace, offerID)
	})
}

// InvalidateMapping drops the cached entry for one offer, used after
// out-of-band mapping writes.
func (s *CachedMappingStore) InvalidateMapping(ctx context.Context, marketplace core.Marketplace, offerID string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached mapping store is not configured")
	}
	cacheKey, err := MappingCacheKey(marketplace, offerID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
