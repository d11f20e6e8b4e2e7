package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/merchstack/tierprice-service/pkg/db"
	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
	"github.com/merchstack/tierprice-service/pkg/logger"
	redispkg "github.com/merchstack/tierprice-service/pkg/redis"
)

// Locator resolves SKUs to the product entity identifiers sharing them,
// read-through cached. The identifier set of a SKU is small and changes
// rarely, so the cache stores the whole set as a JSON array under one key per
// SKU. Unknown SKUs are cached too; probing for missing products is a common
// failure mode upstream.
type Locator struct {
	client *db.Client
	cache  redispkg.LookupCache
	ttl    time.Duration
	logg   *logger.Logger
}

// NewLocator builds a locator. A nil cache disables caching entirely.
func NewLocator(client *db.Client, cache redispkg.LookupCache, ttl time.Duration, logg *logger.Logger) (*Locator, error) {
	if client == nil {
		return nil, errors.New("db client is required")
	}
	return &Locator{client: client, cache: cache, ttl: ttl, logg: logg}, nil
}

// Resolve returns an entry for every requested SKU. A SKU with no catalog
// entity maps to an empty identifier set, never a missing key.
func (l *Locator) Resolve(ctx context.Context, skus []string) (map[string][]int64, error) {
	out := make(map[string][]int64, len(skus))

	var missing []string
	for _, sku := range skus {
		ids, ok := l.cachedIDs(ctx, sku)
		if !ok {
			missing = append(missing, sku)
			continue
		}
		out[sku] = ids
	}
	if len(missing) == 0 {
		return out, nil
	}

	var entities []models.ProductEntity
	err := l.client.DB().
		WithContext(ctx).
		Where("sku IN ?", missing).
		Order("entity_id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve skus")
	}

	grouped := make(map[string][]int64, len(missing))
	for _, entity := range entities {
		grouped[entity.SKU] = append(grouped[entity.SKU], entity.EntityID)
	}
	for _, sku := range missing {
		ids := grouped[sku]
		if ids == nil {
			ids = []int64{}
		}
		out[sku] = ids
		l.cacheIDs(ctx, sku, ids)
	}
	return out, nil
}

func (l *Locator) cachedIDs(ctx context.Context, sku string) ([]int64, bool) {
	if l.cache == nil {
		return nil, false
	}
	raw, err := l.cache.Get(ctx, l.cache.LookupKey(sku))
	if err != nil {
		if !errors.Is(err, redispkg.ErrCacheMiss) && l.logg != nil {
			l.logg.Warn(l.logg.WithField(ctx, "sku", sku), "sku lookup cache read failed")
		}
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		// Stale or corrupt entry; fall back to the database.
		return nil, false
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, true
}

// cacheIDs is best effort. A failed write costs one extra database round trip
// on the next resolve, nothing more.
func (l *Locator) cacheIDs(ctx context.Context, sku string, ids []int64) {
	if l.cache == nil {
		return
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, l.cache.LookupKey(sku), payload, l.ttl); err != nil && l.logg != nil {
		l.logg.Warn(l.logg.WithField(ctx, "sku", sku), "sku lookup cache write failed")
	}
}
