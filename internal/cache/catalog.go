package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// ErrScopeRequired is returned when a key is used without a scope.
var ErrScopeRequired = eris.New("cache scope is required")

const (
	catalogKey    = "active"
	counterPrefix = "counter:"
)

// store is the byte-level surface every cache implementation shares.
type store interface {
	Get(ctx context.Context, scope string, key string) ([]byte, error)
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, scope string, key string) error
}

func getCatalog(ctx context.Context, s store) ([]domain.OpportunityDefinition, error) {
	data, err := s.Get(ctx, domain.CatalogScope, catalogKey)
	if err != nil || data == nil {
		return nil, err
	}

	var catalog []domain.OpportunityDefinition
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, eris.Wrap(err, "decode cached catalog")
	}
	return catalog, nil
}

func setCatalog(ctx context.Context, s store, catalog []domain.OpportunityDefinition, ttl time.Duration) error {
	if catalog == nil {
		catalog = []domain.OpportunityDefinition{}
	}
	data, err := json.Marshal(catalog)
	if err != nil {
		return eris.Wrap(err, "encode catalog")
	}
	return s.Set(ctx, domain.CatalogScope, catalogKey, data, ttl)
}

func invalidateCatalog(ctx context.Context, s store) error {
	return s.Delete(ctx, domain.CatalogScope, catalogKey)
}
