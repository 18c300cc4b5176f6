// Package catalog loads the opportunity catalog from files and serves the
// active catalog through the cache.
package catalog

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// File is the on-disk catalog format.
type File struct {
	Opportunities []Entry `yaml:"opportunities"`
}

// Entry is one catalog definition as written in a catalog file. Amounts are
// kept as text so they parse exactly.
type Entry struct {
	ID              string `yaml:"id"`
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	Category        string `yaml:"category"`
	MinAmount       string `yaml:"min_amount"`
	MaxAmount       string `yaml:"max_amount"`
	RequestTemplate string `yaml:"request_template"`
	Active          *bool  `yaml:"active"`
}

// LoadFile reads a catalog file from disk.
func LoadFile(path string) ([]domain.OpportunityDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read catalog %s", path)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog %s", path)
	}
	return defs, nil
}

// Parse decodes a catalog document. Entries default to active; categories
// are normalized and unknown ones are rejected.
func Parse(data []byte) ([]domain.OpportunityDefinition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse catalog")
	}

	defs := make([]domain.OpportunityDefinition, 0, len(f.Opportunities))
	seen := make(map[string]bool, len(f.Opportunities))
	for i, e := range f.Opportunities {
		def, err := e.definition()
		if err != nil {
			return nil, eris.Wrapf(err, "entry %d", i)
		}
		if seen[def.ID] {
			return nil, eris.Errorf("entry %d: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true
		defs = append(defs, def)
	}
	return defs, nil
}

func (e Entry) definition() (domain.OpportunityDefinition, error) {
	def := domain.OpportunityDefinition{
		ID:              strings.TrimSpace(e.ID),
		Title:           e.Title,
		Description:     e.Description,
		Category:        domain.Category(strings.ToLower(strings.TrimSpace(e.Category))),
		RequestTemplate: e.RequestTemplate,
		Active:          e.Active == nil || *e.Active,
	}
	if def.ID == "" {
		return def, eris.New("id is required")
	}
	if !def.Category.Known() {
		return def, eris.Errorf("%s: unknown category %q", def.ID, e.Category)
	}

	var err error
	if def.MinAmount, err = parseAmount(e.MinAmount); err != nil {
		return def, eris.Wrapf(err, "%s: min_amount", def.ID)
	}
	if def.MaxAmount, err = parseAmount(e.MaxAmount); err != nil {
		return def, eris.Wrapf(err, "%s: max_amount", def.ID)
	}
	if def.MinAmount.GreaterThan(def.MaxAmount) {
		return def, eris.Errorf("%s: min_amount exceeds max_amount", def.ID)
	}
	return def, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, eris.New("must not be negative")
	}
	return d, nil
}

// Store is the repository surface the loader needs.
type Store interface {
	ListOpportunities(ctx context.Context, activeOnly bool) ([]*domain.OpportunityDefinition, error)
}

// Loader serves the active catalog cache-aside. A nil cache always reads
// the store.
type Loader struct {
	store  Store
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewLoader creates a catalog loader.
func NewLoader(store Store, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Loader {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Active returns the active catalog in catalog order.
func (l *Loader) Active(ctx context.Context) ([]domain.OpportunityDefinition, error) {
	if l.cache != nil {
		cached, err := l.cache.GetCatalog(ctx)
		if err != nil {
			l.logger.WarnContext(ctx, "catalog cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	rows, err := l.store.ListOpportunities(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "list active opportunities")
	}
	catalog := make([]domain.OpportunityDefinition, 0, len(rows))
	for _, o := range rows {
		catalog = append(catalog, *o)
	}

	if l.cache != nil {
		if err := l.cache.SetCatalog(ctx, catalog, l.ttl); err != nil {
			l.logger.WarnContext(ctx, "catalog cache write failed", "error", err)
		}
	}
	return catalog, nil
}

// Invalidate drops the cached catalog after a catalog write.
func (l *Loader) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateCatalog(ctx); err != nil {
		l.logger.WarnContext(ctx, "catalog cache invalidation failed", "error", err)
	}
}
