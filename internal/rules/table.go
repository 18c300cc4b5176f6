package rules

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/rimborsami/rimborsami/internal/domain"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// DefaultTable returns the embedded scoring table.
func DefaultTable() (*domain.RuleTable, error) {
	return ParseTable(defaultRulesYAML)
}

// LoadTable reads a YAML rule table from path. An empty path returns the
// embedded default table.
func LoadTable(path string) (*domain.RuleTable, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return ParseTable(data)
}

// ParseTable decodes and structurally validates a YAML rule table.
// Expressions are checked when the table is loaded into an Engine.
func ParseTable(data []byte) (*domain.RuleTable, error) {
	var table domain.RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "rules: decode table")
	}
	if err := ValidateTable(&table); err != nil {
		return nil, err
	}
	return &table, nil
}

// ValidateTable checks the table structure: known and unique categories,
// complete rules with non-negative points, and every question owned by
// exactly one category.
func ValidateTable(table *domain.RuleTable) error {
	if table == nil {
		return eris.New("rules: table is required")
	}
	if len(table.Categories) == 0 {
		return eris.New("rules: table has no categories")
	}

	seen := make(map[domain.Category]bool, len(table.Categories))
	owner := make(map[string]domain.Category)
	for i, cr := range table.Categories {
		if !cr.Category.Known() || cr.Category == domain.CategoryOther {
			return eris.Errorf("rules: categories[%d]: unknown category %q", i, cr.Category)
		}
		if seen[cr.Category] {
			return eris.Errorf("rules: duplicate category %q", cr.Category)
		}
		seen[cr.Category] = true

		if cr.Applies == "" {
			return eris.Errorf("rules: %s: applies predicate is required", cr.Category)
		}
		for j, r := range cr.Rules {
			if r.Question == "" || r.Answer == "" {
				return eris.Errorf("rules: %s: rules[%d]: question and answer are required", cr.Category, j)
			}
			if r.Points < 0 {
				return eris.Errorf("rules: %s: rules[%d]: points must not be negative", cr.Category, j)
			}
			if prev, ok := owner[r.Question]; ok && prev != cr.Category {
				return eris.Errorf("rules: question %q used by both %s and %s", r.Question, prev, cr.Category)
			}
			owner[r.Question] = cr.Category
		}
	}
	return nil
}

// Questions returns the question ids referenced by the table, keyed to the
// category that owns them.
func Questions(table *domain.RuleTable) domain.QuestionSet {
	qs := make(domain.QuestionSet)
	if table == nil {
		return qs
	}
	for _, cr := range table.Categories {
		for _, r := range cr.Rules {
			qs[r.Question] = cr.Category
		}
	}
	return qs
}
