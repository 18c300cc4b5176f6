// Package generator produces complaint and claim request texts from an
// opportunity template and the user's facts.
package generator

import (
	"context"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// ErrNoTemplate is returned when the opportunity has no request template.
var ErrNoTemplate = eris.New("generator: opportunity has no request template")

// Request is one generation request.
type Request struct {
	UserID      string
	Opportunity *domain.OpportunityDefinition
	Facts       map[string]string
}

// Generator turns a request into request text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render substitutes {{field}} placeholders with facts. Unknown or empty
// fields stay visible as [field] so the user can fill them in.
func Render(template string, facts map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		field := placeholder.FindStringSubmatch(m)[1]
		if v := facts[field]; v != "" {
			return v
		}
		return "[" + field + "]"
	})
}

// Placeholders lists the distinct fields a template references, sorted.
func Placeholders(template string) []string {
	seen := map[string]bool{}
	var fields []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			fields = append(fields, m[1])
		}
	}
	sort.Strings(fields)
	return fields
}

// TemplateGenerator returns the rendered template as is.
type TemplateGenerator struct{}

// Generate renders the opportunity template.
func (TemplateGenerator) Generate(_ context.Context, req Request) (string, error) {
	if req.Opportunity == nil || req.Opportunity.RequestTemplate == "" {
		return "", ErrNoTemplate
	}
	return Render(req.Opportunity.RequestTemplate, req.Facts), nil
}

// New builds the generator selected by cfg.
func New(cfg domain.GeneratorConfig) (Generator, error) {
	switch cfg.Type {
	case "", "template":
		return TemplateGenerator{}, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, eris.New("generator: anthropic api key is required")
		}
		return NewAnthropicGenerator(NewMessenger(cfg.APIKey, cfg.Model, int64(cfg.MaxTokens)), cfg.RPS, cfg.Burst), nil
	default:
		return nil, eris.Errorf("generator: unsupported type %q", cfg.Type)
	}
}
