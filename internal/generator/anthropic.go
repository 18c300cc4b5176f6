package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const systemPrompt = `Sei un assistente che redige richieste di rimborso e reclami per consumatori italiani.
Ricevi una bozza e i dati dell'utente. Restituisci solo il testo finale della richiesta, in italiano,
con tono formale. Non inventare dati: lascia tra parentesi quadre i campi mancanti.`

// Messenger sends one prompt to a chat model and returns its text.
type Messenger interface {
	CreateMessage(ctx context.Context, system, prompt string) (string, error)
}

type sdkMessenger struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewMessenger creates a Messenger backed by the Anthropic Messages API.
func NewMessenger(apiKey, model string, maxTokens int64) Messenger {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &sdkMessenger{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (m *sdkMessenger) CreateMessage(ctx context.Context, system, prompt string) (string, error) {
	msg, err := m.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: m.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// AnthropicGenerator polishes the rendered template with a language model.
// Calls are throttled by a token bucket shared across requests.
type AnthropicGenerator struct {
	messenger Messenger
	limiter   *rate.Limiter
}

// NewAnthropicGenerator creates a generator allowing rps calls per second.
func NewAnthropicGenerator(m Messenger, rps float64, burst int) *AnthropicGenerator {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &AnthropicGenerator{
		messenger: m,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Generate renders the template and asks the model to finalize it.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.Opportunity == nil || req.Opportunity.RequestTemplate == "" {
		return "", ErrNoTemplate
	}
	draft := Render(req.Opportunity.RequestTemplate, req.Facts)

	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "generator: rate limit wait")
	}

	text, err := g.messenger.CreateMessage(ctx, systemPrompt, buildPrompt(req, draft))
	if err != nil {
		return "", eris.Wrapf(err, "generator: opportunity %s", req.Opportunity.ID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.Errorf("generator: empty response for opportunity %s", req.Opportunity.ID)
	}
	return text, nil
}

func buildPrompt(req Request, draft string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Opportunità: %s (%s)\n", req.Opportunity.Title, req.Opportunity.Category)

	keys := make([]string, 0, len(req.Facts))
	for k := range req.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("\nDati dell'utente:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, req.Facts[k])
	}

	b.WriteString("\nBozza:\n")
	b.WriteString(draft)
	return b.String()
}
