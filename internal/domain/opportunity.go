package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityDefinition is a catalog entry describing a refund or
// compensation scheme. The engine only reads definitions.
type OpportunityDefinition struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Category    Category        `json:"category"`
	MinAmount   decimal.Decimal `json:"minAmount"`
	MaxAmount   decimal.Decimal `json:"maxAmount"`

	// RequestTemplate is the complaint/claim letter skeleton with {{field}}
	// placeholders filled from user facts.
	RequestTemplate string `json:"requestTemplate,omitempty"`

	// Active definitions are the only ones considered by the matcher.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Midpoint returns floor((MinAmount + MaxAmount) / 2).
func (o *OpportunityDefinition) Midpoint() decimal.Decimal {
	return o.MinAmount.Add(o.MaxAmount).Div(decimal.NewFromInt(2)).Floor()
}
