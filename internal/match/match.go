// Package match turns category scores into concrete catalog matches.
package match

import (
	"github.com/shopspring/decimal"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// Opportunities returns one match per active catalog entry whose category
// applies, in catalog order. The amount is the category's literal estimate
// when it has one, else the floor of the catalog range midpoint.
func Opportunities(scores map[domain.Category]domain.CategoryScore, catalog []domain.OpportunityDefinition) []domain.MatchedOpportunity {
	matches := make([]domain.MatchedOpportunity, 0)
	for i := range catalog {
		def := &catalog[i]
		if !def.Active {
			continue
		}

		category := domain.ParseCategory(string(def.Category))
		score, ok := scores[category]
		if !ok || !score.Applies {
			continue
		}

		matches = append(matches, domain.MatchedOpportunity{
			OpportunityID:   def.ID,
			Category:        category,
			EstimatedAmount: amountFor(score, def),
		})
	}
	return matches
}

// Total sums the estimated amounts of matches.
func Total(matches []domain.MatchedOpportunity) decimal.Decimal {
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.EstimatedAmount)
	}
	return total
}

func amountFor(score domain.CategoryScore, def *domain.OpportunityDefinition) decimal.Decimal {
	if score.EstimatedAmount != nil {
		return *score.EstimatedAmount
	}
	return def.Midpoint()
}
