package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimborsami/rimborsami/internal/domain"
)

func def(id string, c domain.Category, min, max int64) domain.OpportunityDefinition {
	return domain.OpportunityDefinition{
		ID:        id,
		Category:  c,
		MinAmount: decimal.NewFromInt(min),
		MaxAmount: decimal.NewFromInt(max),
		Active:    true,
	}
}

func applies(c domain.Category) domain.CategoryScore {
	return domain.CategoryScore{Category: c, TotalPoints: 100, Applies: true}
}

func TestOpportunitiesEmpty(t *testing.T) {
	got := Opportunities(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	scores := map[domain.Category]domain.CategoryScore{domain.CategoryBank: {Category: domain.CategoryBank}}
	assert.Empty(t, Opportunities(scores, []domain.OpportunityDefinition{def("b1", domain.CategoryBank, 100, 300)}))
}

func TestOpportunitiesMidpoint(t *testing.T) {
	scores := map[domain.Category]domain.CategoryScore{domain.CategoryBank: applies(domain.CategoryBank)}
	catalog := []domain.OpportunityDefinition{def("bank-fees", domain.CategoryBank, 100, 301)}

	got := Opportunities(scores, catalog)
	require.Len(t, got, 1)
	assert.Equal(t, "bank-fees", got[0].OpportunityID)
	assert.Equal(t, domain.CategoryBank, got[0].Category)
	assert.Equal(t, "200", got[0].EstimatedAmount.String())
}

func TestOpportunitiesFlightLiteral(t *testing.T) {
	estimate := decimal.NewFromInt(600)
	scores := map[domain.Category]domain.CategoryScore{
		domain.CategoryFlight: {Category: domain.CategoryFlight, TotalPoints: 500, Applies: true, EstimatedAmount: &estimate},
	}
	catalog := []domain.OpportunityDefinition{
		def("eu261-delay", domain.CategoryFlight, 250, 600),
		def("eu261-cancel", domain.CategoryFlight, 250, 600),
	}

	got := Opportunities(scores, catalog)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.True(t, m.EstimatedAmount.Equal(estimate))
	}
	assert.Equal(t, "1200", Total(got).String())
}

func TestOpportunitiesKeepsCatalogOrderAndSkipsInactive(t *testing.T) {
	scores := map[domain.Category]domain.CategoryScore{
		domain.CategoryBank:    applies(domain.CategoryBank),
		domain.CategoryTelecom: applies(domain.CategoryTelecom),
	}
	inactive := def("bank-old", domain.CategoryBank, 10, 20)
	inactive.Active = false
	catalog := []domain.OpportunityDefinition{
		def("telecom-1", domain.CategoryTelecom, 50, 150),
		inactive,
		def("energy-1", domain.CategoryEnergy, 100, 200),
		def("bank-1", domain.CategoryBank, 100, 200),
	}

	got := Opportunities(scores, catalog)
	require.Len(t, got, 2)
	assert.Equal(t, "telecom-1", got[0].OpportunityID)
	assert.Equal(t, "bank-1", got[1].OpportunityID)
}

func TestOpportunitiesUnknownCategoryNeverMatches(t *testing.T) {
	scores := map[domain.Category]domain.CategoryScore{}
	for _, c := range domain.ScoredCategories() {
		scores[c] = applies(c)
	}
	catalog := []domain.OpportunityDefinition{
		def("x", domain.Category("pets"), 10, 20),
		def("y", domain.CategoryOther, 10, 20),
	}
	assert.Empty(t, Opportunities(scores, catalog))
}

func TestOpportunitiesNormalizesCategoryLabel(t *testing.T) {
	scores := map[domain.Category]domain.CategoryScore{domain.CategoryEnergy: applies(domain.CategoryEnergy)}
	catalog := []domain.OpportunityDefinition{def("e", domain.Category(" Energy "), 0, 99)}

	got := Opportunities(scores, catalog)
	require.Len(t, got, 1)
	assert.Equal(t, domain.CategoryEnergy, got[0].Category)
	assert.Equal(t, "49", got[0].EstimatedAmount.String())
}

func TestOpportunitiesFractionalMidpointFloors(t *testing.T) {
	scores := map[domain.Category]domain.CategoryScore{domain.CategoryTech: applies(domain.CategoryTech)}
	d := def("t", domain.CategoryTech, 0, 0)
	d.MinAmount = decimal.RequireFromString("10.50")
	d.MaxAmount = decimal.RequireFromString("20.25")

	got := Opportunities(scores, []domain.OpportunityDefinition{d})
	require.Len(t, got, 1)
	assert.Equal(t, "15", got[0].EstimatedAmount.String())
}
