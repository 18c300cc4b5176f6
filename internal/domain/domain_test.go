package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryFlight, ParseCategory("flight"))
	assert.Equal(t, CategoryClassAction, ParseCategory(" Class_Action "))
	assert.Equal(t, CategoryOther, ParseCategory("other"))
	assert.Equal(t, CategoryOther, ParseCategory("pets"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestScoredCategories(t *testing.T) {
	cats := ScoredCategories()
	require.Len(t, cats, 11)
	assert.Equal(t, CategoryFlight, cats[0])
	assert.Equal(t, CategoryClassAction, cats[10])
	assert.NotContains(t, cats, CategoryOther)

	// Callers get a copy.
	cats[0] = CategoryOther
	assert.Equal(t, CategoryFlight, ScoredCategories()[0])
}

func TestDocumentCategoryLabel(t *testing.T) {
	assert.Equal(t, "Banca", DocumentBank.Label())
	assert.Equal(t, "Condominio", DocumentCondominium.Label())
	assert.Equal(t, "Altro", DocumentCategory("nope").Label())
}

func TestFindingAcceptsStringOrObject(t *testing.T) {
	raw := `["commissione non dovuta", {"type": "fee", "description": "doppio addebito", "amount": 12.5}, null]`
	var findings []Finding
	require.NoError(t, json.Unmarshal([]byte(raw), &findings))
	require.Len(t, findings, 3)

	assert.Equal(t, "commissione non dovuta", findings[0].Description)
	assert.Equal(t, "fee", findings[1].Type)
	require.NotNil(t, findings[1].Amount)
	assert.True(t, decimal.RequireFromString("12.5").Equal(*findings[1].Amount))
	assert.Equal(t, Finding{}, findings[2])
}

func TestFindingAcceptsAnyValue(t *testing.T) {
	raw := `[42, true, ["x"], {"type": 7, "description": "spese", "amount": "n/a"}]`
	var findings []Finding
	require.NoError(t, json.Unmarshal([]byte(raw), &findings))
	require.Len(t, findings, 4)

	assert.Equal(t, Finding{}, findings[0])
	assert.Equal(t, Finding{}, findings[1])
	assert.Equal(t, Finding{}, findings[2])
	assert.Equal(t, Finding{Description: "spese"}, findings[3])
}

func TestDocumentAnalysisLenientFields(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		assert func(t *testing.T, a DocumentAnalysis)
	}{
		{
			name: "numbers in finding lists",
			raw:  `{"potential_issues": [1, 2], "bank_analysis": {"anomalies_found": ["c"]}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				assert.Len(t, a.PotentialIssues, 2)
				require.NotNil(t, a.Bank)
				assert.Len(t, a.Bank.AnomaliesFound, 1)
			},
		},
		{
			name: "numeric string score",
			raw:  `{"bank_analysis": {"risk_score": " 82 "}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Bank)
				require.NotNil(t, a.Bank.RiskScore)
				assert.InDelta(t, 82.0, *a.Bank.RiskScore, 0.001)
			},
		},
		{
			name: "non-numeric score is absent",
			raw:  `{"condominium_analysis": {"risk_score": "alto", "risk_level": 3}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Condominium)
				assert.Nil(t, a.Condominium.RiskScore)
				assert.Empty(t, a.Condominium.RiskLevel)
			},
		},
		{
			name: "NaN string score is absent",
			raw:  `{"bank_analysis": {"risk_score": "NaN"}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Bank)
				assert.Nil(t, a.Bank.RiskScore)
			},
		},
		{
			name: "object in place of a list",
			raw:  `{"condominium_analysis": {"irregularities": {"a": 1}}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Condominium)
				assert.Nil(t, a.Condominium.Irregularities)
			},
		},
		{
			name: "nested array finding",
			raw:  `{"work_analysis": {"irregularities": [["x"]]}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Work)
				assert.Equal(t, []Finding{{}}, a.Work.Irregularities)
			},
		},
		{
			name: "empty list stays present",
			raw:  `{"bank_analysis": {"anomalies_found": [], "anomalies": ["y"]}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Bank)
				assert.NotNil(t, a.Bank.AnomaliesFound)
				assert.Empty(t, a.Bank.AnomaliesFound)
			},
		},
		{
			name: "variant of the wrong type is absent",
			raw:  `{"bank_analysis": "n/a", "auto_analysis": null, "document_type": 5}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				assert.Nil(t, a.Bank)
				assert.Nil(t, a.Auto)
				assert.Empty(t, a.DocumentType)
			},
		},
		{
			name: "refund as string",
			raw:  `{"bank_analysis": {"estimated_refund": "120.50"}}`,
			assert: func(t *testing.T, a DocumentAnalysis) {
				require.NotNil(t, a.Bank)
				require.NotNil(t, a.Bank.EstimatedRefund)
				assert.True(t, decimal.RequireFromString("120.5").Equal(*a.Bank.EstimatedRefund))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a DocumentAnalysis
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &a))
			tt.assert(t, a)
		})
	}
}

func TestDocumentAnalysisRequiresObject(t *testing.T) {
	var a DocumentAnalysis
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1, 2]`), &a), ErrAnalysisNotObject)
	assert.NoError(t, json.Unmarshal([]byte(`null`), &a))
}

func TestOpportunityMidpoint(t *testing.T) {
	o := OpportunityDefinition{MinAmount: decimal.NewFromInt(250), MaxAmount: decimal.NewFromInt(601)}
	assert.Equal(t, "425", o.Midpoint().String())
}

func TestAppliedCategories(t *testing.T) {
	e := QuizEvaluation{Scores: map[Category]CategoryScore{
		CategoryBank:   {Category: CategoryBank, Applies: true},
		CategoryFlight: {Category: CategoryFlight, Applies: true},
		CategoryTech:   {Category: CategoryTech},
	}}
	assert.Equal(t, []Category{CategoryFlight, CategoryBank}, e.AppliedCategories())
}
