package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Answers maps a quiz question id to the value of the selected option.
type Answers map[string]string

// Get returns the answer for a question and whether it was given.
func (a Answers) Get(questionID string) (string, bool) {
	v, ok := a[questionID]
	return v, ok
}

// CategoryScore is the scorer's verdict for one category.
type CategoryScore struct {
	Category    Category `json:"category"`
	TotalPoints int      `json:"totalPoints"`
	Applies     bool     `json:"applies"`

	// EstimatedAmount is the category-specific literal estimate, when the
	// category defines one and applies. Nil means "use the catalog midpoint".
	EstimatedAmount *decimal.Decimal `json:"estimatedAmount,omitempty"`
}

// MatchedOpportunity is one catalog entry that applies to the user.
type MatchedOpportunity struct {
	OpportunityID   string          `json:"opportunityId"`
	Category        Category        `json:"category"`
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
}

// QuizEvaluation is the persisted outcome of one quiz submission.
type QuizEvaluation struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"userId"`
	Timestamp      time.Time                  `json:"timestamp"`
	Answers        Answers                    `json:"answers"`
	Scores         map[Category]CategoryScore `json:"scores"`
	Matches        []MatchedOpportunity       `json:"matches"`
	TotalEstimated decimal.Decimal            `json:"totalEstimated"`
	Metadata       EvaluationMetadata         `json:"metadata"`
}

// AppliedCategories returns the categories that apply, in canonical order.
func (e *QuizEvaluation) AppliedCategories() []Category {
	var out []Category
	for _, c := range ScoredCategories() {
		if s, ok := e.Scores[c]; ok && s.Applies {
			out = append(out, c)
		}
	}
	return out
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId"`
	NormalizeMs    int64  `json:"normalizeMs"`
	ScoreMs        int64  `json:"scoreMs"`
	MatchMs        int64  `json:"matchMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	CatalogSize    int    `json:"catalogSize"`
	DroppedAnswers int    `json:"droppedAnswers"`
	EngineVersion  string `json:"engineVersion"`
}
