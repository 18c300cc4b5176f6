// Package risk projects parsed-document analyses onto a unified risk
// assessment and a catalog document category.
package risk

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// AnomalyWeight is the score contributed by each anomaly when the document
// carries no explicit risk score. The derived score saturates at 100.
const AnomalyWeight = 15

// Score sources reported in RiskAssessment.ScoreSource.
const (
	SourceBank        = "bank"
	SourceCondominium = "condominium"
	SourceAnomalies   = "anomalies"
	SourceNone        = "none"
)

// Assess computes the unified risk assessment of a document analysis.
// A nil analysis yields score 0, level low and no anomalies.
func Assess(a *domain.DocumentAnalysis) domain.RiskAssessment {
	if a == nil {
		return domain.RiskAssessment{
			Level:           domain.RiskLow,
			EstimatedRefund: decimal.Zero,
			ScoreSource:     SourceNone,
		}
	}

	count := CountAnomalies(a)
	score, source := resolveScore(a, count)
	derived := LevelForScore(score)

	out := domain.RiskAssessment{
		Score:           score,
		Level:           derived,
		AnomalyCount:    count,
		EstimatedRefund: estimatedRefund(a),
		ScoreSource:     source,
	}
	if explicit, ok := explicitLevel(a); ok {
		out.Level = explicit
		out.LevelMismatch = explicit != derived
	}
	return out
}

// LevelForScore buckets a score: up to 25 low, up to 50 medium, up to 75
// high, above 75 critical.
func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score <= 25:
		return domain.RiskLow
	case score <= 50:
		return domain.RiskMedium
	case score <= 75:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

// ParseLevel reads a risk level label case-insensitively.
func ParseLevel(s string) (domain.RiskLevel, bool) {
	switch l := domain.RiskLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical:
		return l, true
	}
	return "", false
}

// CountAnomalies sums the findings across every list the analysis carries.
// Bank anomalies come from anomalies_found, or anomalies when the former
// is absent.
func CountAnomalies(a *domain.DocumentAnalysis) int {
	if a == nil {
		return 0
	}
	n := len(a.PotentialIssues)
	if b := a.Bank; b != nil {
		if b.AnomaliesFound != nil {
			n += len(b.AnomaliesFound)
		} else {
			n += len(b.Anomalies)
		}
	}
	if c := a.Condominium; c != nil {
		n += len(c.Irregularities)
	}
	if w := a.Work; w != nil {
		n += len(w.Irregularities)
	}
	if au := a.Auto; au != nil {
		n += len(au.Irregularities)
	}
	return n
}

// resolveScore picks the first explicit score (bank, then condominium) and
// otherwise derives one from the anomaly count.
func resolveScore(a *domain.DocumentAnalysis, anomalies int) (int, string) {
	if a.Bank != nil && a.Bank.RiskScore != nil {
		return clamp(*a.Bank.RiskScore), SourceBank
	}
	if a.Condominium != nil && a.Condominium.RiskScore != nil {
		return clamp(*a.Condominium.RiskScore), SourceCondominium
	}
	if anomalies == 0 {
		return 0, SourceNone
	}
	return min(100, anomalies*AnomalyWeight), SourceAnomalies
}

// clamp rounds half-up and bounds the score to [0, 100].
func clamp(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= 0:
		return 0
	case v >= 100:
		return 100
	}
	return int(math.Floor(v + 0.5))
}

func explicitLevel(a *domain.DocumentAnalysis) (domain.RiskLevel, bool) {
	if a.Bank != nil {
		if l, ok := ParseLevel(a.Bank.RiskLevel); ok {
			return l, true
		}
	}
	if a.Condominium != nil {
		if l, ok := ParseLevel(a.Condominium.RiskLevel); ok {
			return l, true
		}
	}
	return "", false
}

func estimatedRefund(a *domain.DocumentAnalysis) decimal.Decimal {
	if a.Bank == nil || a.Bank.EstimatedRefund == nil {
		return decimal.Zero
	}
	if a.Bank.EstimatedRefund.IsNegative() {
		return decimal.Zero
	}
	return *a.Bank.EstimatedRefund
}
