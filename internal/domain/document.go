package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// DocumentAnalysis is the parsed-document payload produced by the upstream
// OCR/LLM pipeline. Each analysis variant is optional; a document usually
// carries exactly one of them, possibly alongside PotentialIssues.
type DocumentAnalysis struct {
	DocumentType    string    `json:"document_type,omitempty"`
	PotentialIssues []Finding `json:"potential_issues,omitempty"`

	Bank        *BankAnalysis        `json:"bank_analysis,omitempty"`
	Condominium *CondominiumAnalysis `json:"condominium_analysis,omitempty"`
	Work        *WorkAnalysis        `json:"work_analysis,omitempty"`
	Auto        *AutoAnalysis        `json:"auto_analysis,omitempty"`
}

// BankAnalysis is the bank statement variant.
type BankAnalysis struct {
	RiskScore       *float64         `json:"risk_score,omitempty"`
	RiskLevel       string           `json:"risk_level,omitempty"`
	AnomaliesFound  []Finding        `json:"anomalies_found,omitempty"`
	Anomalies       []Finding        `json:"anomalies,omitempty"`
	EstimatedRefund *decimal.Decimal `json:"estimated_refund,omitempty"`
}

// CondominiumAnalysis is the condominium statement variant.
type CondominiumAnalysis struct {
	RiskScore      *float64  `json:"risk_score,omitempty"`
	RiskLevel      string    `json:"risk_level,omitempty"`
	Irregularities []Finding `json:"irregularities,omitempty"`
}

// WorkAnalysis is the payslip / employment document variant.
type WorkAnalysis struct {
	Irregularities []Finding `json:"irregularities,omitempty"`
}

// AutoAnalysis is the vehicle document variant.
type AutoAnalysis struct {
	Irregularities []Finding `json:"irregularities,omitempty"`
}

// Finding is one anomaly or irregularity. The parser emits either a bare
// string or an object; both decode into a Finding.
type Finding struct {
	Type        string           `json:"type,omitempty"`
	Description string           `json:"description,omitempty"`
	Severity    string           `json:"severity,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// UnmarshalJSON accepts "text" as well as {"description": "text", ...}.
// Any other value decodes as an empty Finding, which still counts as one
// anomaly. It never fails on well-formed JSON.
func (f *Finding) UnmarshalJSON(data []byte) error {
	*f = decodeFinding(data)
	return nil
}

// ErrAnalysisNotObject is returned when a document analysis is not a JSON
// object.
var ErrAnalysisNotObject = eris.New("document analysis must be a JSON object")

// UnmarshalJSON decodes the analysis field by field. A variant or field of
// the wrong JSON type is treated as absent instead of failing the document.
func (a *DocumentAnalysis) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	fields, ok := object(data)
	if !ok {
		return ErrAnalysisNotObject
	}
	*a = DocumentAnalysis{
		DocumentType:    text(fields["document_type"]),
		PotentialIssues: findings(fields["potential_issues"]),
	}
	if v, ok := object(fields["bank_analysis"]); ok {
		a.Bank = &BankAnalysis{
			RiskScore:       number(v["risk_score"]),
			RiskLevel:       text(v["risk_level"]),
			AnomaliesFound:  findings(v["anomalies_found"]),
			Anomalies:       findings(v["anomalies"]),
			EstimatedRefund: amount(v["estimated_refund"]),
		}
	}
	if v, ok := object(fields["condominium_analysis"]); ok {
		a.Condominium = &CondominiumAnalysis{
			RiskScore:      number(v["risk_score"]),
			RiskLevel:      text(v["risk_level"]),
			Irregularities: findings(v["irregularities"]),
		}
	}
	if v, ok := object(fields["work_analysis"]); ok {
		a.Work = &WorkAnalysis{Irregularities: findings(v["irregularities"])}
	}
	if v, ok := object(fields["auto_analysis"]); ok {
		a.Auto = &AutoAnalysis{Irregularities: findings(v["irregularities"])}
	}
	return nil
}

func decodeFinding(data []byte) Finding {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return Finding{Description: s}
	}
	fields, ok := object(data)
	if !ok {
		return Finding{}
	}
	return Finding{
		Type:        text(fields["type"]),
		Description: text(fields["description"]),
		Severity:    text(fields["severity"]),
		Amount:      amount(fields["amount"]),
	}
}

// findings decodes a JSON array of findings. A missing, null or non-array
// value yields nil so callers treat the list as absent; [] stays non-nil.
func findings(raw json.RawMessage) []Finding {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil || items == nil {
		return nil
	}
	out := make([]Finding, len(items))
	for i, item := range items {
		out[i] = decodeFinding(item)
	}
	return out
}

// number accepts a JSON number or a numeric string. Anything else,
// including NaN and infinities, is absent.
func number(raw json.RawMessage) *float64 {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func amount(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var d decimal.Decimal
	if d.UnmarshalJSON(raw) != nil {
		return nil
	}
	return &d
}

func text(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// RiskLevel is the discrete bucket derived from a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the unified projection of a DocumentAnalysis.
type RiskAssessment struct {
	Score           int             `json:"score"`
	Level           RiskLevel       `json:"level"`
	AnomalyCount    int             `json:"anomalyCount"`
	EstimatedRefund decimal.Decimal `json:"estimatedRefund"`

	// ScoreSource tells which field the score came from:
	// "bank", "condominium", "anomalies" or "none".
	ScoreSource string `json:"scoreSource"`

	// LevelMismatch is set when an explicit risk_level label disagrees with
	// the level implied by the score. The label wins.
	LevelMismatch bool `json:"levelMismatch,omitempty"`
}

// DocumentEvaluation is the persisted outcome of one document assessment.
type DocumentEvaluation struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	DocumentID string            `json:"documentId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Category   DocumentCategory  `json:"category"`
	Label      string            `json:"label"`
	Assessment RiskAssessment    `json:"assessment"`
	Alert      bool              `json:"alert"`
	Reasons    []string          `json:"reasons,omitempty"`
	Analysis   *DocumentAnalysis `json:"analysis,omitempty"`
	TraceID    string            `json:"traceId,omitempty"`
	TotalMs    int64             `json:"totalMs"`
}
