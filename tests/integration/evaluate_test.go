//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Rimborsami server.
//
// These tests drive the complete HTTP flow:
//
//	Catalog → Quiz answers → Category scores → Matched opportunities
//	Parsed document → Risk assessment → Alert
//
// Run with:
//
//	go run ./cmd/rimborsami serve &
//	go test -tags=integration -v ./tests/integration/...
//
// The server must use the embedded rule table. Each test seeds the catalog
// entries it needs through POST /opportunities with unique ids, so the
// tests can run against a shared database.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	UserID  string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("RIMBORSAMI_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL: baseURL,
		UserID:  "integration-" + uuid.NewString(),
	}
}

// QuizResponse is what POST /quiz/evaluate returns.
type QuizResponse struct {
	EvaluationID string `json:"evaluationId"`
	Scores       []struct {
		Category    string `json:"category"`
		TotalPoints int    `json:"totalPoints"`
		Applies     bool   `json:"applies"`
	} `json:"scores"`
	AppliedCategories []string `json:"appliedCategories"`
	Matches           []struct {
		OpportunityID   string          `json:"opportunityId"`
		Category        string          `json:"category"`
		EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
	} `json:"matches"`
	TotalEstimated decimal.Decimal `json:"totalEstimated"`
	Metadata       struct {
		TraceID       string `json:"traceId"`
		EngineVersion string `json:"engineVersion"`
	} `json:"metadata"`
}

// DocumentResponse is what POST /documents/assess returns.
type DocumentResponse struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Label      string `json:"label"`
	Alert      bool   `json:"alert"`
	Assessment struct {
		Score           int             `json:"score"`
		Level           string          `json:"level"`
		AnomalyCount    int             `json:"anomalyCount"`
		EstimatedRefund decimal.Decimal `json:"estimatedRefund"`
	} `json:"assessment"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func do(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if config.UserID != "" {
		req.Header.Set("X-User-ID", config.UserID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err, "is the server running at %s?", config.BaseURL)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func seedOpportunity(t *testing.T, config TestConfig, category, minAmount, maxAmount string) string {
	t.Helper()

	id := fmt.Sprintf("it-%s-%s", category, uuid.NewString()[:8])
	status, body := do(t, config, http.MethodPost, "/opportunities", map[string]any{
		"id":        id,
		"title":     "Integration " + category,
		"category":  category,
		"minAmount": minAmount,
		"maxAmount": maxAmount,
		"active":    true,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	t.Cleanup(func() {
		do(t, config, http.MethodDelete, "/opportunities/"+id, nil)
	})
	return id
}

func evaluateQuiz(t *testing.T, config TestConfig, answers map[string]string) QuizResponse {
	t.Helper()

	status, body := do(t, config, http.MethodPost, "/quiz/evaluate", map[string]any{"answers": answers})
	require.Equal(t, http.StatusOK, status, string(body))

	var result QuizResponse
	require.NoError(t, json.Unmarshal(body, &result), string(body))
	return result
}

func matchFor(resp QuizResponse, opportunityID string) (decimal.Decimal, bool) {
	for _, m := range resp.Matches {
		if m.OpportunityID == opportunityID {
			return m.EstimatedAmount, true
		}
	}
	return decimal.Zero, false
}

// ============================================================================
// SCENARIO 1: Frequent flyer with a literal category estimate
// ============================================================================

func TestFlightMultiple_LiteralEstimate(t *testing.T) {
	/*
	   SCENARIO: The user flew several times in the last years.

	   EXPECTED BEHAVIOR:
	   - flights=multiple → flight applies
	   - flight carries a literal estimate (600 for multiple flights), which
	     overrides the catalog midpoint
	*/
	config := getTestConfig()
	oppID := seedOpportunity(t, config, "flight", "250", "600")

	result := evaluateQuiz(t, config, map[string]string{"flights": "multiple"})

	assert.Contains(t, result.AppliedCategories, "flight")
	amount, ok := matchFor(result, oppID)
	require.True(t, ok, "expected a match for %s", oppID)
	assert.True(t, amount.Equal(decimal.NewFromInt(600)), "got %s", amount)
	assert.NotEmpty(t, result.EvaluationID)
	assert.NotEmpty(t, result.Metadata.EngineVersion)
}

// ============================================================================
// SCENARIO 2: No answers
// ============================================================================

func TestEmptyAnswers_NothingApplies(t *testing.T) {
	/*
	   SCENARIO: The quiz was submitted without any answer.

	   EXPECTED BEHAVIOR:
	   - every category is scored with zero points
	   - nothing applies, nothing matches, total is zero
	*/
	config := getTestConfig()

	result := evaluateQuiz(t, config, map[string]string{})

	assert.Len(t, result.Scores, 11)
	for _, s := range result.Scores {
		assert.Zero(t, s.TotalPoints, s.Category)
		assert.False(t, s.Applies, s.Category)
	}
	assert.Empty(t, result.AppliedCategories)
	assert.Empty(t, result.Matches)
	assert.True(t, result.TotalEstimated.IsZero())
}

// ============================================================================
// SCENARIO 3: Stored evaluation is scoped to its user
// ============================================================================

func TestQuizEvaluation_UserScoped(t *testing.T) {
	config := getTestConfig()
	result := evaluateQuiz(t, config, map[string]string{"flights": "once"})

	status, _ := do(t, config, http.MethodGet, "/quiz/evaluations/"+result.EvaluationID, nil)
	assert.Equal(t, http.StatusOK, status)

	other := config
	other.UserID = "someone-else-" + uuid.NewString()
	status, _ = do(t, other, http.MethodGet, "/quiz/evaluations/"+result.EvaluationID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// ============================================================================
// SCENARIO 4: Bank statement with a critical risk score
// ============================================================================

func TestBankDocument_CriticalAlert(t *testing.T) {
	/*
	   SCENARIO: The parser scored a bank statement at 85 and found two anomalies.

	   EXPECTED BEHAVIOR:
	   - 85 > 75 → critical
	   - category bank, label "Banca"
	   - critical documents raise an alert
	*/
	config := getTestConfig()

	status, body := do(t, config, http.MethodPost, "/documents/assess?documentId=doc-it-1", map[string]any{
		"bank_analysis": map[string]any{
			"risk_score":       85,
			"anomalies_found":  []string{"commissione non dovuta", "interessi anatocistici"},
			"estimated_refund": 320.5,
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var result DocumentResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "bank", result.Category)
	assert.Equal(t, "Banca", result.Label)
	assert.Equal(t, 85, result.Assessment.Score)
	assert.Equal(t, "critical", result.Assessment.Level)
	assert.Equal(t, 2, result.Assessment.AnomalyCount)
	assert.True(t, result.Assessment.EstimatedRefund.Equal(decimal.RequireFromString("320.5")))
	assert.True(t, result.Alert)
}

// ============================================================================
// SCENARIO 5: Anomaly-only document
// ============================================================================

func TestWorkDocument_AnomalyScore(t *testing.T) {
	/*
	   SCENARIO: A payslip with two irregularities and no explicit score.

	   EXPECTED BEHAVIOR:
	   - score = 2 × 15 = 30 → medium
	   - no alert
	*/
	config := getTestConfig()

	status, body := do(t, config, http.MethodPost, "/documents/assess", map[string]any{
		"work_analysis": map[string]any{
			"irregularities": []string{"straordinari non pagati", "TFR calcolato male"},
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var result DocumentResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "work", result.Category)
	assert.Equal(t, 30, result.Assessment.Score)
	assert.Equal(t, "medium", result.Assessment.Level)
	assert.False(t, result.Alert)
}

// ============================================================================
// SCENARIO 6: Missing user header
// ============================================================================

func TestMissingUserHeader_Error(t *testing.T) {
	config := getTestConfig()
	config.UserID = ""

	status, _ := do(t, config, http.MethodPost, "/quiz/evaluate", map[string]any{"answers": map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, status)
}
