package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("RIMBORSAMI_LOGGING_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRulesCheckEmbedded(t *testing.T) {
	out := execute(t, "rules", "check")
	assert.Contains(t, out, "rule table embedded")
	assert.Contains(t, out, "flight")
	assert.Contains(t, out, "class_action")
}

func TestScoreWithCatalog(t *testing.T) {
	answers := writeFile(t, "answers.json", `{"flights": "multiple"}`)
	catalogFile := writeFile(t, "catalog.yaml", `
opportunities:
  - id: eu261
    title: Compensazione ritardo volo
    category: flight
    min_amount: "250"
    max_amount: "600"
`)

	out := execute(t, "score", "--answers", answers, "--catalog", catalogFile)

	var resp struct {
		AppliedCategories []string `json:"appliedCategories"`
		Matches           []struct {
			OpportunityID string `json:"opportunityId"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.AppliedCategories, "flight")
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "eu261", resp.Matches[0].OpportunityID)
}

func TestAssessDocument(t *testing.T) {
	doc := writeFile(t, "doc.json", `{"bank_analysis": {"risk_score": 85, "anomalies_found": ["commissione non dovuta"]}}`)

	out := execute(t, "assess", "--document", doc, "--document-id", "doc-1")

	var eval struct {
		DocumentID string `json:"documentId"`
		Category   string `json:"category"`
		Alert      bool   `json:"alert"`
		Assessment struct {
			Score int    `json:"score"`
			Level string `json:"level"`
		} `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &eval))
	assert.Equal(t, "doc-1", eval.DocumentID)
	assert.Equal(t, "bank", eval.Category)
	assert.Equal(t, 85, eval.Assessment.Score)
	assert.Equal(t, "critical", eval.Assessment.Level)
	assert.True(t, eval.Alert)
}

func TestCatalogImportAndList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rimborsami.db")
	t.Setenv("RIMBORSAMI_REPOSITORY_SQLITE_PATH", dbPath)

	catalogFile := writeFile(t, "catalog.yaml", `
opportunities:
  - id: eu261
    title: Compensazione ritardo volo
    category: flight
    min_amount: "250"
    max_amount: "600"
  - id: old-telecom
    title: Rimborso bollette a 28 giorni
    category: telecom
    min_amount: "50"
    max_amount: "100"
    active: false
`)

	out := execute(t, "catalog", "import", catalogFile)
	assert.Contains(t, out, "imported 2 opportunities")

	out = execute(t, "catalog", "list")
	var defs []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "eu261", defs[0].ID)
}
