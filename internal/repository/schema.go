package repository

// Schema definitions for the Rimborsami database.
// Compatible with both SQLite and PostgreSQL. Money columns hold decimal
// strings so amounts round-trip exactly on either driver.

const schemaOpportunities = `
CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    min_amount TEXT NOT NULL,
    max_amount TEXT NOT NULL,
    request_template TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_active ON opportunities(active, created_at);
CREATE INDEX IF NOT EXISTS idx_opportunities_category ON opportunities(category);
`

const schemaQuizEvaluations = `
CREATE TABLE IF NOT EXISTS quiz_evaluations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    answers TEXT NOT NULL,
    scores TEXT NOT NULL,
    matches TEXT NOT NULL,
    total_estimated TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_evaluations_user ON quiz_evaluations(user_id, timestamp);
`

const schemaDocumentEvaluations = `
CREATE TABLE IF NOT EXISTS document_evaluations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    document_id TEXT,
    timestamp TIMESTAMP NOT NULL,
    category TEXT NOT NULL,
    level TEXT NOT NULL,
    score INTEGER NOT NULL,
    alert INTEGER NOT NULL DEFAULT 0,
    assessment TEXT NOT NULL,
    reasons TEXT,
    analysis TEXT,
    trace_id TEXT,
    total_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_document_evaluations_user ON document_evaluations(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_document_evaluations_level ON document_evaluations(user_id, level);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaOpportunities,
		schemaQuizEvaluations,
		schemaDocumentEvaluations,
	}
}
