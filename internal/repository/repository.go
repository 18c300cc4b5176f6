// Package repository stores the opportunity catalog and per-user
// evaluation records in SQLite or PostgreSQL through database/sql.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/rimborsami/rimborsami/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches, including rows owned by
	// another user.
	ErrNotFound = eris.New("record not found")

	// ErrInvalidInput is returned before any write that would store an
	// inconsistent row.
	ErrInvalidInput = eris.New("invalid input")
)

// SQLRepository is the domain.Repository for both supported drivers.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type SQLRepository struct {
	db       *sql.DB
	postgres bool
}

// New opens the configured database, sizes its pool and creates missing
// tables.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	tunePool(db, cfg)

	repo := &SQLRepository{db: db, postgres: cfg.Driver == "postgres"}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func tunePool(db *sql.DB, cfg domain.RepositoryConfig) {
	if n := cfg.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		db.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		db.SetConnMaxLifetime(d)
	}
}

// migrate applies every schema statement; all of them are idempotent.
func (r *SQLRepository) migrate(ctx context.Context) error {
	for i, stmt := range AllSchemas() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "apply schema %d", i)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidInput, format, args...)
}

// ValidateOpportunity checks a catalog entry before it is stored.
func ValidateOpportunity(o *domain.OpportunityDefinition) error {
	switch {
	case o == nil:
		return invalid("opportunity is required")
	case strings.TrimSpace(o.ID) == "":
		return invalid("id is required")
	case strings.TrimSpace(o.Title) == "":
		return invalid("title is required")
	case domain.ParseCategory(string(o.Category)) != o.Category:
		return invalid("unknown category %q", o.Category)
	case o.MinAmount.IsNegative():
		return invalid("minAmount must not be negative")
	case o.MinAmount.GreaterThan(o.MaxAmount):
		return invalid("minAmount must not exceed maxAmount")
	}
	return nil
}

// SaveOpportunity inserts or updates a catalog entry. The original
// created_at is kept on update so catalog order is stable.
func (r *SQLRepository) SaveOpportunity(ctx context.Context, o *domain.OpportunityDefinition) error {
	if err := ValidateOpportunity(o); err != nil {
		return err
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	query := `
		INSERT INTO opportunities (
			id, title, description, category, min_amount, max_amount,
			request_template, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			request_template = excluded.request_template,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	if err := r.exec(ctx, "save opportunity "+o.ID, query,
		o.ID, o.Title, o.Description, string(o.Category),
		o.MinAmount.String(), o.MaxAmount.String(),
		o.RequestTemplate, boolToInt(o.Active),
		o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return err
	}

	// An update keeps the stored created_at; report that one back.
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT created_at FROM opportunities WHERE id = ?`), o.ID)
	if err := row.Scan(&o.CreatedAt); err != nil {
		return notFound(err, "opportunity "+o.ID)
	}
	return nil
}

const selectOpportunity = `
	SELECT id, title, description, category, min_amount, max_amount,
		   request_template, active, created_at, updated_at
	FROM opportunities
`

// GetOpportunity retrieves a catalog entry, active or not.
func (r *SQLRepository) GetOpportunity(ctx context.Context, id string) (*domain.OpportunityDefinition, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectOpportunity+` WHERE id = ?`), id)

	o, err := scanOpportunity(row)
	if err != nil {
		return nil, notFound(err, "opportunity "+id)
	}
	return o, nil
}

// ListOpportunities returns the catalog in insertion order.
func (r *SQLRepository) ListOpportunities(ctx context.Context, activeOnly bool) ([]*domain.OpportunityDefinition, error) {
	query := selectOpportunity
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, eris.Wrap(err, "list opportunities")
	}
	defer rows.Close()

	var out []*domain.OpportunityDefinition
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan opportunity")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "list opportunities")
	}
	return out, nil
}

// DeactivateOpportunity soft-deletes a catalog entry by setting active = 0.
func (r *SQLRepository) DeactivateOpportunity(ctx context.Context, id string) error {
	query := `
		UPDATE opportunities
		SET active = 0, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "deactivate opportunity %s", id)
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrapf(err, "deactivate opportunity %s", id)
	} else if n == 0 {
		return eris.Wrapf(ErrNotFound, "opportunity %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(s scanner) (*domain.OpportunityDefinition, error) {
	var o domain.OpportunityDefinition
	var category, minAmount, maxAmount string
	var description, template sql.NullString
	var active int

	if err := s.Scan(
		&o.ID, &o.Title, &description, &category, &minAmount, &maxAmount,
		&template, &active, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if o.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
		return nil, eris.Wrapf(err, "opportunity %s: min_amount", o.ID)
	}
	if o.MaxAmount, err = decimal.NewFromString(maxAmount); err != nil {
		return nil, eris.Wrapf(err, "opportunity %s: max_amount", o.ID)
	}
	o.Category = domain.ParseCategory(category)
	o.Description = description.String
	o.RequestTemplate = template.String
	o.Active = active == 1
	return &o, nil
}

// SaveQuizEvaluation stores a quiz evaluation scoped to userID.
func (r *SQLRepository) SaveQuizEvaluation(ctx context.Context, userID string, eval *domain.QuizEvaluation) error {
	if userID == "" {
		return invalid("userID is required")
	}

	answers, _ := json.Marshal(eval.Answers)
	scores, _ := json.Marshal(eval.Scores)
	matches, _ := json.Marshal(eval.Matches)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO quiz_evaluations (
			id, user_id, timestamp, answers, scores, matches, total_estimated, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.exec(ctx, "save quiz evaluation "+eval.ID, query,
		eval.ID, userID, eval.Timestamp,
		string(answers), string(scores), string(matches),
		eval.TotalEstimated.String(), string(metadata),
	)
}

// GetQuizEvaluation retrieves a quiz evaluation owned by userID.
func (r *SQLRepository) GetQuizEvaluation(ctx context.Context, userID string, evalID string) (*domain.QuizEvaluation, error) {
	if userID == "" {
		return nil, invalid("userID is required")
	}

	query := `
		SELECT id, user_id, timestamp, answers, scores, matches, total_estimated, metadata
		FROM quiz_evaluations
		WHERE user_id = ? AND id = ?
	`

	var eval domain.QuizEvaluation
	var answers, scores, matches, total, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, evalID).Scan(
		&eval.ID, &eval.UserID, &eval.Timestamp,
		&answers, &scores, &matches, &total, &metadata,
	)
	if err != nil {
		return nil, notFound(err, "quiz evaluation "+evalID)
	}

	if err := unmarshalAll(
		field{"answers", answers, &eval.Answers},
		field{"scores", scores, &eval.Scores},
		field{"matches", matches, &eval.Matches},
		field{"metadata", metadata, &eval.Metadata},
	); err != nil {
		return nil, eris.Wrapf(err, "quiz evaluation %s", evalID)
	}
	if eval.TotalEstimated, err = decimal.NewFromString(total); err != nil {
		return nil, eris.Wrapf(err, "quiz evaluation %s: total_estimated", evalID)
	}
	return &eval, nil
}

// SaveDocumentEvaluation stores a document evaluation scoped to userID.
func (r *SQLRepository) SaveDocumentEvaluation(ctx context.Context, userID string, eval *domain.DocumentEvaluation) error {
	if userID == "" {
		return invalid("userID is required")
	}

	assessment, _ := json.Marshal(eval.Assessment)
	reasons, _ := json.Marshal(eval.Reasons)
	analysis, _ := json.Marshal(eval.Analysis)

	query := `
		INSERT INTO document_evaluations (
			id, user_id, document_id, timestamp, category, level, score, alert,
			assessment, reasons, analysis, trace_id, total_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.exec(ctx, "save document evaluation "+eval.ID, query,
		eval.ID, userID, eval.DocumentID, eval.Timestamp,
		string(eval.Category), string(eval.Assessment.Level), eval.Assessment.Score, boolToInt(eval.Alert),
		string(assessment), string(reasons), string(analysis), eval.TraceID, eval.TotalMs,
	)
}

// GetDocumentEvaluation retrieves a document evaluation owned by userID.
func (r *SQLRepository) GetDocumentEvaluation(ctx context.Context, userID string, evalID string) (*domain.DocumentEvaluation, error) {
	if userID == "" {
		return nil, invalid("userID is required")
	}

	query := `
		SELECT id, user_id, document_id, timestamp, category, alert,
			   assessment, reasons, analysis, trace_id, total_ms
		FROM document_evaluations
		WHERE user_id = ? AND id = ?
	`

	var eval domain.DocumentEvaluation
	var category, assessment, reasons, analysis string
	var documentID, traceID sql.NullString
	var alert int

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, evalID).Scan(
		&eval.ID, &eval.UserID, &documentID, &eval.Timestamp, &category, &alert,
		&assessment, &reasons, &analysis, &traceID, &eval.TotalMs,
	)
	if err != nil {
		return nil, notFound(err, "document evaluation "+evalID)
	}

	if err := unmarshalAll(
		field{"assessment", assessment, &eval.Assessment},
		field{"reasons", reasons, &eval.Reasons},
		field{"analysis", analysis, &eval.Analysis},
	); err != nil {
		return nil, eris.Wrapf(err, "document evaluation %s", evalID)
	}

	eval.DocumentID = documentID.String
	eval.TraceID = traceID.String
	eval.Category = domain.DocumentCategory(category)
	eval.Label = eval.Category.Label()
	eval.Alert = alert == 1
	return &eval, nil
}

// Ping checks the database answers.
func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "database ping")
	}
	return nil
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
		return eris.Wrap(err, op)
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "%s", what)
	}
	return eris.Wrapf(err, "load %s", what)
}

type field struct {
	name string
	raw  string
	dest any
}

func unmarshalAll(fields ...field) error {
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return eris.Wrapf(err, "decode %s", f.name)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL. No query
// here contains a literal question mark.
func (r *SQLRepository) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, c := range query {
		if c != '?' {
			sb.WriteRune(c)
			continue
		}
		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}
