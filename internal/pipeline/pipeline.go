// Package pipeline turns raw quiz submissions and parsed documents into
// evaluation records ready to persist and publish.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/facts"
	"github.com/rimborsami/rimborsami/internal/match"
	"github.com/rimborsami/rimborsami/internal/metrics"
	"github.com/rimborsami/rimborsami/internal/risk"
)

// EngineName prefixes the engine version stamped on every evaluation.
const EngineName = "rimborsami-1.0"

// Scorer scores normalized answers. *rules.Engine implements it.
type Scorer interface {
	Score(answers domain.Answers) map[domain.Category]domain.CategoryScore
	Questions() domain.QuestionSet
	Version() string
	RulesCount() int
}

// Processor runs the normalize, score and match steps for quizzes and the
// assess step for documents.
type Processor struct {
	scorer   Scorer
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor creates a processor over scorer.
func NewProcessor(scorer Scorer, opts ...Option) *Processor {
	p := &Processor{
		scorer:   scorer,
		recorder: metrics.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// QuizInput contains a quiz submission. Answers and Form are merged; Form
// values win on conflicts.
type QuizInput struct {
	UserID    string
	TraceID   string
	Answers   map[string]string
	Form      map[string]any
	Catalog   []domain.OpportunityDefinition
	StartTime time.Time
}

// ProcessQuiz evaluates a quiz submission against the catalog.
func (p *Processor) ProcessQuiz(ctx context.Context, input *QuizInput) *domain.QuizEvaluation {
	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	known := p.scorer.Questions()
	answers := facts.NormalizeQuiz(input.Answers, known)
	for q, v := range facts.NormalizeForm(input.Form, known) {
		answers[q] = v
	}
	normalizeMs := time.Since(start).Milliseconds()

	scoreStart := time.Now()
	scores := p.scorer.Score(answers)
	scoreMs := time.Since(scoreStart).Milliseconds()

	matchStart := time.Now()
	matches := match.Opportunities(scores, input.Catalog)
	matchMs := time.Since(matchStart).Milliseconds()

	eval := &domain.QuizEvaluation{
		ID:             uuid.New().String(),
		UserID:         input.UserID,
		Timestamp:      time.Now().UTC(),
		Answers:        answers,
		Scores:         scores,
		Matches:        matches,
		TotalEstimated: match.Total(matches),
		Metadata: domain.EvaluationMetadata{
			TraceID:        input.TraceID,
			NormalizeMs:    normalizeMs,
			ScoreMs:        scoreMs,
			MatchMs:        matchMs,
			TotalMs:        time.Since(start).Milliseconds(),
			RulesEvaluated: p.scorer.RulesCount(),
			CatalogSize:    len(input.Catalog),
			DroppedAnswers: facts.Dropped(submitted(input), answers),
			EngineVersion:  p.engineVersion(),
		},
	}

	p.recorder.QuizEvaluated(eval)
	p.logger.DebugContext(ctx, "quiz evaluated",
		"evaluation_id", eval.ID,
		"user_id", eval.UserID,
		"applied", len(eval.AppliedCategories()),
		"matches", len(matches),
		"total_estimated", eval.TotalEstimated.String(),
	)
	return eval
}

// DocumentInput contains one parsed document.
type DocumentInput struct {
	UserID     string
	DocumentID string
	TraceID    string
	Analysis   *domain.DocumentAnalysis
	StartTime  time.Time
}

// ProcessDocument assesses a parsed document.
func (p *Processor) ProcessDocument(ctx context.Context, input *DocumentInput) *domain.DocumentEvaluation {
	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	assessment := risk.Assess(input.Analysis)
	category := risk.DocumentCategoryOf(input.Analysis)

	eval := &domain.DocumentEvaluation{
		ID:         uuid.New().String(),
		UserID:     input.UserID,
		DocumentID: input.DocumentID,
		Timestamp:  time.Now().UTC(),
		Category:   category,
		Label:      category.Label(),
		Assessment: assessment,
		Reasons:    Reasons(input.Analysis),
		Analysis:   input.Analysis,
		TraceID:    input.TraceID,
	}
	eval.Alert = ShouldAlert(eval)
	eval.TotalMs = time.Since(start).Milliseconds()

	if assessment.LevelMismatch {
		p.logger.WarnContext(ctx, "explicit risk level contradicts score",
			"evaluation_id", eval.ID,
			"document_id", eval.DocumentID,
			"score", assessment.Score,
			"risk_level", assessment.Level,
			"derived_level", risk.LevelForScore(assessment.Score),
		)
	}

	p.recorder.DocumentAssessed(eval)
	return eval
}

// submitted counts the distinct question ids in a submission.
func submitted(input *QuizInput) int {
	n := len(input.Answers)
	for q := range input.Form {
		if _, ok := input.Answers[q]; !ok {
			n++
		}
	}
	return n
}

func (p *Processor) engineVersion() string {
	if v := p.scorer.Version(); v != "" {
		return EngineName + "+rules." + v
	}
	return EngineName
}

// ShouldAlert reports whether the assessment is high or critical.
func ShouldAlert(eval *domain.DocumentEvaluation) bool {
	switch eval.Assessment.Level {
	case domain.RiskHigh, domain.RiskCritical:
		return true
	}
	return false
}

// Reasons extracts human-readable finding descriptions from an analysis,
// falling back to the finding type when there is no description.
func Reasons(a *domain.DocumentAnalysis) []string {
	if a == nil {
		return nil
	}

	lists := [][]domain.Finding{a.PotentialIssues}
	if b := a.Bank; b != nil {
		if b.AnomaliesFound != nil {
			lists = append(lists, b.AnomaliesFound)
		} else {
			lists = append(lists, b.Anomalies)
		}
	}
	if c := a.Condominium; c != nil {
		lists = append(lists, c.Irregularities)
	}
	if w := a.Work; w != nil {
		lists = append(lists, w.Irregularities)
	}
	if au := a.Auto; au != nil {
		lists = append(lists, au.Irregularities)
	}

	var reasons []string
	for _, list := range lists {
		for _, f := range list {
			switch {
			case f.Description != "":
				reasons = append(reasons, f.Description)
			case f.Type != "":
				reasons = append(reasons, f.Type)
			}
		}
	}
	return reasons
}
