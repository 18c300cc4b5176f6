package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/generator"
	"github.com/rimborsami/rimborsami/internal/pipeline"
	"github.com/rimborsami/rimborsami/internal/repository"
	"github.com/rimborsami/rimborsami/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *pipeline.Processor
	catalog   *catalog.Loader
	generator generator.Generator
	rulesPath string
	version   string
	logger    *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gen := deps.Generator
	if gen == nil {
		gen = generator.TemplateGenerator{}
	}
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		processor: deps.Processor,
		catalog:   deps.Catalog,
		generator: gen,
		rulesPath: deps.RulesPath,
		version:   deps.Version,
		logger:    logger,
	}
}

// QuizRequest is the request body for POST /quiz/evaluate.
type QuizRequest struct {
	Answers map[string]string `json:"answers"`
	Form    map[string]any    `json:"form,omitempty"`
}

// QuizResponse is the response for POST /quiz/evaluate.
type QuizResponse struct {
	EvaluationID      string                      `json:"evaluationId"`
	Scores            []domain.CategoryScore      `json:"scores"`
	AppliedCategories []domain.Category           `json:"appliedCategories"`
	Matches           []domain.MatchedOpportunity `json:"matches"`
	TotalEstimated    decimal.Decimal             `json:"totalEstimated"`
	Metadata          domain.EvaluationMetadata   `json:"metadata"`
}

// NewQuizResponse orders the scores canonically and replaces nil slices with empty ones.
func NewQuizResponse(eval *domain.QuizEvaluation) QuizResponse {
	resp := QuizResponse{
		EvaluationID:      eval.ID,
		AppliedCategories: eval.AppliedCategories(),
		Matches:           eval.Matches,
		TotalEstimated:    eval.TotalEstimated,
		Metadata:          eval.Metadata,
	}
	for _, c := range domain.ScoredCategories() {
		if s, ok := eval.Scores[c]; ok {
			resp.Scores = append(resp.Scores, s)
		}
	}
	if resp.AppliedCategories == nil {
		resp.AppliedCategories = []domain.Category{}
	}
	if resp.Matches == nil {
		resp.Matches = []domain.MatchedOpportunity{}
	}
	return resp
}

// EvaluateQuiz handles POST /quiz/evaluate requests.
func (h *Handler) EvaluateQuiz(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req QuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	activeCatalog, err := h.activeCatalog(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load catalog", "error", err)
		writeError(w, http.StatusServiceUnavailable, "catalog not available")
		return
	}

	eval := h.processor.ProcessQuiz(ctx, &pipeline.QuizInput{
		UserID:    userID,
		TraceID:   GetTraceID(ctx),
		Answers:   req.Answers,
		Form:      req.Form,
		Catalog:   activeCatalog,
		StartTime: start,
	})

	if h.repo != nil {
		if err := h.repo.SaveQuizEvaluation(ctx, userID, eval); err != nil {
			h.logger.ErrorContext(ctx, "failed to save quiz evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}
	h.publish(ctx, userID, domain.TopicQuizEvaluated, eval)

	writeJSON(w, http.StatusOK, NewQuizResponse(eval))
}

// GetQuizEvaluation retrieves a quiz evaluation by ID.
func (h *Handler) GetQuizEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	evalID := chi.URLParam(r, "id")
	eval, err := h.repo.GetQuizEvaluation(ctx, GetUserID(ctx), evalID)
	if err != nil {
		h.writeRepoError(ctx, w, err, "evaluation not found")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// AssessDocument handles POST /documents/assess. The body is the parsed
// document analysis; ?documentId= links the result to a stored document.
func (h *Handler) AssessDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID := GetUserID(ctx)

	var analysis domain.DocumentAnalysis
	if err := json.NewDecoder(r.Body).Decode(&analysis); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	eval := h.processor.ProcessDocument(ctx, &pipeline.DocumentInput{
		UserID:     userID,
		DocumentID: r.URL.Query().Get("documentId"),
		TraceID:    GetTraceID(ctx),
		Analysis:   &analysis,
		StartTime:  start,
	})

	if h.repo != nil {
		if err := h.repo.SaveDocumentEvaluation(ctx, userID, eval); err != nil {
			h.logger.ErrorContext(ctx, "failed to save document evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}
	h.publish(ctx, userID, domain.TopicDocumentAssessed, eval)
	if eval.Alert {
		h.publish(ctx, userID, domain.TopicDocumentAlert, eval)
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetDocumentEvaluation retrieves a document evaluation by ID.
func (h *Handler) GetDocumentEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	evalID := chi.URLParam(r, "id")
	eval, err := h.repo.GetDocumentEvaluation(ctx, GetUserID(ctx), evalID)
	if err != nil {
		h.writeRepoError(ctx, w, err, "assessment not found")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// GenerateRequestBody is the request body for POST /requests/generate.
type GenerateRequestBody struct {
	OpportunityID string            `json:"opportunityId"`
	Facts         map[string]string `json:"facts"`
}

// GenerateRequest renders the request letter of an opportunity for the user.
func (h *Handler) GenerateRequest(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	var req GenerateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.OpportunityID == "" {
		writeError(w, http.StatusBadRequest, "opportunityId is required")
		return
	}

	opp, err := h.repo.GetOpportunity(ctx, req.OpportunityID)
	if err != nil {
		h.writeRepoError(ctx, w, err, "opportunity not found")
		return
	}

	text, err := h.generator.Generate(ctx, generator.Request{
		UserID:      GetUserID(ctx),
		Opportunity: opp,
		Facts:       req.Facts,
	})
	if errors.Is(err, generator.ErrNoTemplate) {
		writeError(w, http.StatusBadRequest, "opportunity has no request template")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "request generation failed",
			"opportunity_id", opp.ID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "request generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunityId": opp.ID,
		"title":         opp.Title,
		"text":          text,
		"missingFields": missingFields(opp.RequestTemplate, req.Facts),
	})
}

func missingFields(template string, facts map[string]string) []string {
	missing := []string{}
	for _, f := range generator.Placeholders(template) {
		if facts[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// GetRules returns the loaded rule table.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	table := h.engine.Table()
	if table == nil {
		writeError(w, http.StatusServiceUnavailable, "no rule table loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    table.Version,
		"rulesCount": h.engine.RulesCount(),
		"categories": table.Categories,
	})
}

// ReloadRules re-reads the rule table and swaps it in. A table that fails
// to compile leaves the current one in effect.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var table *domain.RuleTable
	var err error
	if h.rulesPath != "" {
		table, err = rules.LoadTable(h.rulesPath)
	} else {
		table, err = rules.DefaultTable()
	}
	if err == nil {
		err = h.engine.Reload(table)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to reload rules", "path", h.rulesPath, "error", err)
		writeError(w, http.StatusBadRequest, "failed to reload rules: "+err.Error())
		return
	}

	h.logger.InfoContext(ctx, "rules reloaded",
		"version", h.engine.Version(),
		"rules_count", h.engine.RulesCount(),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "rules reloaded successfully",
		"version":    h.engine.Version(),
		"rulesCount": h.engine.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := h.ping(r.Context()); err != nil {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the repository and cache are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) ping(ctx context.Context) error {
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			return errors.New("repository unavailable")
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			return errors.New("cache unavailable")
		}
	}
	return nil
}

func (h *Handler) activeCatalog(ctx context.Context) ([]domain.OpportunityDefinition, error) {
	if h.catalog == nil {
		return nil, nil
	}
	return h.catalog.Active(ctx)
}

func (h *Handler) publish(ctx context.Context, userID, topic string, v any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, userID, topic, payload); err != nil {
		h.logger.WarnContext(ctx, "failed to publish event", "topic", topic, "error", err)
	}
}

func (h *Handler) writeRepoError(ctx context.Context, w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(ctx, "repository error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
