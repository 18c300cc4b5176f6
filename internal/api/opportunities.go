package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// ListOpportunities returns the active catalog.
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opportunities, err := h.activeCatalog(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load catalog", "error", err)
		writeError(w, http.StatusServiceUnavailable, "catalog not available")
		return
	}
	if opportunities == nil {
		opportunities = []domain.OpportunityDefinition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opportunities,
		"count":         len(opportunities),
	})
}

// GetOpportunity returns one catalog entry, active or not.
func (h *Handler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	opp, err := h.repo.GetOpportunity(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(ctx, w, err, "opportunity not found")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// SaveOpportunity creates or updates a catalog entry.
func (h *Handler) SaveOpportunity(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	var opp domain.OpportunityDefinition
	if err := json.NewDecoder(r.Body).Decode(&opp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := h.repo.SaveOpportunity(ctx, &opp); err != nil {
		h.writeRepoError(ctx, w, err, "opportunity not found")
		return
	}
	if h.catalog != nil {
		h.catalog.Invalidate(ctx)
	}

	h.logger.InfoContext(ctx, "opportunity saved",
		"opportunity_id", opp.ID,
		"category", opp.Category,
		"active", opp.Active,
	)
	writeJSON(w, http.StatusCreated, opp)
}

// DeactivateOpportunity soft-deletes a catalog entry.
func (h *Handler) DeactivateOpportunity(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.repo.DeactivateOpportunity(ctx, id); err != nil {
		h.writeRepoError(ctx, w, err, "opportunity not found")
		return
	}
	if h.catalog != nil {
		h.catalog.Invalidate(ctx)
	}

	h.logger.InfoContext(ctx, "opportunity deactivated", "opportunity_id", id)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "opportunity deactivated",
	})
}
