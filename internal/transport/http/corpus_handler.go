package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/service"
)

// ScanCorpus godoc
// @Summary Rescan the rule corpus directories
// @Description Parses every rule file and atomically replaces the indexed record set. Only one scan may run at a time.
// @Tags corpus
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/corpus/scan [post]
func (h *Handler) ScanCorpus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scanSvc.Rescan(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			writeErr(w, http.StatusConflict, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "rules scanned successfully",
		"statistics": stats,
	})
}

// CorpusStatistics godoc
// @Summary Corpus statistics
// @Tags corpus
// @Produce json
// @Success 200 {object} corpus.Stats
// @Router /api/corpus/statistics [get]
func (h *Handler) CorpusStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registrySvc.Statistics(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListCorpusRules godoc
// @Summary List indexed corpus rules
// @Tags corpus
// @Produce json
// @Param page query int false "page (1-indexed)" default(1)
// @Param limit query int false "items per page" default(20)
// @Param source query string false "filter by source: custom or default"
// @Param level query int false "filter by level"
// @Param search query string false "search by rule id, description or groups"
// @Success 200 {object} service.CorpusPage
// @Router /api/corpus [get]
func (h *Handler) ListCorpusRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	filter := postgresql.CorpusFilter{
		Source: q.Get("source"),
		Search: q.Get("search"),
	}
	if raw := q.Get("level"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Level = &n
		}
	}

	pageResp, err := h.registrySvc.ListRules(r.Context(), filter, page, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to list corpus rules")
		return
	}
	writeJSON(w, http.StatusOK, pageResp)
}

// CorpusConflicts godoc
// @Summary Duplicate-ID conflicts and overwritten rules
// @Tags corpus
// @Produce json
// @Success 200 {object} service.Conflicts
// @Router /api/corpus/conflicts [get]
func (h *Handler) CorpusConflicts(w http.ResponseWriter, r *http.Request) {
	report, err := h.registrySvc.ConflictReport(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to load conflicts")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CorpusHeatmap godoc
// @Summary Rule-ID density heatmap
// @Tags corpus
// @Produce json
// @Param range_size query int false "bucket width (100-10000)" default(1000)
// @Success 200 {object} service.Heatmap
// @Router /api/corpus/heatmap [get]
func (h *Handler) CorpusHeatmap(w http.ResponseWriter, r *http.Request) {
	width := 1000
	if raw := r.URL.Query().Get("range_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			width = n
		}
	}
	hm, err := h.registrySvc.IDHeatmap(r.Context(), width)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to build heatmap")
		return
	}
	writeJSON(w, http.StatusOK, hm)
}

// SuggestCorpusIDs godoc
// @Summary Suggest free rule IDs in the custom range
// @Tags corpus
// @Produce json
// @Param count query int false "number of IDs to suggest (1-10)" default(1)
// @Success 200 {object} service.IDSuggestion
// @Router /api/corpus/id-suggestion [get]
func (h *Handler) SuggestCorpusIDs(w http.ResponseWriter, r *http.Request) {
	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n
		}
	}
	if count > 10 {
		count = 10
	}
	suggestion, err := h.registrySvc.SuggestIDs(r.Context(), count)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to suggest ids")
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// GetCorpusRule godoc
// @Summary Get an indexed corpus rule by its numeric rule id
// @Tags corpus
// @Produce json
// @Param ruleID path int true "numeric rule id"
// @Success 200 {object} entity.CorpusRule
// @Failure 404 {object} apiError
// @Router /api/corpus/{ruleID} [get]
func (h *Handler) GetCorpusRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := strconv.Atoi(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	rule, err := h.registrySvc.GetRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "rule not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to load rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
