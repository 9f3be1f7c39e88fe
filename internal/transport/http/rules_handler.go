package httptransport

import (
	"errors"
	"net/http"
	"time"

	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/rulexml"
)

type ruleResp struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	RuleXML   string `json:"rule_xml"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toRuleResp(rule *entity.Rule) ruleResp {
	return ruleResp{
		ID:        rule.ID.String(),
		JobID:     rule.JobID.String(),
		RuleXML:   rule.RuleXML,
		CreatedAt: rule.CreatedAt.Format(time.RFC3339),
		UpdatedAt: rule.UpdatedAt.Format(time.RFC3339),
	}
}

type ruleUpdateDTO struct {
	RuleXML string `json:"rule_xml" validate:"required"`
}

// ListRules godoc
// @Summary List generated rules
// @Tags rules
// @Produce json
// @Success 200 {array} ruleResp
// @Router /api/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleSvc.List(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	resp := make([]ruleResp, 0, len(rules))
	for i := range rules {
		resp = append(resp, toRuleResp(&rules[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRule godoc
// @Summary Get a generated rule
// @Tags rules
// @Produce json
// @Param id path string true "rule id (uuid)"
// @Success 200 {object} ruleResp
// @Failure 404 {object} apiError
// @Router /api/rules/{id} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	rule, err := h.ruleSvc.Get(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, toRuleResp(rule))
}

// GetRuleByJob godoc
// @Summary Get the rule generated by a job
// @Tags rules
// @Produce json
// @Param jobID path string true "job id (uuid)"
// @Success 200 {object} ruleResp
// @Failure 404 {object} apiError
// @Router /api/rules/job/{jobID} [get]
func (h *Handler) GetRuleByJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := urlUUID(r, "jobID")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid job id")
		return
	}
	rule, err := h.ruleSvc.GetByJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "rule not found for this job")
		return
	}
	writeJSON(w, http.StatusOK, toRuleResp(rule))
}

// UpdateRule godoc
// @Summary Update a generated rule's XML
// @Description The replacement XML passes the same structural and safety validation as generated rules.
// @Tags rules
// @Accept json
// @Produce json
// @Param id path string true "rule id (uuid)"
// @Param request body ruleUpdateDTO true "new rule XML"
// @Success 200 {object} ruleResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/rules/{id} [put]
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	var dto ruleUpdateDTO
	if err := h.decodeAndValidate(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.ruleSvc.Update(r.Context(), id, dto.RuleXML)
	if err != nil {
		var vErr *rulexml.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeErr(w, http.StatusBadRequest, vErr.Error())
		case errors.Is(err, postgresql.ErrNotFound):
			writeErr(w, http.StatusNotFound, "rule not found")
		default:
			writeErr(w, http.StatusInternalServerError, "failed to update rule")
		}
		return
	}
	writeJSON(w, http.StatusOK, toRuleResp(rule))
}

// DeleteRule godoc
// @Summary Delete a generated rule
// @Tags rules
// @Param id path string true "rule id (uuid)"
// @Success 204
// @Failure 404 {object} apiError
// @Router /api/rules/{id} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.ruleSvc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "rule not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
