package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/service"
)

type Handler struct {
	jobSvc      *service.JobService
	uploadSvc   *service.UploadService
	ruleSvc     *service.RuleService
	registrySvc *service.RegistryService
	scanSvc     *service.ScanService

	validate *validator.Validate
}

func NewHandler(
	jobSvc *service.JobService,
	uploadSvc *service.UploadService,
	ruleSvc *service.RuleService,
	registrySvc *service.RegistryService,
	scanSvc *service.ScanService,
) *Handler {
	return &Handler{
		jobSvc:      jobSvc,
		uploadSvc:   uploadSvc,
		ruleSvc:     ruleSvc,
		registrySvc: registrySvc,
		scanSvc:     scanSvc,
		validate:    validator.New(),
	}
}

func (h *Handler) decodeAndValidate(r *http.Request, dto any) error {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		return errors.New("invalid json")
	}
	return h.validate.Struct(dto)
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

type createJobDTO struct {
	LogFileID       string `json:"log_file_id" validate:"required,uuid"`
	RequestedRuleID *int   `json:"requested_rule_id,omitempty" validate:"omitempty,gte=100000,lt=120000"`
}

type createJobResp struct {
	ID string `json:"id"`
}

type jobResp struct {
	ID              string           `json:"id"`
	LogFileID       string           `json:"log_file_id"`
	Status          entity.JobStatus `json:"status"`
	RetryCount      int              `json:"retry_count"`
	RequestedRuleID *int             `json:"requested_rule_id,omitempty"`
	Error           *string          `json:"error_message,omitempty"`
	StartedAt       *string          `json:"started_at,omitempty"`
	CompletedAt     *string          `json:"completed_at,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

func toJobResp(j *entity.Job) jobResp {
	resp := jobResp{
		ID:              j.ID.String(),
		LogFileID:       j.LogFileID.String(),
		Status:          j.Status,
		RetryCount:      j.RetryCount,
		RequestedRuleID: j.RequestedRuleID,
		Error:           j.ErrorMessage,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// CreateJob godoc
// @Summary Create a rule-generation job
// @Description Records a pending job for an uploaded log sample and enqueues it for background processing.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job payload"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/jobs/generate [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := h.decodeAndValidate(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	logFileID, err := uuid.Parse(dto.LogFileID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid log_file_id")
		return
	}

	id, err := h.jobSvc.CreateJob(r.Context(), service.CreateJobRequest{
		LogFileID:       logFileID,
		RequestedRuleID: dto.RequestedRuleID,
	})
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "log file not found")
			return
		}
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{ID: id.String()})
}

// ListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} jobResp
// @Router /api/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobSvc.ListJobs(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	resp := make([]jobResp, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, toJobResp(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobResp(j))
}
