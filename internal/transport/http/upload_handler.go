package httptransport

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/sample"
)

const multipartOverhead = 4 << 10

type logFileResp struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
	UploadedAt       string `json:"uploaded_at"`
}

func toLogFileResp(f *entity.LogFile) logFileResp {
	return logFileResp{
		ID:               f.ID.String(),
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		FileSize:         f.FileSize,
		UploadedAt:       f.UploadedAt.Format(time.RFC3339),
	}
}

// UploadLogFile godoc
// @Summary Upload a log sample
// @Description Stores a log file for later rule generation. Allowed extensions: .log .txt .json .csv
// @Tags upload
// @Accept mpfd
// @Produce json
// @Param file formData file true "log file"
// @Success 201 {object} logFileResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Router /api/upload [post]
func (h *Handler) UploadLogFile(w http.ResponseWriter, r *http.Request) {
	// Bound the body before any buffering; the slack covers multipart
	// framing around a maximum-size file.
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadSvc.MaxSize()+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	stored, err := h.uploadSvc.Save(r.Context(), header.Filename, content)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toLogFileResp(stored))
}

// ListLogFiles godoc
// @Summary List uploaded log samples
// @Tags upload
// @Produce json
// @Success 200 {array} logFileResp
// @Router /api/upload [get]
func (h *Handler) ListLogFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.uploadSvc.List(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	resp := make([]logFileResp, 0, len(files))
	for i := range files {
		resp = append(resp, toLogFileResp(&files[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLogFile godoc
// @Summary Get an uploaded log sample
// @Tags upload
// @Produce json
// @Param id path string true "log file id (uuid)"
// @Success 200 {object} logFileResp
// @Failure 404 {object} apiError
// @Router /api/upload/{id} [get]
func (h *Handler) GetLogFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	f, err := h.uploadSvc.Get(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, toLogFileResp(f))
}

// GetLogFileSample godoc
// @Summary Preview lines of an uploaded log sample
// @Tags upload
// @Produce json
// @Param id path string true "log file id (uuid)"
// @Param max_lines query int false "maximum lines to return" default(100)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} apiError
// @Router /api/upload/{id}/sample [get]
func (h *Handler) GetLogFileSample(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	f, err := h.uploadSvc.Get(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}

	maxLines := 100
	if raw := r.URL.Query().Get("max_lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxLines = n
		}
	}

	reader := sample.Reader{}
	lines, err := reader.ReadLines(f.FilePath, maxLines)
	if err != nil {
		if errors.Is(err, sample.ErrEmpty) || errors.Is(err, sample.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":       lines,
		"total_lines": len(lines),
	})
}

// DeleteLogFile godoc
// @Summary Delete an uploaded log sample along with its jobs and rules
// @Tags upload
// @Param id path string true "log file id (uuid)"
// @Success 204
// @Failure 404 {object} apiError
// @Router /api/upload/{id} [delete]
func (h *Handler) DeleteLogFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.uploadSvc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "file not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
