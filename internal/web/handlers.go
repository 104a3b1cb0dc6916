package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/databuddy/hrimport/internal/apperr"
	"github.com/databuddy/hrimport/internal/job"
	"github.com/databuddy/hrimport/internal/logging"
	"github.com/databuddy/hrimport/internal/rows"
	"github.com/databuddy/hrimport/internal/validate"
)

// Pagination bounds for the rows endpoint.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// multipartOverhead is slack on top of the file cap for multipart framing.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateJob accepts a multipart upload and creates the import job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFailure(w, r, apperr.FileTooLarge(maxBytes))
			return
		}
		writeFailure(w, r, apperr.New(apperr.InvalidParams, "A multipart 'file' field is required."))
		return
	}
	defer file.Close()

	record, err := s.service.CreateJob(r.Context(), header.Filename, file)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("upload accepted",
		"job_id", record.JobID,
		"file", header.Filename,
		"rows", record.Dataset.TotalRows,
	)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.service.Issues(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// rowsResponse is the paginated rows payload.
type rowsResponse struct {
	Offset        int        `json:"offset"`
	Limit         int        `json:"limit"`
	TotalRows     int        `json:"total_rows"`
	TotalFiltered int        `json:"total_filtered"`
	Rows          []rows.Row `json:"rows"`
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parsePagination(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	filters, err := parseRowFilters(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	page, record, err := s.service.Rows(r.Context(), chi.URLParam(r, "jobID"), offset, limit, filters)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rowsResponse{
		Offset:        offset,
		Limit:         limit,
		TotalRows:     record.Dataset.TotalRows,
		TotalFiltered: page.TotalFiltered,
		Rows:          page.Rows,
	})
}

// mutationResponse is returned by both edit endpoints.
type mutationResponse struct {
	Validation validate.Summary `json:"validation"`
	Issues     []validate.Issue `json:"issues"`
}

func (s *Server) handleEdits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edits []job.CellEdit `json:"edits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, r, apperr.New(apperr.InvalidEdit, "Invalid edit payload."))
		return
	}

	result, err := s.service.ApplyEdits(r.Context(), chi.URLParam(r, "jobID"), req.Edits)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Validation: result.Summary, Issues: result.Issues})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActionType      string `json:"action_type"`
		Column          string `json:"column"`
		ApplyTo         string `json:"apply_to"`
		CaseInsensitive bool   `json:"case_insensitive"`
		Params          struct {
			Mapping map[string]*string `json:"mapping"`
			Default *string            `json:"default"`
			From    string             `json:"from"`
			To      string             `json:"to"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, r, apperr.New(apperr.InvalidBulk, "Invalid bulk payload."))
		return
	}

	result, err := s.service.ApplyBulk(r.Context(), chi.URLParam(r, "jobID"), job.BulkRequest{
		ActionType:      req.ActionType,
		Column:          req.Column,
		ApplyTo:         req.ApplyTo,
		Mapping:         req.Params.Mapping,
		Default:         req.Params.Default,
		From:            req.Params.From,
		To:              req.Params.To,
		CaseInsensitive: req.CaseInsensitive,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Validation: result.Summary, Issues: result.Issues})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.service.Export(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cleaned.csv"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parsePagination reads offset and limit query parameters. Offset defaults
// to 0, limit to defaultPageSize; both must be sane or the request fails.
func parsePagination(r *http.Request) (int, int, error) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, apperr.New(apperr.InvalidParams, "offset must be a non-negative integer.").
				WithDetail("offset", raw)
		}
		offset = v
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageSize {
			return 0, 0, apperr.New(apperr.InvalidParams, "limit must be between 1 and 500.").
				WithDetail("limit", raw)
		}
		limit = v
	}
	return offset, limit, nil
}

// parseRowFilters decodes the optional filters query parameter, a JSON list
// of {column, op, value}.
func parseRowFilters(r *http.Request) ([]rows.Filter, error) {
	raw := r.URL.Query().Get("filters")
	if raw == "" {
		return nil, nil
	}
	var filters []rows.Filter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, apperr.New(apperr.InvalidParams, "filters must be a JSON list of {column, op, value}.")
	}
	return filters, nil
}
