package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/databuddy/hrimport/internal/apperr"
	"github.com/databuddy/hrimport/internal/edit"
	"github.com/databuddy/hrimport/internal/ingest"
	"github.com/databuddy/hrimport/internal/rows"
	"github.com/databuddy/hrimport/internal/schema"
	"github.com/databuddy/hrimport/internal/storage"
	"github.com/databuddy/hrimport/internal/store"
	"github.com/databuddy/hrimport/internal/table"
	"github.com/databuddy/hrimport/internal/validate"
)

// Service carries out all job operations. Requests against one job are
// serialized by the caller; the service itself only guarantees crash safety
// through the working table's atomic-replace discipline.
type Service struct {
	root  string
	limit Limits
	store *store.Store
	slot  *Slot
}

// NewService prepares storage and returns a ready service.
func NewService(root string, limit Limits, st *store.Store, slot *Slot) (*Service, error) {
	if err := storage.EnsureLayout(root); err != nil {
		return nil, err
	}
	return &Service{root: root, limit: limit, store: st, slot: slot}, nil
}

// Limits returns the fixed per-job caps.
func (s *Service) Limits() Limits { return s.limit }

// CellEdit is one single-cell mutation. A nil Value clears the cell.
type CellEdit struct {
	RowID  string  `json:"row_id"`
	Column string  `json:"column"`
	Value  *string `json:"value"`
}

// BulkRequest describes a bulk column operation. ActionType "map" consumes
// Mapping/Default; "replace" is sugar for a one-entry mapping.
type BulkRequest struct {
	ActionType      string
	Column          string
	ApplyTo         string
	Mapping         map[string]*string
	Default         *string
	From            string
	To              string
	CaseInsensitive bool
}

// CreateJob saves the upload, ingests it into a working table, runs the
// initial validation, persists the job documents, and occupies the active
// slot. Any failure along the way removes the job directory entirely.
func (s *Service) CreateJob(ctx context.Context, fileName string, src io.Reader) (*Record, error) {
	jobID := newJobID()
	if !s.slot.Acquire(jobID) {
		return nil, apperr.New(apperr.JobActive,
			"An import job is already active. Delete the current job before uploading a new file.")
	}

	record, err := s.createJob(ctx, jobID, fileName, src)
	if err != nil {
		s.slot.Release(jobID)
		return nil, err
	}
	return record, nil
}

func (s *Service) createJob(ctx context.Context, jobID, fileName string, src io.Reader) (*Record, error) {
	paths, err := storage.CreateJobDirs(s.root, jobID)
	if err != nil {
		return nil, err
	}
	cleanup := func() { os.RemoveAll(paths.Root) }

	originalPath := paths.OriginalFile(fileName)
	received, err := saveUpload(src, originalPath, s.limit.MaxBytes)
	if err != nil {
		cleanup()
		return nil, err
	}
	if received > s.limit.MaxBytes {
		cleanup()
		return nil, apperr.FileTooLarge(s.limit.MaxBytes).
			WithDetail("received_bytes", received)
	}

	descriptor, err := ingest.File(originalPath, paths.WorkingFile(), s.limit.MaxRows)
	if err != nil {
		cleanup()
		return nil, err
	}

	result, err := validate.WorkingTable(paths.WorkingFile())
	if err != nil {
		cleanup()
		return nil, err
	}

	record := &Record{
		JobID:         jobID,
		Status:        StatusReady,
		CreatedAt:     time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		SchemaVersion: schema.Version,
		Limits:        s.limit,
		Dataset:       descriptor,
		Validation:    &result.Summary,
		Issues:        result.Issues,
	}
	if err := s.persist(ctx, record); err != nil {
		cleanup()
		return nil, err
	}

	slog.Info("job created",
		"job_id", jobID,
		"rows", descriptor.TotalRows,
		"columns", descriptor.TotalColumns,
		"errors", result.Summary.ErrorCount,
	)
	return record, nil
}

// GetJob loads the durable job record.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Record, error) {
	document, err := s.store.LoadJob(ctx, jobID)
	if err == store.ErrNotFound {
		return nil, notFound(jobID)
	}
	if err != nil {
		return nil, err
	}
	record := &Record{}
	if err := json.Unmarshal(document, record); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return record, nil
}

// Issues returns the job's issue list, preferring the standalone issues
// document over the copy embedded in the record.
func (s *Service) Issues(ctx context.Context, jobID string) ([]validate.Issue, error) {
	document, err := s.store.LoadIssues(ctx, jobID)
	if err == store.ErrNotFound {
		record, err := s.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return record.Issues, nil
	}
	if err != nil {
		return nil, err
	}
	issues := []validate.Issue{}
	if err := json.Unmarshal(document, &issues); err != nil {
		return nil, fmt.Errorf("decode issues for %s: %w", jobID, err)
	}
	return issues, nil
}

// Rows returns one filtered page of the working table plus the job record
// the page was read from.
func (s *Service) Rows(ctx context.Context, jobID string, offset, limit int, filters []rows.Filter) (*rows.Page, *Record, error) {
	record, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	paths := storage.PathsFor(s.root, jobID)
	page, err := rows.Read(paths.WorkingFile(), record.Dataset.CanonicalColumns, offset, limit, filters)
	if err != nil {
		return nil, nil, err
	}
	return page, record, nil
}

// ApplyEdits applies single-cell edits, then revalidates and persists. The
// whole batch is checked before any cell changes: a batch with an unknown
// column or row id is rejected with the working table untouched, so the
// persisted validation state never describes data the batch half-mutated.
func (s *Service) ApplyEdits(ctx context.Context, jobID string, edits []CellEdit) (*validate.Result, error) {
	record, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return nil, apperr.New(apperr.InvalidEdit, "No edits supplied.")
	}
	paths := storage.PathsFor(s.root, jobID)

	for _, e := range edits {
		if e.RowID == "" || e.Column == "" {
			return nil, apperr.New(apperr.InvalidEdit, "Each edit needs a row_id and column.")
		}
		if !datasetHasColumn(record, e.Column) {
			return nil, apperr.New(apperr.InvalidEdit, "Unknown column for this dataset.").
				WithDetail("column", e.Column)
		}
	}
	if err := checkRowsExist(paths.WorkingFile(), edits); err != nil {
		return nil, err
	}

	applied := 0
	for _, e := range edits {
		found, err := edit.Cell(paths.WorkingFile(), e.RowID, e.Column, e.Value)
		if err == nil && !found {
			err = apperr.New(apperr.InvalidEdit, "Row not found.").
				WithDetail("row_id", e.RowID)
		}
		if err != nil {
			if applied > 0 {
				// Keep the stored validation in step with whatever committed.
				if _, rerr := s.revalidate(ctx, record, paths.WorkingFile()); rerr != nil {
					slog.Error("revalidate after failed edit batch", "job_id", jobID, "error", rerr)
				}
			}
			return nil, err
		}
		applied++
	}

	return s.revalidate(ctx, record, paths.WorkingFile())
}

// checkRowsExist verifies every edit's row id in one read pass, before any
// mutation.
func checkRowsExist(workingPath string, edits []CellEdit) error {
	pending := make(map[string]struct{}, len(edits))
	for _, e := range edits {
		pending[e.RowID] = struct{}{}
	}

	reader, err := table.OpenReader(workingPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	idx := reader.Index(schema.RowIDColumn)
	for len(pending) > 0 {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		delete(pending, table.Cell(record, idx))
	}
	for rowID := range pending {
		return apperr.New(apperr.InvalidEdit, "Row not found.").
			WithDetail("row_id", rowID)
	}
	return nil
}

// ApplyBulk runs one bulk column operation, then revalidates and persists.
func (s *Service) ApplyBulk(ctx context.Context, jobID string, req BulkRequest) (*validate.Result, error) {
	record, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	op, err := s.bulkOp(ctx, jobID, record, req)
	if err != nil {
		return nil, err
	}

	paths := storage.PathsFor(s.root, jobID)
	if err := edit.Bulk(paths.WorkingFile(), op); err != nil {
		return nil, err
	}
	return s.revalidate(ctx, record, paths.WorkingFile())
}

func (s *Service) bulkOp(ctx context.Context, jobID string, record *Record, req BulkRequest) (edit.BulkMap, error) {
	if req.Column == "" {
		return edit.BulkMap{}, apperr.New(apperr.InvalidBulk, "A target column is required.")
	}
	if !datasetHasColumn(record, req.Column) {
		return edit.BulkMap{}, apperr.New(apperr.InvalidBulk, "Unknown column for this dataset.").
			WithDetail("column", req.Column)
	}
	applyTo := edit.ApplyTo(req.ApplyTo)
	if req.ApplyTo != "" && !applyTo.Valid() {
		return edit.BulkMap{}, apperr.New(apperr.InvalidBulk, "apply_to must be all, missing, or errors.").
			WithDetail("apply_to", req.ApplyTo)
	}

	op := edit.BulkMap{
		Column:          req.Column,
		ApplyTo:         applyTo,
		Default:         req.Default,
		CaseInsensitive: req.CaseInsensitive,
	}

	switch req.ActionType {
	case "map", "":
		op.Mapping = req.Mapping
		if op.Mapping == nil {
			op.Mapping = map[string]*string{}
		}
	case "replace":
		if req.From == "" {
			return edit.BulkMap{}, apperr.New(apperr.InvalidBulk, "replace needs a non-empty from value.")
		}
		to := req.To
		op.Mapping = map[string]*string{req.From: &to}
	default:
		return edit.BulkMap{}, apperr.New(apperr.InvalidBulk, "action_type must be map or replace.").
			WithDetail("action_type", req.ActionType)
	}

	if applyTo == edit.ApplyErrors {
		errorRows, err := s.errorRows(ctx, jobID, req.Column)
		if err != nil {
			return edit.BulkMap{}, err
		}
		op.ErrorRows = errorRows
	}
	return op, nil
}

// errorRows collects the ids of rows currently carrying an error on the
// target column, from the freshest issues document.
func (s *Service) errorRows(ctx context.Context, jobID, column string) (map[string]struct{}, error) {
	issues, err := s.Issues(ctx, jobID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, issue := range issues {
		if issue.Severity == validate.SeverityError && issue.Column == column {
			set[issue.RowID] = struct{}{}
		}
	}
	return set, nil
}

// Export refreshes the export copy of the working table and returns its path.
func (s *Service) Export(ctx context.Context, jobID string) (string, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return "", err
	}
	paths := storage.PathsFor(s.root, jobID)
	if err := copyFile(paths.WorkingFile(), paths.ExportFile()); err != nil {
		return "", err
	}
	return paths.ExportFile(), nil
}

// Delete removes all job storage and documents, and frees the active slot if
// this job held it.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	paths := storage.PathsFor(s.root, jobID)
	if err := os.RemoveAll(paths.Root); err != nil {
		return fmt.Errorf("remove job storage: %w", err)
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.slot.Release(jobID)
	slog.Info("job deleted", "job_id", jobID)
	return nil
}

// revalidate reruns validation, replaces the record's validation fields, and
// persists both documents.
func (s *Service) revalidate(ctx context.Context, record *Record, workingPath string) (*validate.Result, error) {
	result, err := validate.WorkingTable(workingPath)
	if err != nil {
		return nil, err
	}
	record.Validation = &result.Summary
	record.Issues = result.Issues
	if err := s.persist(ctx, record); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) persist(ctx context.Context, record *Record) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", record.JobID, err)
	}
	if err := s.store.SaveJob(ctx, record.JobID, document); err != nil {
		return err
	}
	issuesDoc, err := json.Marshal(record.Issues)
	if err != nil {
		return fmt.Errorf("encode issues for %s: %w", record.JobID, err)
	}
	return s.store.SaveIssues(ctx, record.JobID, issuesDoc)
}

func datasetHasColumn(record *Record, column string) bool {
	if record.Dataset == nil || !schema.IsCanonical(column) {
		return false
	}
	for _, c := range record.Dataset.CanonicalColumns {
		if c == column {
			return true
		}
	}
	return false
}

func newJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func notFound(jobID string) error {
	return apperr.New(apperr.JobNotFound, "Job not found.").WithDetail("job_id", jobID)
}

// saveUpload streams the upload to disk, stopping one chunk past maxBytes so
// oversized bodies are detected without buffering them fully.
func saveUpload(src io.Reader, dest string, maxBytes int64) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return written, fmt.Errorf("save upload: %w", err)
	}
	return written, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return out.Close()
}
