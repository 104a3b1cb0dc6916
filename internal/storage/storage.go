// Package storage owns the on-disk layout for import jobs. Every job gets a
// directory tree under <root>/jobs/<job_id> with conventional subpaths for
// the original upload, the working table, and export copies.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkingFileName is the working table's file name inside the working dir.
const WorkingFileName = "working.csv"

// ExportFileName is the export copy's file name inside the exports dir.
const ExportFileName = "cleaned.csv"

// JobPaths holds the directory tree for one job.
type JobPaths struct {
	Root     string
	Original string
	Working  string
	Exports  string
}

// EnsureLayout creates the storage root and its jobs directory.
func EnsureLayout(root string) error {
	if err := os.MkdirAll(filepath.Join(root, "jobs"), 0o755); err != nil {
		return fmt.Errorf("ensure storage layout: %w", err)
	}
	return nil
}

// PathsFor returns the conventional paths for a job without creating them.
func PathsFor(root, jobID string) JobPaths {
	jobRoot := filepath.Join(root, "jobs", jobID)
	return JobPaths{
		Root:     jobRoot,
		Original: filepath.Join(jobRoot, "original"),
		Working:  filepath.Join(jobRoot, "working"),
		Exports:  filepath.Join(jobRoot, "exports"),
	}
}

// CreateJobDirs creates the full directory tree for a job.
func CreateJobDirs(root, jobID string) (JobPaths, error) {
	paths := PathsFor(root, jobID)
	for _, dir := range []string{paths.Root, paths.Original, paths.Working, paths.Exports} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return JobPaths{}, fmt.Errorf("create job dirs: %w", err)
		}
	}
	return paths, nil
}

// WorkingFile is the path of the job's working table.
func (p JobPaths) WorkingFile() string {
	return filepath.Join(p.Working, WorkingFileName)
}

// ExportFile is the path of the job's export copy.
func (p JobPaths) ExportFile() string {
	return filepath.Join(p.Exports, ExportFileName)
}

// OriginalFile is the path for the saved upload. The client-supplied name is
// reduced to its base so it cannot escape the job directory.
func (p JobPaths) OriginalFile(fileName string) string {
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.bin"
	}
	return filepath.Join(p.Original, name)
}
