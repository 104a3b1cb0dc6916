// Package job binds one upload to its working table, dataset descriptor,
// validation state, and storage, and orchestrates every operation the HTTP
// layer exposes. At most one job is active in the process at a time.
package job

import (
	"sync"

	"github.com/databuddy/hrimport/internal/ingest"
	"github.com/databuddy/hrimport/internal/validate"
)

// StatusReady is the only status a surviving job carries: jobs are created
// fully ingested and validated or not at all.
const StatusReady = "ready"

// Limits are the fixed per-job caps, echoed in job metadata.
type Limits struct {
	MaxRows  int   `json:"max_rows"`
	MaxBytes int64 `json:"max_bytes"`
}

// Record is the durable job document. Dataset is immutable after creation;
// Validation and Issues are replaced on every mutation.
type Record struct {
	JobID         string             `json:"job_id"`
	Status        string             `json:"status"`
	CreatedAt     string             `json:"created_at"`
	SchemaVersion string             `json:"schema_version"`
	Limits        Limits             `json:"limits"`
	Dataset       *ingest.Descriptor `json:"dataset"`
	Validation    *validate.Summary  `json:"validation"`
	Issues        []validate.Issue   `json:"issues"`
}

// Slot is the process-wide single-active-job holder. It is created once by
// the serving layer and handed to the service, rather than living as a
// package global.
type Slot struct {
	mu     sync.Mutex
	active string
}

func NewSlot() *Slot { return &Slot{} }

// Acquire claims the slot for jobID. It fails if another job holds it.
func (s *Slot) Acquire(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return false
	}
	s.active = jobID
	return true
}

// Active returns the id of the job holding the slot, or empty.
func (s *Slot) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Release clears the slot if jobID holds it.
func (s *Slot) Release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == jobID {
		s.active = ""
	}
}
