package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/period"
)

// JobStatus is the state of a generation job or of one of its records
type JobStatus string

// Job and record states
const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions happen
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord tracks one subsection within a job
type JobRecord struct {
	SubsectionID    uuid.UUID  `json:"subsection_id"`
	SectionID       uuid.UUID  `json:"section_id"`
	SectionTitle    string     `json:"section_title"`
	SubsectionTitle string     `json:"subsection_title"`
	Status          JobStatus  `json:"status"`
	Error           string     `json:"error,omitempty"`
	VersionNumber   int        `json:"version_number,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobView is a point-in-time snapshot of a generation job
type JobView struct {
	ID           uuid.UUID      `json:"id"`
	TemplateID   uuid.UUID      `json:"template_id"`
	Status       JobStatus      `json:"status"`
	CurrentIndex int            `json:"current_index"`
	Total        int            `json:"total"`
	Period       period.Period  `json:"period"`
	RunInputs    map[string]any `json:"run_inputs,omitempty"`
	Records      []JobRecord    `json:"records"`
	Dismissed    bool           `json:"dismissed"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Failed returns the records that failed
func (v *JobView) Failed() []JobRecord {
	var out []JobRecord
	for _, r := range v.Records {
		if r.Status == JobFailed {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns the number of records in each state
func (v *JobView) Counts() map[JobStatus]int {
	counts := make(map[JobStatus]int, 4)
	for _, r := range v.Records {
		counts[r.Status]++
	}
	return counts
}
