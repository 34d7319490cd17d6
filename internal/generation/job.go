package generation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/types"
)

// Job is the live state of one generation run. It is safe for concurrent use;
// readers take snapshots with View.
type Job struct {
	mu    sync.RWMutex
	view  types.JobView
	index map[uuid.UUID]int
	now   func() time.Time
}

// NewJob creates a pending job with one pending record per eligible subsection,
// in document order
func NewJob(tmpl *types.Template, current period.Period, runInputs map[string]any) *Job {
	return newJob(tmpl, current, runInputs, time.Now)
}

func newJob(tmpl *types.Template, current period.Period, runInputs map[string]any, now func() time.Time) *Job {
	ts := now().UTC()
	j := &Job{
		view: types.JobView{
			ID:         uuid.New(),
			TemplateID: tmpl.ID,
			Status:     types.JobPending,
			Period:     current,
			RunInputs:  runInputs,
			Records:    []types.JobRecord{},
			CreatedAt:  ts,
			UpdatedAt:  ts,
		},
		index: make(map[uuid.UUID]int),
		now:   now,
	}
	for _, e := range tmpl.Ordered() {
		if !e.Subsection.Eligible() {
			continue
		}
		j.index[e.Subsection.ID] = len(j.view.Records)
		j.view.Records = append(j.view.Records, types.JobRecord{
			SubsectionID:    e.Subsection.ID,
			SectionID:       e.Section.ID,
			SectionTitle:    e.Section.Title,
			SubsectionTitle: e.Subsection.Title,
			Status:          types.JobPending,
		})
	}
	j.view.Total = len(j.view.Records)
	return j
}

// ID returns the job ID
func (j *Job) ID() uuid.UUID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view.ID
}

// TemplateID returns the template the job runs over
func (j *Job) TemplateID() uuid.UUID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view.TemplateID
}

// Period returns the run period captured at start
func (j *Job) Period() period.Period {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view.Period
}

// Status returns the job status
func (j *Job) Status() types.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view.Status
}

// View returns a snapshot safe to hand to other goroutines
func (j *Job) View() *types.JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v := j.view
	v.Records = make([]types.JobRecord, len(j.view.Records))
	copy(v.Records, j.view.Records)
	if j.view.RunInputs != nil {
		v.RunInputs = make(map[string]any, len(j.view.RunInputs))
		for k, val := range j.view.RunInputs {
			v.RunInputs[k] = val
		}
	}
	return &v
}

// order returns the subsection IDs in run order
func (j *Job) order() []uuid.UUID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := make([]uuid.UUID, len(j.view.Records))
	for i, r := range j.view.Records {
		ids[i] = r.SubsectionID
	}
	return ids
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.view.Status == types.JobPending {
		j.view.Status = types.JobInProgress
		j.view.UpdatedAt = j.now().UTC()
	}
}

func (j *Job) begin(id uuid.UUID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	i, ok := j.index[id]
	if !ok || j.view.Records[i].Status != types.JobPending {
		return false
	}
	ts := j.now().UTC()
	j.view.Records[i].Status = types.JobInProgress
	j.view.Records[i].StartedAt = &ts
	j.view.CurrentIndex = i + 1
	j.view.UpdatedAt = ts
	return true
}

func (j *Job) complete(id uuid.UUID, versionNumber int) {
	j.finishRecord(id, types.JobCompleted, versionNumber, "")
}

func (j *Job) fail(id uuid.UUID, err error) {
	j.finishRecord(id, types.JobFailed, 0, err.Error())
}

func (j *Job) finishRecord(id uuid.UUID, status types.JobStatus, versionNumber int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	i, ok := j.index[id]
	if !ok || j.view.Records[i].Status.Terminal() {
		return
	}
	ts := j.now().UTC()
	rec := &j.view.Records[i]
	rec.Status = status
	rec.VersionNumber = versionNumber
	rec.Error = msg
	rec.CompletedAt = &ts
	j.view.UpdatedAt = ts
}

// failRemaining marks every record that has not started as failed
func (j *Job) failRemaining(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ts := j.now().UTC()
	for i := range j.view.Records {
		rec := &j.view.Records[i]
		if rec.Status == types.JobPending {
			rec.Status = types.JobFailed
			rec.Error = err.Error()
			rec.CompletedAt = &ts
		}
	}
	j.view.UpdatedAt = ts
}

// finish sets the job's terminal status from its records
func (j *Job) finish() types.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	status := types.JobCompleted
	for _, r := range j.view.Records {
		if r.Status != types.JobCompleted {
			status = types.JobFailed
			break
		}
	}
	ts := j.now().UTC()
	j.view.Status = status
	j.view.UpdatedAt = ts
	j.view.CompletedAt = &ts
	return status
}
