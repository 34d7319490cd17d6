package generation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/types"
)

func TestJobTransitions(t *testing.T) {
	tmpl := newDocument("RY", "TD")
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	job := newJob(tmpl, period.Period{FiscalYear: 2025, FiscalQuarter: period.Q1}, nil, func() time.Time { return clock })

	view := job.View()
	assert.Equal(t, types.JobPending, view.Status)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, 0, view.CurrentIndex)

	job.start()
	a, b := sub(tmpl, 0).ID, sub(tmpl, 1).ID
	assert.True(t, job.begin(a))
	assert.False(t, job.begin(a), "a record starts once")
	assert.Equal(t, 1, job.View().CurrentIndex)

	job.complete(a, 3)
	job.fail(a, errors.New("late failure"))
	assert.Equal(t, types.JobCompleted, job.View().Records[0].Status, "terminal records do not change")
	assert.Equal(t, 3, job.View().Records[0].VersionNumber)

	job.begin(b)
	job.fail(b, errors.New("boom"))
	assert.Equal(t, types.JobFailed, job.finish())
	assert.Equal(t, "boom", job.View().Records[1].Error)
}

func TestJobViewIsSnapshot(t *testing.T) {
	tmpl := newDocument("RY")
	job := NewJob(tmpl, period.Period{FiscalYear: 2025, FiscalQuarter: period.Q1}, map[string]any{"x": 1})

	view := job.View()
	view.Records[0].Status = types.JobFailed
	view.RunInputs["x"] = 2

	assert.Equal(t, types.JobPending, job.View().Records[0].Status)
	assert.Equal(t, 1, job.View().RunInputs["x"])
}
