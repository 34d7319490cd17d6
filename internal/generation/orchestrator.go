package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/readiness"
	"github.com/alexwday/report-designer/internal/resolve"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// Retriever executes a retrieval call against a data source
type Retriever interface {
	Invoke(ctx context.Context, sourceID, methodID string, params map[string]any) (*types.Payload, error)
}

// Request is everything a generator is given for one subsection
type Request struct {
	SectionTitle    string
	SubsectionTitle string
	Instructions    string
	Notes           string
	WidgetType      types.WidgetType
	Payloads        []*types.Payload
	Dependencies    []dependency.Item
}

// Output is generated content
type Output struct {
	Content     string
	ContentType string
}

// Generator produces content from retrieved data
type Generator interface {
	Generate(ctx context.Context, req Request) (*Output, error)
}

// ContentStore appends and reads subsection versions
type ContentStore interface {
	AppendVersion(ctx context.Context, subsectionID uuid.UUID, input types.VersionInput) (*types.Version, error)
	ReadCurrent(ctx context.Context, subsectionIDs []uuid.UUID) (map[uuid.UUID]*types.Version, error)
}

// JobStore persists job snapshots
type JobStore interface {
	SaveJob(ctx context.Context, job *types.JobView) error
}

// ProgressEvent is emitted on every record transition
type ProgressEvent struct {
	JobID        uuid.UUID       `json:"job_id"`
	SubsectionID uuid.UUID       `json:"subsection_id"`
	Status       types.JobStatus `json:"status"`
	Message      string          `json:"message,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Orchestrator runs subsections through retrieval, generation and persistence
type Orchestrator struct {
	Retriever  Retriever
	Generator  Generator
	Content    ContentStore
	Jobs       JobStore
	Logger     *zap.Logger
	OnProgress ProgressCallback
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Run executes job over tmpl. Subsections run strictly one after another in
// document order, so later subsections can use content produced earlier in the
// run. A failed subsection is recorded and the run continues. When ctx is
// cancelled, subsections that have not started are marked failed.
func (o *Orchestrator) Run(ctx context.Context, tmpl *types.Template, cat *schema.Catalog, rc resolve.Context, job *Job) {
	log := o.logger().With(zap.String("job_id", job.ID().String()), zap.String("template_id", tmpl.ID.String()))
	job.start()
	o.save(ctx, job)
	log.Info("generation run started", zap.String("period", rc.Current.String()), zap.Int("subsections", job.View().Total))

	plan := resolve.Document(tmpl, cat, rc)
	produced := make(map[uuid.UUID]*types.Version)

	for _, id := range job.order() {
		if err := ctx.Err(); err != nil {
			job.failRemaining(ErrCancelled)
			log.Warn("generation run cancelled", zap.Error(err))
			break
		}
		sec, sub, ok := tmpl.Subsection(id)
		if !ok {
			job.fail(id, ErrSubsectionNotFound)
			continue
		}
		if !job.begin(id) {
			continue
		}
		o.progress(job, id, types.JobInProgress, "")
		o.save(ctx, job)

		var version *types.Version
		err, planned := plan.Errors[id]
		if planned {
			err = &ResolutionError{Cause: err}
		} else {
			version, err = o.step(ctx, tmpl, sec, sub, plan.Calls[id], produced)
		}

		if err != nil {
			job.fail(id, err)
			log.Warn("subsection failed", zap.String("subsection_id", id.String()), zap.String("status", string(types.JobFailed)), zap.Error(err))
			o.progress(job, id, types.JobFailed, err.Error())
		} else {
			produced[id] = version
			job.complete(id, version.VersionNumber)
			log.Info("subsection completed", zap.String("subsection_id", id.String()), zap.String("status", string(types.JobCompleted)), zap.Int("version", version.VersionNumber))
			o.progress(job, id, types.JobCompleted, "")
		}
		o.save(ctx, job)
	}

	status := job.finish()
	// the final snapshot is written even when the run context is gone
	o.save(context.WithoutCancel(ctx), job)
	view := job.View()
	log.Info("generation run finished", zap.String("status", string(status)), zap.Int("failed", len(view.Failed())))
}

// RunSingle generates one subsection outside a document run. Only the subsection's
// own readiness is required; dependencies read stored content.
func (o *Orchestrator) RunSingle(ctx context.Context, tmpl *types.Template, cat *schema.Catalog, rc resolve.Context, subsectionID uuid.UUID) (*types.Version, error) {
	sec, sub, ok := tmpl.Subsection(subsectionID)
	if !ok {
		return nil, ErrSubsectionNotFound
	}
	if res := readiness.Subsection(sub, cat); !res.Ready {
		return nil, &ReadinessError{Issues: res.Issues}
	}
	calls, err := resolve.Subsection(sub, cat, rc)
	if err != nil {
		return nil, &ResolutionError{Cause: err}
	}
	version, err := o.step(ctx, tmpl, sec, sub, calls, nil)
	if err != nil {
		o.logger().Warn("single subsection generation failed", zap.String("subsection_id", subsectionID.String()), zap.Error(err))
		return nil, err
	}
	o.logger().Info("single subsection generated", zap.String("subsection_id", subsectionID.String()), zap.Int("version", version.VersionNumber))
	return version, nil
}

// step gathers dependencies, retrieves, generates and appends a version
func (o *Orchestrator) step(ctx context.Context, tmpl *types.Template, sec *types.Section, sub *types.Subsection, calls []resolve.Call, produced map[uuid.UUID]*types.Version) (*types.Version, error) {
	deps, err := dependency.Gather(ctx, tmpl, sub, produced, o.Content)
	if err != nil {
		return nil, &PersistenceError{Message: "failed to gather dependency content", Cause: err}
	}

	payloads := make([]*types.Payload, 0, len(calls))
	for _, call := range calls {
		payload, err := o.Retriever.Invoke(ctx, call.SourceID, call.MethodID, call.Params)
		if err != nil {
			return nil, &RetrievalError{SourceID: call.SourceID, MethodID: call.MethodID, Cause: err}
		}
		payloads = append(payloads, payload)
	}

	out, err := o.Generator.Generate(ctx, Request{
		SectionTitle:    sec.Title,
		SubsectionTitle: sub.Title,
		Instructions:    sub.Instructions,
		Notes:           sub.Notes,
		WidgetType:      sub.WidgetType,
		Payloads:        payloads,
		Dependencies:    deps.Items,
	})
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return nil, err
		}
		return nil, &GenerationError{Message: "generator returned an error", Cause: err}
	}
	if out == nil {
		return nil, &GenerationError{Message: "generator returned no content"}
	}

	version, err := o.Content.AppendVersion(ctx, sub.ID, types.VersionInput{
		Content:      out.Content,
		ContentType:  out.ContentType,
		Instructions: sub.Instructions,
		GeneratedBy:  types.GeneratedByRun,
	})
	if err != nil {
		return nil, &PersistenceError{Message: fmt.Sprintf("failed to store version for %q", sub.Title), Cause: err}
	}
	return version, nil
}

func (o *Orchestrator) save(ctx context.Context, job *Job) {
	if o.Jobs == nil {
		return
	}
	if err := o.Jobs.SaveJob(ctx, job.View()); err != nil {
		o.logger().Warn("failed to persist job snapshot", zap.String("job_id", job.ID().String()), zap.Error(err))
	}
}

func (o *Orchestrator) progress(job *Job, id uuid.UUID, status types.JobStatus, msg string) {
	if o.OnProgress == nil {
		return
	}
	o.OnProgress(ProgressEvent{JobID: job.ID(), SubsectionID: id, Status: status, Message: msg})
}
