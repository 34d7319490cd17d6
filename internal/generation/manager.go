package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/resolve"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// Store is the persistence the manager needs. Lookups return nil, nil when
// the row does not exist.
type Store interface {
	ContentStore
	JobStore
	GetTemplate(ctx context.Context, id uuid.UUID) (*types.Template, error)
	GetTemplateForSubsection(ctx context.Context, subsectionID uuid.UUID) (*types.Template, error)
	GetRunInputs(ctx context.Context, templateID uuid.UUID) (map[string]any, error)
	SaveRunInputs(ctx context.Context, templateID uuid.UUID, inputs map[string]any) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.JobView, error)
	DismissJob(ctx context.Context, id uuid.UUID) error
}

// ManagerConfig holds the collaborators of a Manager
type ManagerConfig struct {
	Store      Store
	Registry   schema.Registry
	Retriever  Retriever
	Generator  Generator
	Aliases    precheck.Aliases
	Logger     *zap.Logger
	OnProgress ProgressCallback
	// Now is the clock used to pick the default run period
	Now func() time.Time
}

// StartRequest are the caller-supplied values for a run
type StartRequest struct {
	RunInputs map[string]any `json:"run_inputs"`
	Period    *period.Period `json:"period,omitempty"`
}

// Manager starts generation runs in the background and answers status queries.
// A template has at most one active run; runs of different templates proceed
// concurrently.
type Manager struct {
	store    Store
	registry schema.Registry
	aliases  precheck.Aliases
	orch     *Orchestrator
	logger   *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[uuid.UUID]*Job
	running map[uuid.UUID]uuid.UUID
}

// NewManager creates a manager. Call Shutdown to stop in-flight runs.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    cfg.Store,
		registry: cfg.Registry,
		aliases:  cfg.Aliases,
		orch: &Orchestrator{
			Retriever:  cfg.Retriever,
			Generator:  cfg.Generator,
			Content:    cfg.Store,
			Jobs:       cfg.Store,
			Logger:     logger,
			OnProgress: cfg.OnProgress,
		},
		logger:  logger,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[uuid.UUID]*Job),
		running: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *Manager) load(ctx context.Context, templateID uuid.UUID) (*types.Template, *schema.Catalog, error) {
	tmpl, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, nil, ErrTemplateNotFound
	}
	cat, err := schema.Snapshot(ctx, m.registry)
	if err != nil {
		return nil, nil, err
	}
	return tmpl, cat, nil
}

// CheckRequirements reports what a run of the template needs before it can start
func (m *Manager) CheckRequirements(ctx context.Context, templateID uuid.UUID, runInputs map[string]any) (*precheck.Requirements, error) {
	tmpl, cat, err := m.load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	saved, err := m.store.GetRunInputs(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved run inputs: %w", err)
	}
	if saved == nil {
		saved = map[string]any{}
	}

	merged := make(map[string]any, len(saved)+len(runInputs))
	for k, v := range saved {
		merged[k] = v
	}
	for k, v := range runInputs {
		merged[k] = v
	}
	req := precheck.Check(tmpl, cat, precheck.Options{RunInputs: merged, Aliases: m.aliases})
	req.SavedRunInputs = saved
	return req, nil
}

// Start validates the whole document and starts a background run. It returns
// the pending job; callers poll Status for progress.
func (m *Manager) Start(ctx context.Context, templateID uuid.UUID, sr StartRequest) (*types.JobView, error) {
	tmpl, cat, err := m.load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	current, err := runPeriod(sr, m.now())
	if err != nil {
		return nil, err
	}

	opts := precheck.Options{RunInputs: sr.RunInputs, Aliases: m.aliases, Period: &current, Final: true}
	req := precheck.Check(tmpl, cat, opts)
	if len(req.BlockingErrors) > 0 {
		if names := req.BlockingErrors.MissingInputs(); names != nil {
			return nil, &precheck.MissingInputsError{Names: names, Blocking: req.BlockingErrors}
		}
		return nil, req.BlockingErrors
	}
	inputs := precheck.Inputs(req, opts)

	m.mu.Lock()
	if active, busy := m.running[tmpl.ID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (job %s)", ErrRunInProgress, active)
	}
	job := newJob(tmpl, current, inputs, m.now)
	m.jobs[job.ID()] = job
	m.running[tmpl.ID] = job.ID()
	m.wg.Add(1)
	m.mu.Unlock()

	if len(sr.RunInputs) > 0 {
		if err := m.store.SaveRunInputs(ctx, tmpl.ID, sr.RunInputs); err != nil {
			m.logger.Warn("failed to save run inputs", zap.String("template_id", tmpl.ID.String()), zap.Error(err))
		}
	}

	view := job.View()
	go func() {
		defer m.wg.Done()
		defer m.release(tmpl.ID, job.ID())
		m.orch.Run(m.ctx, tmpl, cat, resolve.Context{Current: current, RunInputs: inputs}, job)
	}()
	return view, nil
}

func (m *Manager) release(templateID, jobID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[templateID] == jobID {
		delete(m.running, templateID)
	}
}

// Status returns the job's current view. Jobs no longer in memory are read from the store.
func (m *Manager) Status(ctx context.Context, templateID, jobID uuid.UUID) (*types.JobView, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if ok {
		view := job.View()
		if view.TemplateID != templateID {
			return nil, ErrJobNotFound
		}
		return view, nil
	}

	view, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if view == nil || view.TemplateID != templateID || view.Dismissed {
		return nil, ErrJobNotFound
	}
	return view, nil
}

// Dismiss removes a finished job from view
func (m *Manager) Dismiss(ctx context.Context, templateID, jobID uuid.UUID) error {
	view, err := m.Status(ctx, templateID, jobID)
	if err != nil {
		return err
	}
	if !view.Status.Terminal() {
		return ErrJobActive
	}
	if err := m.store.DismissJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to dismiss job: %w", err)
	}
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
	return nil
}

// RunSingle generates one subsection now. Saved run inputs are used for any
// variable not supplied in sr.
func (m *Manager) RunSingle(ctx context.Context, subsectionID uuid.UUID, sr StartRequest) (*types.Version, error) {
	tmpl, err := m.store.GetTemplateForSubsection(ctx, subsectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, ErrSubsectionNotFound
	}
	cat, err := schema.Snapshot(ctx, m.registry)
	if err != nil {
		return nil, err
	}
	current, err := runPeriod(sr, m.now())
	if err != nil {
		return nil, err
	}

	saved, err := m.store.GetRunInputs(ctx, tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved run inputs: %w", err)
	}
	inputs := make(map[string]any, len(saved)+len(sr.RunInputs))
	for k, v := range saved {
		inputs[k] = v
	}
	for k, v := range sr.RunInputs {
		inputs[k] = v
	}
	var names []string
	if _, sub, ok := tmpl.Subsection(subsectionID); ok {
		for _, in := range sub.DataInputs {
			names = append(names, in.Parameters.VariableNames()...)
		}
	}
	inputs = precheck.ApplyAliases(inputs, names, m.aliases, &current)

	return m.orch.RunSingle(ctx, tmpl, cat, resolve.Context{Current: current, RunInputs: inputs}, subsectionID)
}

// Wait blocks until every started run has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels in-flight runs and waits for them to record their final state
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("generation runs did not stop: %w", ctx.Err())
	}
}

var (
	yearDef    = schema.ParameterDefinition{Key: precheck.SharedFiscalYear, Type: schema.TypeInteger}
	quarterDef = schema.ParameterDefinition{Key: precheck.SharedFiscalQuarter, Type: schema.TypeString}
)

// runPeriod picks the run's current period: explicit, then the shared period
// run inputs, then the calendar quarter containing now
func runPeriod(sr StartRequest, now time.Time) (period.Period, error) {
	if sr.Period != nil {
		if err := sr.Period.Validate(); err != nil {
			return period.Period{}, &binding.ValidationError{Key: "period", Message: err.Error(), Cause: err}
		}
		return *sr.Period, nil
	}

	rawYear, hasYear := sr.RunInputs[precheck.SharedFiscalYear]
	rawQuarter, hasQuarter := sr.RunInputs[precheck.SharedFiscalQuarter]
	if hasYear && hasQuarter {
		year, err := binding.Coerce(yearDef, rawYear)
		if err != nil {
			return period.Period{}, &binding.ValidationError{Key: yearDef.Key, Message: err.Error(), Cause: err}
		}
		q, err := binding.Coerce(quarterDef, rawQuarter)
		if err != nil {
			return period.Period{}, &binding.ValidationError{Key: quarterDef.Key, Message: err.Error(), Cause: err}
		}
		quarter, err := period.ParseQuarter(strings.TrimSpace(fmt.Sprint(q)))
		if err != nil {
			return period.Period{}, &binding.ValidationError{Key: quarterDef.Key, Message: err.Error(), Cause: err}
		}
		p := period.Period{FiscalYear: int(year.(int64)), FiscalQuarter: quarter}
		if err := p.Validate(); err != nil {
			return period.Period{}, &binding.ValidationError{Key: "period", Message: err.Error(), Cause: err}
		}
		return p, nil
	}
	return period.Containing(now), nil
}
