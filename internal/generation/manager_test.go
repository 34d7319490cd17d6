package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/types"
)

func newManager(t *testing.T, store *memStore, gen *fakeGenerator) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		Store:     store,
		Registry:  testCatalog(t),
		Retriever: &fakeRetriever{},
		Generator: gen,
		Now:       func() time.Time { return time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return m
}

func TestManager_StartAndStatus(t *testing.T) {
	tmpl := newDocument("RY", "TD")
	sub(tmpl, 0).DataInputs[0].Parameters["fiscal_year"] = binding.PeriodBinding{Selector: period.CurrentFiscalYear}
	sub(tmpl, 1).DataInputs[0].Parameters["bank"] = binding.VariableBinding{Name: "bank_scope"}
	store := newMemStore(tmpl)
	m := newManager(t, store, &fakeGenerator{})

	view, err := m.Start(context.Background(), tmpl.ID, StartRequest{RunInputs: map[string]any{"bank_scope": "CM"}})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, period.Period{FiscalYear: 2025, FiscalQuarter: period.Q2}, view.Period, "defaults to the calendar quarter")

	m.Wait()
	status, err := m.Status(context.Background(), tmpl.ID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, status.Status)
	assert.NotNil(t, status.CompletedAt)
	assert.Equal(t, map[string]any{"bank_scope": "CM"}, store.runInputs[tmpl.ID])

	_, err = m.Status(context.Background(), uuid.New(), view.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_RefusesBlockedRun(t *testing.T) {
	tmpl := newDocument("RY")
	sub(tmpl, 0).DataInputs = nil
	m := newManager(t, newMemStore(tmpl), &fakeGenerator{})

	_, err := m.Start(context.Background(), tmpl.ID, StartRequest{})
	var blocking precheck.BlockingErrors
	require.True(t, errors.As(err, &blocking))
	assert.Len(t, blocking, 1)
}

func TestManager_MissingRunInputs(t *testing.T) {
	tmpl := newDocument("RY")
	sub(tmpl, 0).DataInputs[0].Parameters["bank"] = binding.VariableBinding{Name: "bank_scope"}
	m := newManager(t, newMemStore(tmpl), &fakeGenerator{})

	_, err := m.Start(context.Background(), tmpl.ID, StartRequest{})
	var missing *precheck.MissingInputsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"bank_scope"}, missing.Names)

	require.Len(t, missing.Blocking, 1)
	assert.Equal(t, "Sub 1", missing.Blocking[0].SubsectionTitle)
	assert.Equal(t, "Section 1", missing.Blocking[0].SectionTitle)
	assert.Equal(t, sub(tmpl, 0).ID, missing.Blocking[0].SubsectionID)
	assert.Equal(t, "bank_scope", missing.Blocking[0].Input)
	assert.Contains(t, err.Error(), "Section 1 / Sub 1")
}

func TestManager_OneActiveRunPerTemplate(t *testing.T) {
	first := newDocument("RY")
	second := newDocument("TD")
	gen := &fakeGenerator{gate: make(chan struct{})}
	m := newManager(t, newMemStore(first, second), gen)

	view, err := m.Start(context.Background(), first.ID, StartRequest{})
	require.NoError(t, err)

	_, err = m.Start(context.Background(), first.ID, StartRequest{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = m.Start(context.Background(), second.ID, StartRequest{})
	require.NoError(t, err, "other templates run concurrently")

	assert.ErrorIs(t, m.Dismiss(context.Background(), first.ID, view.ID), ErrJobActive)

	close(gen.gate)
	m.Wait()

	_, err = m.Start(context.Background(), first.ID, StartRequest{})
	require.NoError(t, err)
	m.Wait()
}

func TestManager_DismissAndStoreFallback(t *testing.T) {
	tmpl := newDocument("RY")
	store := newMemStore(tmpl)
	m := newManager(t, store, &fakeGenerator{})

	view, err := m.Start(context.Background(), tmpl.ID, StartRequest{})
	require.NoError(t, err)
	m.Wait()

	// a fresh manager only has the store
	other := newManager(t, store, &fakeGenerator{})
	status, err := other.Status(context.Background(), tmpl.ID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, status.Status)

	require.NoError(t, m.Dismiss(context.Background(), tmpl.ID, view.ID))
	_, err = m.Status(context.Background(), tmpl.ID, view.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_ExplicitAndInputPeriod(t *testing.T) {
	tmpl := newDocument("RY")
	sub(tmpl, 0).DataInputs[0].Parameters["fiscal_year"] = binding.VariableBinding{Name: "rbc_period_fiscal_year"}
	store := newMemStore(tmpl)
	m := newManager(t, store, &fakeGenerator{})

	view, err := m.Start(context.Background(), tmpl.ID, StartRequest{
		RunInputs: map[string]any{precheck.SharedFiscalYear: "2023", precheck.SharedFiscalQuarter: "q4"},
	})
	require.NoError(t, err)
	assert.Equal(t, period.Period{FiscalYear: 2023, FiscalQuarter: period.Q4}, view.Period)
	assert.Equal(t, "2023", view.RunInputs["rbc_period_fiscal_year"])
	m.Wait()

	_, err = m.Start(context.Background(), tmpl.ID, StartRequest{Period: &period.Period{FiscalYear: 2025, FiscalQuarter: "Q5"}})
	var ve *binding.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestManager_CheckRequirementsReturnsSavedInputs(t *testing.T) {
	tmpl := newDocument("RY")
	sub(tmpl, 0).DataInputs[0].Parameters["bank"] = binding.VariableBinding{Name: "bank_scope"}
	store := newMemStore(tmpl)
	store.runInputs[tmpl.ID] = map[string]any{"bank_scope": "NA"}
	m := newManager(t, store, &fakeGenerator{})

	req, err := m.CheckRequirements(context.Background(), tmpl.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, req.BlockingErrors)
	assert.Equal(t, []string{"bank_scope"}, req.Names())
	assert.Equal(t, "NA", req.SavedRunInputs["bank_scope"])

	_, err = m.CheckRequirements(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestManager_RunSingleUsesSavedInputs(t *testing.T) {
	tmpl := newDocument("RY")
	s := sub(tmpl, 0)
	s.DataInputs[0].Parameters["bank"] = binding.VariableBinding{Name: "bank_scope"}
	store := newMemStore(tmpl)
	store.runInputs[tmpl.ID] = map[string]any{"bank_scope": "BNS"}
	m := newManager(t, store, &fakeGenerator{})

	v, err := m.RunSingle(context.Background(), s.ID, StartRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.GeneratedByRun, v.GeneratedBy)

	_, err = m.RunSingle(context.Background(), uuid.New(), StartRequest{})
	assert.ErrorIs(t, err, ErrSubsectionNotFound)
}
