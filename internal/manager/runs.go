package manager

import (
	"context"
	"fmt"

	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// FetchRuns replaces the runs slice.
func (m *Manager) FetchRuns(ctx context.Context) ([]models.Run, error) {
	items, err := m.actions.Execute(ctx, m.runsEnvelope())
	return models.Narrow[models.Run](items), err
}

// FetchRunsIfNeeded fetches the runs only when they were never loaded or
// have been invalidated, returning the cached runs otherwise.
func (m *Manager) FetchRunsIfNeeded(ctx context.Context) ([]models.Run, error) {
	items, err := m.actions.ExecuteIfNeeded(ctx, m.runsEnvelope(), 0)
	return models.Narrow[models.Run](items), ignoreInFlight(err)
}

func (m *Manager) runsEnvelope() action.Envelope {
	return action.Envelope{
		Key:          store.Key(store.KindRuns),
		Request:      api.Get(m.routes.Runs()),
		Decode:       action.List[models.Run](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching WES runs",
	}
}

// FetchRunDetails fetches the full record of one run.
func (m *Manager) FetchRunDetails(ctx context.Context, runID string) (models.RunDetails, error) {
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Scoped(store.KindRunDetails, runID),
		Request:      api.Get(m.routes.Run(runID)),
		Decode:       action.One[models.RunDetails](),
		Mode:         store.MergeReplace,
		ErrorMessage: fmt.Sprintf("Error fetching run details for run %s", runID),
	})
	if err != nil {
		return models.RunDetails{}, err
	}
	return items[0].(models.RunDetails), nil
}

// InvalidateRun marks the runs list and the details of runID stale.
func (m *Manager) InvalidateRun(runID string) {
	m.actions.Invalidate(store.Key(store.KindRuns))
	m.actions.Invalidate(store.Scoped(store.KindRunDetails, runID))
}

// RunDetails returns the cached details of runID.
func (m *Manager) RunDetails(runID string) (models.RunDetails, bool) {
	e, ok := m.Store().Get(store.Scoped(store.KindRunDetails, runID), runID)
	if !ok {
		return models.RunDetails{}, false
	}
	return e.(models.RunDetails), true
}

// FetchRunDetailsIfNeeded fetches runID's details unless a fetch is already
// outstanding or the cached details are in a terminal state and were not
// invalidated since. It reports whether a fetch was issued.
func (m *Manager) FetchRunDetailsIfNeeded(ctx context.Context, runID string) (bool, error) {
	key := store.Scoped(store.KindRunDetails, runID)
	if m.Store().IsFetching(key) {
		return false, nil
	}
	if details, ok := m.RunDetails(runID); ok && models.IsRunDone(details.State) && !m.actions.NeedsFetch(key, 0) {
		return false, nil
	}
	if _, err := m.FetchRunDetails(ctx, runID); err != nil {
		return true, ignoreInFlight(err)
	}
	return true, nil
}
