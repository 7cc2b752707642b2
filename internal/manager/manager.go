// Package manager implements the data-management operations of the client:
// project and dataset CRUD, ingestion, runs, services, the drop box,
// notifications and search. Single calls go through the action manager;
// multi-step operations run as flows.
package manager

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/flow"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// Flow names.
const (
	FlowFetchingProjectDatasets = "fetching_project_datasets"
	FlowProjectDatasetAddition  = "project_dataset_addition"
	FlowIngestionRunSubmission  = "ingestion_run_submission"
)

// Selection persists the project the operator is working on.
type Selection interface {
	SelectedProject() (string, error)
	SelectProject(id string) error
}

// Manager runs data-management operations against one node.
type Manager struct {
	actions   *action.Manager
	flows     *flow.Coordinator
	routes    api.Routes
	origin    string
	selection Selection
	logger    *logrus.Entry
}

// New creates a Manager. origin is the public node origin used in URLs handed
// to the workflow engine.
func New(actions *action.Manager, flows *flow.Coordinator, routes api.Routes, origin string, selection Selection) *Manager {
	return &Manager{
		actions:   actions,
		flows:     flows,
		routes:    routes,
		origin:    origin,
		selection: selection,
		logger:    logging.NewLogger("manager"),
	}
}

// Store returns the store operations write to.
func (m *Manager) Store() *store.Store { return m.actions.Store() }

// Actions returns the underlying action manager.
func (m *Manager) Actions() *action.Manager { return m.actions }

// Routes returns the route table.
func (m *Manager) Routes() api.Routes { return m.routes }

func (m *Manager) do(ctx context.Context, req api.Request) (*api.Response, error) {
	return m.actions.Doer().Do(ctx, req)
}

// Service looks up a service in the services slice.
func (m *Manager) Service(id string) (models.Service, error) {
	e, ok := m.Store().Get(store.Key(store.KindServices), id)
	if !ok {
		return models.Service{}, errors.NotFound("service", id)
	}
	return e.(models.Service), nil
}

// Project looks up a project in the projects slice.
func (m *Manager) Project(id string) (models.Project, error) {
	e, ok := m.Store().Get(store.Key(store.KindProjects), id)
	if !ok {
		return models.Project{}, errors.NotFound("project", id)
	}
	return e.(models.Project), nil
}

// Workflows returns the ingestion workflows of all data services, ordered by
// service then workflow ID.
func (m *Manager) Workflows() []models.Workflow {
	var out []models.Workflow
	for _, key := range m.Store().Keys(store.KindWorkflows) {
		out = append(out, store.ItemsOf[models.Workflow](m.Store(), key)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

// Workflow looks up a workflow by service and workflow ID.
func (m *Manager) Workflow(serviceID, workflowID string) (models.Workflow, error) {
	e, ok := m.Store().Get(store.Scoped(store.KindWorkflows, serviceID), serviceID+"/"+workflowID)
	if !ok {
		return models.Workflow{}, errors.NotFound("workflow", serviceID+"/"+workflowID)
	}
	return e.(models.Workflow), nil
}

// ignoreInFlight treats a rejected duplicate request as success: the
// outstanding request will deliver the same data.
func ignoreInFlight(err error) error {
	if errors.Is(err, errors.ErrCodeInFlight) {
		return nil
	}
	return err
}

// executeWhenIdle runs env, first waiting out any request already
// outstanding for env.Key. Flow steps use it so a background refresh of the
// same slice does not terminate the flow.
func (m *Manager) executeWhenIdle(ctx context.Context, env action.Envelope) ([]models.Entity, error) {
	for {
		if err := m.awaitIdle(ctx, env.Key); err != nil {
			return nil, err
		}
		items, err := m.actions.Execute(ctx, env)
		if !errors.Is(err, errors.ErrCodeInFlight) {
			return items, err
		}
	}
}

// awaitIdle blocks until key has no request outstanding.
func (m *Manager) awaitIdle(ctx context.Context, key store.SliceKey) error {
	s := m.Store()
	updates := s.Subscribe()
	defer s.Unsubscribe(updates)
	for s.IsFetching(key) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return errors.New(errors.ErrCodeDisposed, "store has been disposed")
			}
		}
	}
	return nil
}
