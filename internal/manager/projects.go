package manager

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/flow"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// maxParallelDatasetFetches bounds concurrent per-project dataset requests.
const maxParallelDatasetFetches = 8

// ProjectInput is the editable part of a project.
type ProjectInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FetchProjects replaces the projects slice.
func (m *Manager) FetchProjects(ctx context.Context) ([]models.Project, error) {
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindProjects),
		Request:      api.Get(m.routes.Projects()),
		Decode:       action.List[models.Project](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching projects",
	})
	return models.Narrow[models.Project](items), err
}

// FetchProjectDatasets replaces the dataset slice of one project.
func (m *Manager) FetchProjectDatasets(ctx context.Context, projectID string) ([]models.ProjectDataset, error) {
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Scoped(store.KindProjectDatasets, projectID),
		Request:      api.Get(m.routes.ProjectDatasets(projectID)),
		Decode:       action.List[models.ProjectDataset](),
		Mode:         store.MergeReplace,
		ErrorMessage: fmt.Sprintf("Error fetching datasets for project '%s'", projectID),
	})
	return models.Narrow[models.ProjectDataset](items), err
}

// FetchProjectsWithDatasets fetches the projects, then the datasets of every
// project in parallel. It does nothing while the projects slice is busy.
func (m *Manager) FetchProjectsWithDatasets(ctx context.Context) error {
	if m.Store().IsFetching(store.Key(store.KindProjects)) {
		return nil
	}

	projects, err := m.FetchProjects(ctx)
	if err != nil {
		return ignoreInFlight(err)
	}

	return m.flows.Run(ctx, FlowFetchingProjectDatasets, flow.Step{
		Name: "fetch_project_datasets",
		Run: func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(maxParallelDatasetFetches)
			for _, p := range projects {
				projectID := p.ID
				g.Go(func() error {
					_, err := m.FetchProjectDatasets(gctx, projectID)
					return ignoreInFlight(err)
				})
			}
			return g.Wait()
		},
	})
}

// CreateProject creates a project and selects it.
func (m *Manager) CreateProject(ctx context.Context, in ProjectInput) (models.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.Project{}, errors.InvalidInput("project title is required")
	}

	req, err := api.PostJSON(m.routes.Projects(), in)
	if err != nil {
		return models.Project{}, err
	}

	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindProjects),
		Request:      req,
		Decode:       action.One[models.Project](),
		Mode:         store.MergeUpsert,
		ErrorMessage: "Error creating project",
		After: func(ctx context.Context, items []models.Entity) error {
			return m.selectProject(items[0].EntityID())
		},
	})
	if len(items) == 0 {
		return models.Project{}, err
	}
	return items[0].(models.Project), err
}

// SaveProject updates a project's editable fields.
func (m *Manager) SaveProject(ctx context.Context, p models.Project) (models.Project, error) {
	req, err := api.PostJSON(m.routes.ProjectByID(p.ID), p)
	if err != nil {
		return models.Project{}, err
	}

	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindProjects),
		Request:      req,
		Decode:       action.One[models.Project](),
		Mode:         store.MergeUpsert,
		ErrorMessage: fmt.Sprintf("Error saving project '%s'", p.ID),
	})
	if err != nil {
		return models.Project{}, err
	}
	return items[0].(models.Project), nil
}

// DeleteProject deletes a project. The request is rejected while any
// request on the projects slice is outstanding.
func (m *Manager) DeleteProject(ctx context.Context, projectID string) error {
	_, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindProjects),
		Request:      api.Delete(m.routes.ProjectByID(projectID)),
		Items:        []models.Entity{models.Project{ID: projectID}},
		Mode:         store.MergeRemove,
		ErrorMessage: fmt.Sprintf("Error deleting project '%s'", projectID),
		After: func(ctx context.Context, _ []models.Entity) error {
			selected, err := m.SelectedProject()
			if err != nil || selected != projectID {
				return err
			}
			return m.selection.SelectProject("")
		},
	})
	return err
}

// SelectProjectIfExists selects projectID if it is in the projects slice.
// It reports whether the selection changed.
func (m *Manager) SelectProjectIfExists(projectID string) (bool, error) {
	if _, err := m.Project(projectID); err != nil {
		return false, nil
	}
	if err := m.selectProject(projectID); err != nil {
		return false, err
	}
	return true, nil
}

// SelectedProject returns the selected project ID, or "".
func (m *Manager) SelectedProject() (string, error) {
	if m.selection == nil {
		return "", nil
	}
	return m.selection.SelectedProject()
}

func (m *Manager) selectProject(projectID string) error {
	if m.selection == nil {
		return nil
	}
	if err := m.selection.SelectProject(projectID); err != nil {
		return fmt.Errorf("failed to select project: %w", err)
	}
	m.logger.WithField("project", projectID).Debug("Project selected")
	return nil
}
