package manager

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/flow"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// DatasetInput describes a dataset to create on a data service and register
// with a project.
type DatasetInput struct {
	ProjectID  string
	ServiceID  string
	DataTypeID string
	Name       string
}

// AddProjectDataset creates a dataset on the data service, then registers it
// with the project. If registration fails the service dataset is deleted
// again.
func (m *Manager) AddProjectDataset(ctx context.Context, in DatasetInput) (models.ProjectDataset, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.ProjectDataset{}, errors.InvalidInput("dataset name is required")
	}
	service, err := m.Service(in.ServiceID)
	if err != nil {
		return models.ProjectDataset{}, err
	}

	serviceKey := store.Scoped(store.KindServiceDatasets, service.ID)
	projectKey := store.Scoped(store.KindProjectDatasets, in.ProjectID)
	var created models.ServiceDataset
	var registered models.ProjectDataset

	createServiceDataset := flow.Step{
		Name: "create_service_dataset",
		Run: func(ctx context.Context) error {
			req, err := api.NewForm().
				Set("name", name).
				Request(http.MethodPost, m.routes.ServiceDatasets(service.Name))
			if err != nil {
				return err
			}
			_, err = m.executeWhenIdle(ctx, action.Envelope{
				Key:     serviceKey,
				Request: req.WithQuery("data-type", in.DataTypeID),
				Decode: func(resp *api.Response) ([]models.Entity, error) {
					d, err := api.Decode[models.ServiceDataset](resp)
					if err != nil {
						return nil, err
					}
					created = d
					return []models.Entity{d}, nil
				},
				Mode:         store.MergeUpsert,
				ErrorMessage: fmt.Sprintf("Error creating dataset '%s' on service '%s'", name, service.Name),
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			if _, err := m.do(ctx, api.Delete(m.routes.ServiceDataset(service.Name, created.ID))); err != nil {
				return err
			}
			m.Store().Apply(store.Merged{Key: serviceKey, Items: []models.Entity{created}, Mode: store.MergeRemove, At: time.Now()})
			return nil
		},
	}

	registerWithProject := flow.Step{
		Name: "register_project_dataset",
		Run: func(ctx context.Context) error {
			req, err := api.PostJSON(m.routes.ProjectDatasets(in.ProjectID), models.ProjectDataset{
				DatasetID:  created.ID,
				ServiceID:  in.ServiceID,
				DataTypeID: in.DataTypeID,
			})
			if err != nil {
				return err
			}
			items, err := m.executeWhenIdle(ctx, action.Envelope{
				Key:          projectKey,
				Request:      req,
				Decode:       action.One[models.ProjectDataset](),
				Mode:         store.MergeUpsert,
				ErrorMessage: fmt.Sprintf("Error adding dataset '%s' to project '%s'", name, in.ProjectID),
			})
			if err != nil {
				return err
			}
			if len(items) > 0 {
				registered = items[0].(models.ProjectDataset)
			}
			return nil
		},
	}

	if err := m.flows.Run(ctx, FlowProjectDatasetAddition, createServiceDataset, registerWithProject); err != nil {
		return models.ProjectDataset{}, err
	}
	return registered, nil
}
