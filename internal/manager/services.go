package manager

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// EventRelayArtifact is the registry artifact name of the event relay.
const EventRelayArtifact = "event-relay"

// workflowCatalog is the per-service workflow listing, keyed by purpose then
// workflow ID.
type workflowCatalog struct {
	Ingestion map[string]models.Workflow `json:"ingestion"`
}

// FetchServices replaces the services slice from the service registry.
func (m *Manager) FetchServices(ctx context.Context) ([]models.Service, error) {
	items, err := m.actions.Execute(ctx, m.servicesEnvelope())
	return models.Narrow[models.Service](items), err
}

func (m *Manager) servicesEnvelope() action.Envelope {
	return action.Envelope{
		Key:          store.Key(store.KindServices),
		Request:      api.Get(m.routes.Services()),
		Decode:       action.List[models.Service](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching services",
	}
}

// DataServices returns the cached services flagged as data services.
func (m *Manager) DataServices() []models.Service {
	var out []models.Service
	for _, s := range store.ItemsOf[models.Service](m.Store(), store.Key(store.KindServices)) {
		if s.Metadata.DataService {
			out = append(out, s)
		}
	}
	return out
}

// FetchWorkflows fetches the ingestion workflows of one service.
func (m *Manager) FetchWorkflows(ctx context.Context, service models.Service) ([]models.Workflow, error) {
	items, err := m.actions.Execute(ctx, m.workflowsEnvelope(service))
	return models.Narrow[models.Workflow](items), err
}

func (m *Manager) workflowsEnvelope(service models.Service) action.Envelope {
	return action.Envelope{
		Key:     store.Scoped(store.KindWorkflows, service.ID),
		Request: api.Get(m.routes.ServiceWorkflows(service.Name)),
		Decode: action.Transform(func(c workflowCatalog) ([]models.Entity, error) {
			ids := make([]string, 0, len(c.Ingestion))
			for id := range c.Ingestion {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			out := make([]models.Entity, 0, len(ids))
			for _, id := range ids {
				wf := c.Ingestion[id]
				wf.ID = id
				wf.ServiceID = service.ID
				out = append(out, wf)
			}
			return out, nil
		}),
		Mode:         store.MergeReplace,
		ErrorMessage: fmt.Sprintf("Error fetching workflows for service '%s'", service.Name),
	}
}

// FetchServicesWithWorkflows loads the registry, then the workflows of every
// data service in parallel. Slices that were loaded and not invalidated since
// are kept as they are.
func (m *Manager) FetchServicesWithWorkflows(ctx context.Context) error {
	if _, err := m.actions.ExecuteIfNeeded(ctx, m.servicesEnvelope(), 0); err != nil {
		return ignoreInFlight(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDatasetFetches)
	for _, s := range m.DataServices() {
		service := s
		g.Go(func() error {
			_, err := m.actions.ExecuteIfNeeded(gctx, m.workflowsEnvelope(service), 0)
			return ignoreInFlight(err)
		})
	}
	return g.Wait()
}

// InvalidateServices marks the services and every workflows slice stale.
func (m *Manager) InvalidateServices() {
	m.actions.Invalidate(store.Key(store.KindServices))
	for _, key := range m.Store().Keys(store.KindWorkflows) {
		m.actions.Invalidate(key)
	}
}

// FetchTables fetches the tables of dataType on a data service.
func (m *Manager) FetchTables(ctx context.Context, serviceID, dataType string) ([]models.Table, error) {
	service, err := m.Service(serviceID)
	if err != nil {
		return nil, err
	}

	req := api.Get(m.routes.ServiceTables(service.Name))
	if dataType != "" {
		req = req.WithQuery("data-type", dataType)
	}
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:     store.Scoped(store.KindTables, serviceID),
		Request: req,
		Decode: action.Transform(func(tables []models.Table) ([]models.Entity, error) {
			for i := range tables {
				tables[i].ServiceID = serviceID
			}
			return models.AsEntities(tables), nil
		}),
		Mode:         store.MergeReplace,
		ErrorMessage: fmt.Sprintf("Error fetching tables for service '%s'", service.Name),
	})
	return models.Narrow[models.Table](items), err
}

// EventRelayURL returns the URL of the event relay found in the services
// slice, or "" when none is registered.
func (m *Manager) EventRelayURL() string {
	for _, s := range store.ItemsOf[models.Service](m.Store(), store.Key(store.KindServices)) {
		if s.Type.Artifact == EventRelayArtifact {
			if s.URL != "" && s.URL[0] == '/' {
				return m.origin + s.URL
			}
			return s.URL
		}
	}
	return ""
}
