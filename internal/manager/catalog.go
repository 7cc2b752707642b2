package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// FetchDropBoxTree replaces the drop box tree.
func (m *Manager) FetchDropBoxTree(ctx context.Context) ([]models.DropBoxEntry, error) {
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindDropBox),
		Request:      api.Get(m.routes.DropBoxTree()),
		Decode:       action.List[models.DropBoxEntry](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching drop box tree",
	})
	return models.Narrow[models.DropBoxEntry](items), err
}

// FetchNotifications replaces the notifications slice.
func (m *Manager) FetchNotifications(ctx context.Context) ([]models.Notification, error) {
	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindNotifications),
		Request:      api.Get(m.routes.Notifications()),
		Decode:       action.List[models.Notification](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching notifications",
	})
	return models.Narrow[models.Notification](items), err
}

// MarkNotificationRead marks a notification as read.
func (m *Manager) MarkNotificationRead(ctx context.Context, id string) error {
	n := models.Notification{ID: id}
	if e, ok := m.Store().Get(store.Key(store.KindNotifications), id); ok {
		n = e.(models.Notification)
	}
	n.Read = true

	req, err := api.PutJSON(m.routes.NotificationRead(id), struct{}{})
	if err != nil {
		return err
	}
	_, err = m.actions.Execute(ctx, action.Envelope{
		Key:          store.Key(store.KindNotifications),
		Request:      req,
		Items:        []models.Entity{n},
		Mode:         store.MergeUpsert,
		ErrorMessage: fmt.Sprintf("Error marking notification '%s' as read", id),
	})
	return err
}

// SearchQuery is a federated search over one data type.
type SearchQuery struct {
	ServiceID  string
	DataTypeID string
	Conditions []json.RawMessage
}

// PerformSearch runs a federated search and records the aggregated results.
func (m *Manager) PerformSearch(ctx context.Context, q SearchQuery) (models.SearchResult, error) {
	service, err := m.Service(q.ServiceID)
	if err != nil {
		return models.SearchResult{}, err
	}

	conditions := q.Conditions
	if conditions == nil {
		conditions = []json.RawMessage{}
	}
	req, err := api.PostJSON(m.routes.SearchAggregate(service.URL), map[string]interface{}{
		"dataTypeID": q.DataTypeID,
		"conditions": conditions,
	})
	if err != nil {
		return models.SearchResult{}, err
	}

	items, err := m.actions.Execute(ctx, action.Envelope{
		Key:     store.Scoped(store.KindSearch, q.ServiceID+"/"+q.DataTypeID),
		Request: req,
		Decode: action.Transform(func(raw json.RawMessage) ([]models.Entity, error) {
			return []models.Entity{models.SearchResult{
				ServiceID:  q.ServiceID,
				DataTypeID: q.DataTypeID,
				Results:    raw,
				ReceivedAt: time.Now().UTC().Format(time.RFC3339),
			}}, nil
		}),
		Mode:         store.MergeUpsert,
		ErrorMessage: "Search returned an error",
	})
	if err != nil {
		return models.SearchResult{}, err
	}
	return items[0].(models.SearchResult), nil
}
