package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grovetools/chordsync/internal/relay"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/models"
)

// Push event types handled by default.
const (
	EventNotification   = "notification"
	EventRunUpdated     = "wes_run_updated"
	EventServiceChanged = "service_changed"
)

func (e *Engine) registerHandlers() {
	e.dispatcher.Handle(EventNotification, e.handleNotification)
	e.dispatcher.Handle(EventRunUpdated, e.handleRunUpdated)
	e.dispatcher.Handle(EventServiceChanged, e.handleServiceChanged)
}

func (e *Engine) handleNotification(ctx context.Context, ev relay.PushEvent) {
	var n models.Notification
	if err := json.Unmarshal(ev.Payload, &n); err != nil || n.ID == "" {
		e.logger.WithField("type", ev.Type).Warn("Dropping malformed notification event")
		return
	}
	e.store.Apply(store.Merged{
		Key:   store.Key(store.KindNotifications),
		Items: []models.Entity{n},
		Mode:  store.MergeUpsert,
		At:    time.Now(),
	})
}

// handleRunUpdated invalidates the runs list and the details of the run named
// in the payload, then reloads both.
func (e *Engine) handleRunUpdated(ctx context.Context, ev relay.PushEvent) {
	var run models.Run
	if err := json.Unmarshal(ev.Payload, &run); err != nil || run.RunID == "" {
		e.logger.WithField("type", ev.Type).Debug("Run update without run_id")
		e.actions.Invalidate(store.Key(store.KindRuns))
	} else {
		e.manager.InvalidateRun(run.RunID)
		if _, err := e.manager.FetchRunDetailsIfNeeded(ctx, run.RunID); err != nil {
			e.logger.WithError(err).WithField("run_id", run.RunID).Debug("Run details refresh failed")
		}
	}
	if _, err := e.manager.FetchRunsIfNeeded(ctx); err != nil {
		e.logger.WithError(err).Debug("Runs refresh failed")
	}
}

// handleServiceChanged reloads the registry and the workflows of every data
// service.
func (e *Engine) handleServiceChanged(ctx context.Context, ev relay.PushEvent) {
	e.manager.InvalidateServices()
	if err := e.manager.FetchServicesWithWorkflows(ctx); err != nil {
		e.logger.WithError(err).Debug("Services refresh failed")
	}
}
