package manager

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/flow"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// Workflow engine parameters of an ingestion submission.
const (
	WorkflowType        = "WDL"
	WorkflowTypeVersion = "1.0"
)

// IngestionInput describes an ingestion run.
type IngestionInput struct {
	ServiceID string
	DatasetID string
	Workflow  models.Workflow
	// Inputs are keyed by workflow input ID; see matcher.Result.Inputs.
	Inputs map[string]interface{}
}

// SubmitIngestionRun submits an ingestion workflow run to the workflow
// execution service and refreshes the runs list. It returns the run ID.
func (m *Manager) SubmitIngestionRun(ctx context.Context, in IngestionInput) (string, error) {
	service, err := m.Service(in.ServiceID)
	if err != nil {
		return "", err
	}

	var runID string
	submit := flow.Step{
		Name: "submit_run",
		Run: func(ctx context.Context) error {
			req, err := m.ingestionRequest(service, in)
			if err != nil {
				return err
			}
			resp, err := m.do(ctx, req)
			if err != nil {
				m.Store().Notify(store.NoticeError, "Error submitting ingestion run")
				return err
			}
			sub, err := api.Decode[models.RunSubmission](resp)
			if err == nil && sub.RunID == "" {
				err = errors.MalformedResponse(resp.URL, fmt.Errorf("submission response has no run_id"))
			}
			if err != nil {
				m.Store().Notify(store.NoticeError, "Error submitting ingestion run")
				return err
			}
			runID = sub.RunID
			m.Store().Notify(store.NoticeSuccess, fmt.Sprintf("Ingestion with run ID %q submitted!", runID))
			return nil
		},
	}

	// The run exists once submitted; a failed refresh only leaves the runs
	// list stale and has already posted its own notice.
	refresh := flow.Step{
		Name: "refresh_runs",
		Run: func(ctx context.Context) error {
			if _, err := m.FetchRuns(ctx); err != nil {
				m.logger.WithError(err).Warn("Failed to refresh runs after submission")
			}
			return nil
		},
	}

	if err := m.flows.Run(ctx, FlowIngestionRunSubmission, submit, refresh); err != nil {
		return "", err
	}
	return runID, nil
}

func (m *Manager) ingestionRequest(service models.Service, in IngestionInput) (api.Request, error) {
	wf := in.Workflow
	params := make(map[string]interface{}, len(in.Inputs))
	for k, v := range in.Inputs {
		params[wf.ID+"."+k] = v
	}

	form := api.NewForm()
	if err := form.SetJSON("workflow_params", params); err != nil {
		return api.Request{}, err
	}
	form.Set("workflow_type", WorkflowType).
		Set("workflow_type_version", WorkflowTypeVersion).
		Set("workflow_engine_parameters", "{}").
		Set("workflow_url", m.origin+m.routes.WorkflowDefinition(service.Name, wf.ID))
	if err := form.SetJSON("tags", map[string]interface{}{
		"workflow_id":       wf.ID,
		"workflow_metadata": wf,
		"ingestion_url":     m.origin + m.routes.ServiceIngest(service.Name),
		"dataset_id":        in.DatasetID,
	}); err != nil {
		return api.Request{}, err
	}
	return form.Request(http.MethodPost, m.routes.Runs())
}
