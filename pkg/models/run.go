package models

// Terminal run states. Runs in any other state may still change.
var RunDoneStates = []string{"COMPLETE", "EXECUTOR_ERROR", "SYSTEM_ERROR", "CANCELED"}

// IsRunDone reports whether state is terminal.
func IsRunDone(state string) bool {
	for _, s := range RunDoneStates {
		if s == state {
			return true
		}
	}
	return false
}

// Run is a workflow execution summary.
type Run struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

func (r Run) EntityID() string { return r.RunID }

// RunRequest echoes the submission that started a run.
type RunRequest struct {
	WorkflowParams           map[string]interface{} `json:"workflow_params"`
	WorkflowType             string                 `json:"workflow_type"`
	WorkflowTypeVersion      string                 `json:"workflow_type_version"`
	WorkflowEngineParameters map[string]interface{} `json:"workflow_engine_parameters,omitempty"`
	WorkflowURL              string                 `json:"workflow_url"`
	Tags                     map[string]interface{} `json:"tags,omitempty"`
}

// RunLog holds execution output of a run.
type RunLog struct {
	Name      string `json:"name"`
	Cmd       string `json:"cmd"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int   `json:"exit_code"`
}

// RunDetails is the full record of a single run.
type RunDetails struct {
	RunID   string     `json:"run_id"`
	State   string     `json:"state"`
	Request RunRequest `json:"request"`
	RunLog  RunLog     `json:"run_log"`
}

func (r RunDetails) EntityID() string { return r.RunID }

// RunSubmission is the response to a run submission.
type RunSubmission struct {
	RunID string `json:"run_id"`
}
