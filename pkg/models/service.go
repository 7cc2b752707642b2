package models

import "strings"

// ServiceType identifies the artifact a service implements.
type ServiceType struct {
	Group    string `json:"group"`
	Artifact string `json:"artifact"`
	Version  string `json:"version"`
}

// Service is an entry of the service registry.
type Service struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        ServiceType     `json:"type"`
	URL         string          `json:"url"`
	Description string          `json:"description,omitempty"`
	Version     string          `json:"version,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Metadata    ServiceMetadata `json:"metadata,omitempty"`
}

func (s Service) EntityID() string { return s.ID }

// ServiceMetadata carries platform-specific service flags.
type ServiceMetadata struct {
	DataService      bool `json:"chordServiceDataService,omitempty"`
	ManageableTables bool `json:"chordManageableTables,omitempty"`
}

// Input types understood by the matcher. Other input types are plain form values.
const (
	InputTypeFile      = "file"
	InputTypeFileArray = "file[]"
)

// WorkflowInput is a declared workflow parameter.
type WorkflowInput struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Extensions []string `json:"extensions,omitempty"`
}

// IsFile reports whether the input is a file slot, scalar or array.
func (i WorkflowInput) IsFile() bool { return strings.HasPrefix(i.Type, InputTypeFile) }

// IsArray reports whether the input accepts several values.
func (i WorkflowInput) IsArray() bool { return strings.HasSuffix(i.Type, "[]") }

// WorkflowOutput is a declared workflow output.
type WorkflowOutput struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Workflow is an ingestion workflow declared by a data service.
type Workflow struct {
	ID          string           `json:"id"`
	ServiceID   string           `json:"service_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	DataType    string           `json:"data_type"`
	Inputs      []WorkflowInput  `json:"inputs"`
	Outputs     []WorkflowOutput `json:"outputs,omitempty"`
}

// EntityID is namespaced by service, since workflow IDs are only unique per service.
func (w Workflow) EntityID() string { return w.ServiceID + "/" + w.ID }
