package models

// Project groups datasets owned by the project service.
type Project struct {
	ID          string    `json:"identifier"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Datasets    []Dataset `json:"datasets,omitempty"`
	Created     string    `json:"created,omitempty"`
	Updated     string    `json:"updated,omitempty"`
}

func (p Project) EntityID() string { return p.ID }

// Dataset is a dataset record. Project is empty when nested under a project.
type Dataset struct {
	ID          string                 `json:"identifier"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	ContactInfo string                 `json:"contact_info,omitempty"`
	DataUse     map[string]interface{} `json:"data_use,omitempty"`
	Project     string                 `json:"project,omitempty"`
	Created     string                 `json:"created,omitempty"`
	Updated     string                 `json:"updated,omitempty"`
}

func (d Dataset) EntityID() string { return d.ID }

// ServiceDataset is the dataset record created on a data service.
type ServiceDataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d ServiceDataset) EntityID() string { return d.ID }

// ProjectDataset links a service-owned dataset to a project.
type ProjectDataset struct {
	DatasetID  string `json:"dataset_id"`
	ServiceID  string `json:"service_id"`
	DataTypeID string `json:"data_type_id"`
	ProjectID  string `json:"project_id,omitempty"`
}

func (d ProjectDataset) EntityID() string { return d.ServiceID + ":" + d.DatasetID }

// Table is a data-type specific table living on a data service.
type Table struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	DataType  string                 `json:"data_type"`
	ServiceID string                 `json:"service_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (t Table) EntityID() string { return t.ID }
