package api

import (
	"net/url"
	"strings"
)

// Routes maps backend services to their path prefixes on the node.
type Routes struct {
	Project         string `yaml:"project" toml:"project" json:"project,omitempty"`
	DropBox         string `yaml:"drop_box" toml:"drop_box" json:"drop_box,omitempty"`
	WES             string `yaml:"wes" toml:"wes" json:"wes,omitempty"`
	Federation      string `yaml:"federation" toml:"federation" json:"federation,omitempty"`
	ServiceRegistry string `yaml:"service_registry" toml:"service_registry" json:"service_registry,omitempty"`
	Notification    string `yaml:"notification" toml:"notification" json:"notification,omitempty"`
	AuthUser        string `yaml:"auth_user" toml:"auth_user" json:"auth_user,omitempty"`
	// ServicePrefix is prepended to a data service's name to reach it, e.g. /api/variant.
	ServicePrefix string `yaml:"service_prefix" toml:"service_prefix" json:"service_prefix,omitempty"`
}

// DefaultRoutes returns the routes of a stock node.
func DefaultRoutes() Routes {
	return Routes{
		Project:         "/api/project",
		DropBox:         "/api/drop_box",
		WES:             "/api/wes",
		Federation:      "/api/federation",
		ServiceRegistry: "/api/service-registry",
		Notification:    "/api/notification",
		AuthUser:        "/api/auth/user",
		ServicePrefix:   "/api",
	}
}

func (r Routes) withDefaults() Routes {
	d := DefaultRoutes()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
		*v = strings.TrimSuffix(*v, "/")
	}
	fill(&r.Project, d.Project)
	fill(&r.DropBox, d.DropBox)
	fill(&r.WES, d.WES)
	fill(&r.Federation, d.Federation)
	fill(&r.ServiceRegistry, d.ServiceRegistry)
	fill(&r.Notification, d.Notification)
	fill(&r.AuthUser, d.AuthUser)
	fill(&r.ServicePrefix, d.ServicePrefix)
	return r
}

// Projects is the project collection.
func (r Routes) Projects() string { return r.Project + "/projects" }

// ProjectByID is a single project.
func (r Routes) ProjectByID(id string) string { return r.Projects() + "/" + url.PathEscape(id) }

// ProjectDatasets is the dataset collection of one project.
func (r Routes) ProjectDatasets(projectID string) string {
	return r.ProjectByID(projectID) + "/datasets"
}

// Service is the root of a data service addressed by name.
func (r Routes) Service(name string) string { return r.ServicePrefix + "/" + url.PathEscape(name) }

// ServiceDatasets is the dataset collection of a data service.
func (r Routes) ServiceDatasets(serviceName string) string { return r.Service(serviceName) + "/datasets" }

// ServiceDataset is a single dataset of a data service.
func (r Routes) ServiceDataset(serviceName, datasetID string) string {
	return r.ServiceDatasets(serviceName) + "/" + url.PathEscape(datasetID)
}

// ServiceTables is the table collection of a data service.
func (r Routes) ServiceTables(serviceName string) string { return r.Service(serviceName) + "/tables" }

// ServiceWorkflows lists the workflows a data service declares.
func (r Routes) ServiceWorkflows(serviceName string) string { return r.Service(serviceName) + "/workflows" }

// WorkflowDefinition is the WDL source of a service workflow.
func (r Routes) WorkflowDefinition(serviceName, workflowID string) string {
	return r.ServiceWorkflows(serviceName) + "/" + url.PathEscape(workflowID) + ".wdl"
}

// ServiceIngest is the endpoint a finished ingestion run posts its outputs to.
func (r Routes) ServiceIngest(serviceName string) string { return r.Service(serviceName) + "/ingest" }

// Services is the service registry listing.
func (r Routes) Services() string { return r.ServiceRegistry + "/services" }

// Runs is the WES run collection.
func (r Routes) Runs() string { return r.WES + "/runs" }

// Run is a single WES run.
func (r Routes) Run(runID string) string { return r.Runs() + "/" + url.PathEscape(runID) }

// DropBoxTree is the drop box file tree.
func (r Routes) DropBoxTree() string { return r.DropBox + "/tree" }

// DropBoxRetrieve is the contents of a drop box file. path is absolute within the drop box.
func (r Routes) DropBoxRetrieve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.DropBox + "/retrieve" + path
}

// Notifications is the notification collection.
func (r Routes) Notifications() string { return r.Notification + "/notifications" }

// NotificationRead marks one notification as read.
func (r Routes) NotificationRead(id string) string {
	return r.Notifications() + "/" + url.PathEscape(id) + "/read"
}

// SearchAggregate is the federated search endpoint for the service mounted at serviceURL.
// serviceURL is the service's path on the node, e.g. /api/variant.
func (r Routes) SearchAggregate(serviceURL string) string {
	if u, err := url.Parse(serviceURL); err == nil && u.IsAbs() {
		serviceURL = u.Path
	}
	return r.Federation + "/search-aggregate" + serviceURL + "/search"
}
