// Package store provides the central client state: one resource slice per
// backend resource, flow states, the session snapshot and user-facing notices.
// All mutation goes through Apply.
package store

import (
	"time"

	"github.com/grovetools/chordsync/pkg/models"
)

// Kind is a backend resource kind.
type Kind string

const (
	KindProjects        Kind = "projects"
	KindProjectDatasets Kind = "project_datasets"
	KindServiceDatasets Kind = "service_datasets"
	KindServices        Kind = "services"
	KindWorkflows       Kind = "workflows"
	KindTables          Kind = "tables"
	KindRuns            Kind = "runs"
	KindRunDetails      Kind = "run_details"
	KindNotifications   Kind = "notifications"
	KindDropBox         Kind = "drop_box"
	KindUser            Kind = "user"
	KindSearch          Kind = "search"
)

// SliceKey identifies a resource slice. Scope is empty for collection-level
// kinds and holds the parent ID for per-parent collections.
type SliceKey struct {
	Kind  Kind
	Scope string
}

// Key returns the key of an unscoped slice.
func Key(kind Kind) SliceKey { return SliceKey{Kind: kind} }

// Scoped returns the key of a per-parent slice.
func Scoped(kind Kind, scope string) SliceKey { return SliceKey{Kind: kind, Scope: scope} }

func (k SliceKey) String() string {
	if k.Scope == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Scope
}

// ResourceSlice is the cached state of one resource.
type ResourceSlice struct {
	IsFetching    bool
	DidInvalidate bool
	Items         []models.Entity
	ItemsByID     map[string]models.Entity
	LastUpdated   *time.Time
	LastError     string
}

// MergeMode controls how received items are reconciled into a slice.
type MergeMode int

const (
	// MergeReplace replaces the whole collection.
	MergeReplace MergeMode = iota
	// MergeUpsert inserts or replaces items by ID, keeping order of existing items.
	MergeUpsert
	// MergeRemove deletes items by ID.
	MergeRemove
)

// FlowPhase is the externally observable state of a flow.
type FlowPhase string

const (
	PhaseUnstarted  FlowPhase = "unstarted"
	PhaseActive     FlowPhase = "active"
	PhaseEnded      FlowPhase = "ended"
	PhaseTerminated FlowPhase = "terminated"
)

// FlowState is the lifecycle state of one named flow.
type FlowState struct {
	Active     bool
	Terminated bool
	Err        error
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Phase derives the single observable phase.
func (f FlowState) Phase() FlowPhase {
	switch {
	case f.Active:
		return PhaseActive
	case f.Terminated:
		return PhaseTerminated
	case !f.FinishedAt.IsZero():
		return PhaseEnded
	default:
		return PhaseUnstarted
	}
}

// SessionSnapshot is the last observed identity.
type SessionSnapshot struct {
	Identity       *models.User
	LastObservedAt time.Time
}

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message for the operator.
type Notice struct {
	Level   NoticeLevel
	Message string
	At      time.Time
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateSlice        UpdateType = "slice"
	UpdateFlow         UpdateType = "flow"
	UpdateSession      UpdateType = "session"
	UpdateNotice       UpdateType = "notice"
	UpdateEvent        UpdateType = "event"
	UpdateConfigReload UpdateType = "config_reload"
)

// Update is broadcast to subscribers after every applied transition.
type Update struct {
	Type    UpdateType
	Key     SliceKey    // set for UpdateSlice
	Flow    string      // set for UpdateFlow
	Source  string      // transition or origin name, e.g. "requested", "relay"
	Payload interface{} // transition-specific snapshot
}
