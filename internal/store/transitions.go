package store

import (
	"encoding/json"
	"time"

	"github.com/grovetools/chordsync/pkg/models"
)

// Transition is a closed set of state changes. Only types in this file
// implement it; Apply handles every one of them.
type Transition interface {
	transition()
	name() string
}

// Requested marks the start of a network action. Rejected when the slice is
// already fetching.
type Requested struct {
	Key SliceKey
}

// Received completes a network action successfully.
type Received struct {
	Key   SliceKey
	Items []models.Entity
	Mode  MergeMode
	At    time.Time
}

// Failed completes a network action unsuccessfully. Items are left untouched.
type Failed struct {
	Key SliceKey
	Err error
}

// Invalidated flags a slice so the next fetch ignores freshness.
type Invalidated struct {
	Key SliceKey
}

// Merged reconciles items delivered outside a request/response cycle (push
// events). It never touches IsFetching.
type Merged struct {
	Key   SliceKey
	Items []models.Entity
	Mode  MergeMode
	At    time.Time
}

// FlowBegan activates a flow. Rejected while the flow is active.
type FlowBegan struct {
	Name  string
	RunID string
	At    time.Time
}

// FlowEnded completes an active flow successfully.
type FlowEnded struct {
	Name string
	At   time.Time
}

// FlowTerminated completes an active flow with an error.
type FlowTerminated struct {
	Name string
	Err  error
	At   time.Time
}

// IdentityObserved records the result of a session check.
type IdentityObserved struct {
	Identity *models.User
	At       time.Time
}

// NoticePosted appends to the user-facing notice channel.
type NoticePosted struct {
	Notice Notice
}

// EventRelayed records a push event so subscribers can observe it.
type EventRelayed struct {
	Type    string
	Payload json.RawMessage
}

func (Requested) transition()        {}
func (Received) transition()         {}
func (Failed) transition()           {}
func (Invalidated) transition()      {}
func (Merged) transition()           {}
func (FlowBegan) transition()        {}
func (FlowEnded) transition()        {}
func (FlowTerminated) transition()   {}
func (IdentityObserved) transition() {}
func (NoticePosted) transition()     {}
func (EventRelayed) transition()     {}

func (Requested) name() string        { return "requested" }
func (Received) name() string         { return "received" }
func (Failed) name() string           { return "failed" }
func (Invalidated) name() string      { return "invalidated" }
func (Merged) name() string           { return "merged" }
func (FlowBegan) name() string        { return "begin" }
func (FlowEnded) name() string        { return "end" }
func (FlowTerminated) name() string   { return "terminate" }
func (IdentityObserved) name() string { return "identity" }
func (NoticePosted) name() string     { return "notice" }
func (EventRelayed) name() string     { return "event" }
