package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/grovetools/chordsync/pkg/models"
)

// maxNotices bounds the notice history kept for late readers.
const maxNotices = 100

// Store is the in-memory client state.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	slices      map[SliceKey]*ResourceSlice
	flows       map[string]*FlowState
	session     SessionSnapshot
	notices     []Notice
	subscribers map[chan Update]struct{}
	disposed    bool
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		slices:      make(map[SliceKey]*ResourceSlice),
		flows:       make(map[string]*FlowState),
		subscribers: make(map[chan Update]struct{}),
	}
}

// Apply performs a transition and notifies subscribers. It reports whether the
// transition was applied: a Requested on a fetching slice, a Received/Failed on
// a slice that is not fetching, a FlowBegan on an active flow, a FlowEnded or
// FlowTerminated on an inactive flow, and anything after Dispose are rejected.
func (s *Store) Apply(t Transition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false
	}

	var u Update
	switch t := t.(type) {
	case Requested:
		sl := s.sliceLocked(t.Key)
		if sl.IsFetching {
			return false
		}
		sl.IsFetching = true
		sl.DidInvalidate = false
		u = Update{Type: UpdateSlice, Key: t.Key}

	case Received:
		sl := s.sliceLocked(t.Key)
		if !sl.IsFetching {
			return false
		}
		sl.IsFetching = false
		sl.LastError = ""
		merge(sl, t.Items, t.Mode)
		at := t.At
		sl.LastUpdated = &at
		u = Update{Type: UpdateSlice, Key: t.Key, Payload: len(sl.Items)}

	case Failed:
		sl := s.sliceLocked(t.Key)
		if !sl.IsFetching {
			return false
		}
		sl.IsFetching = false
		if t.Err != nil {
			sl.LastError = t.Err.Error()
		}
		u = Update{Type: UpdateSlice, Key: t.Key, Payload: t.Err}

	case Invalidated:
		s.sliceLocked(t.Key).DidInvalidate = true
		u = Update{Type: UpdateSlice, Key: t.Key}

	case Merged:
		sl := s.sliceLocked(t.Key)
		merge(sl, t.Items, t.Mode)
		at := t.At
		sl.LastUpdated = &at
		u = Update{Type: UpdateSlice, Key: t.Key, Payload: len(sl.Items)}

	case FlowBegan:
		f := s.flowLocked(t.Name)
		if f.Active {
			return false
		}
		*f = FlowState{Active: true, RunID: t.RunID, StartedAt: t.At}
		u = Update{Type: UpdateFlow, Flow: t.Name, Payload: PhaseActive}

	case FlowEnded:
		f := s.flowLocked(t.Name)
		if !f.Active {
			return false
		}
		f.Active = false
		f.FinishedAt = t.At
		u = Update{Type: UpdateFlow, Flow: t.Name, Payload: PhaseEnded}

	case FlowTerminated:
		f := s.flowLocked(t.Name)
		if !f.Active {
			return false
		}
		f.Active = false
		f.Terminated = true
		f.Err = t.Err
		f.FinishedAt = t.At
		u = Update{Type: UpdateFlow, Flow: t.Name, Payload: PhaseTerminated}

	case IdentityObserved:
		s.session = SessionSnapshot{Identity: t.Identity, LastObservedAt: t.At}
		u = Update{Type: UpdateSession, Payload: t.Identity}

	case NoticePosted:
		s.notices = append(s.notices, t.Notice)
		if len(s.notices) > maxNotices {
			s.notices = s.notices[len(s.notices)-maxNotices:]
		}
		u = Update{Type: UpdateNotice, Payload: t.Notice}

	case EventRelayed:
		u = Update{Type: UpdateEvent, Payload: t}

	default:
		panic(fmt.Sprintf("store: unhandled transition %T", t))
	}

	u.Source = t.name()
	s.broadcastLocked(u)
	return true
}

func (s *Store) sliceLocked(key SliceKey) *ResourceSlice {
	sl, ok := s.slices[key]
	if !ok {
		sl = &ResourceSlice{ItemsByID: make(map[string]models.Entity)}
		s.slices[key] = sl
	}
	return sl
}

func (s *Store) flowLocked(name string) *FlowState {
	f, ok := s.flows[name]
	if !ok {
		f = &FlowState{}
		s.flows[name] = f
	}
	return f
}

// merge reconciles items into sl. Replace is a pure reconciliation: applying
// the same items twice yields the same slice.
func merge(sl *ResourceSlice, items []models.Entity, mode MergeMode) {
	switch mode {
	case MergeReplace:
		sl.Items = append([]models.Entity(nil), items...)
		sl.ItemsByID = make(map[string]models.Entity, len(items))
		for _, item := range items {
			sl.ItemsByID[item.EntityID()] = item
		}

	case MergeUpsert:
		for _, item := range items {
			id := item.EntityID()
			if _, exists := sl.ItemsByID[id]; exists {
				for i := range sl.Items {
					if sl.Items[i].EntityID() == id {
						sl.Items[i] = item
					}
				}
			} else {
				sl.Items = append(sl.Items, item)
			}
			sl.ItemsByID[id] = item
		}

	case MergeRemove:
		remove := make(map[string]struct{}, len(items))
		for _, item := range items {
			remove[item.EntityID()] = struct{}{}
			delete(sl.ItemsByID, item.EntityID())
		}
		kept := sl.Items[:0:0]
		for _, item := range sl.Items {
			if _, ok := remove[item.EntityID()]; !ok {
				kept = append(kept, item)
			}
		}
		sl.Items = kept
	}
}

func (s *Store) broadcastLocked(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow subscribers from stalling transitions
		}
	}
}

// Slice returns a copy of the slice for key. Unknown keys yield an empty slice.
func (s *Store) Slice(key SliceKey) ResourceSlice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slices[key]
	if !ok {
		return ResourceSlice{ItemsByID: map[string]models.Entity{}}
	}
	out := *sl
	out.Items = append([]models.Entity(nil), sl.Items...)
	out.ItemsByID = make(map[string]models.Entity, len(sl.ItemsByID))
	for k, v := range sl.ItemsByID {
		out.ItemsByID[k] = v
	}
	if sl.LastUpdated != nil {
		at := *sl.LastUpdated
		out.LastUpdated = &at
	}
	return out
}

// IsFetching reports whether a request for key is in flight.
func (s *Store) IsFetching(key SliceKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slices[key]
	return ok && sl.IsFetching
}

// Get returns a single entity from a slice.
func (s *Store) Get(key SliceKey, id string) (models.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slices[key]
	if !ok {
		return nil, false
	}
	e, ok := sl.ItemsByID[id]
	return e, ok
}

// Keys returns the keys of all slices of the given kind.
func (s *Store) Keys(kind Kind) []SliceKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []SliceKey
	for k := range s.slices {
		if k.Kind == kind {
			keys = append(keys, k)
		}
	}
	return keys
}

// Flow returns the state of the named flow.
func (s *Store) Flow(name string) FlowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.flows[name]; ok {
		return *f
	}
	return FlowState{}
}

// Session returns the last observed session snapshot.
func (s *Store) Session() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Notices returns the retained notice history, oldest first.
func (s *Store) Notices() []Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notice(nil), s.notices...)
}

// Notify posts a notice. Shorthand for Apply(NoticePosted{...}).
func (s *Store) Notify(level NoticeLevel, message string) {
	s.Apply(NoticePosted{Notice: Notice{Level: level, Message: message, At: time.Now()}})
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	if s.disposed {
		close(ch)
		return ch
	}
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// BroadcastConfigReload sends a config reload notification to all subscribers.
// This is used by the config watcher while the engine runs.
func (s *Store) BroadcastConfigReload(file string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return
	}
	s.broadcastLocked(Update{
		Type:    UpdateConfigReload,
		Source:  "config",
		Payload: file,
	})
}

// Dispose marks the owning context as torn down. Later transitions are
// ignored and all subscriber channels are closed.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// ItemsOf returns the items of a slice narrowed to T.
func ItemsOf[T models.Entity](s *Store, key SliceKey) []T {
	return models.Narrow[T](s.Slice(key).Items)
}
