// Package session keeps a live picture of whether the operator is still
// signed in by polling the node's "who am I" endpoint.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// DefaultInterval is the polling interval used when Config.Interval is unset.
const DefaultInterval = 30 * time.Second

// Config controls polling.
type Config struct {
	Interval time.Duration
	// SuspendOnSignOut stops polling after a sign-out until Resume is called.
	SuspendOnSignOut bool
}

// Monitor polls the session endpoint and reports sign-outs.
type Monitor struct {
	actions  *action.Manager
	path     string
	cfg      Config
	metrics  *metrics.Metrics
	logger   *logrus.Entry
	callMu   sync.Mutex // serializes callbacks against Stop
	mu       sync.Mutex
	prev     *models.User
	stopped  bool
	paused   bool
	cancel   context.CancelFunc
	done     chan struct{}
	ended    []func()
	identity []func(prev, cur *models.User)
}

// NewMonitor creates a Monitor that checks authPath through actions.
func NewMonitor(actions *action.Manager, authPath string, cfg Config, m *metrics.Metrics) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Monitor{
		actions: actions,
		path:    authPath,
		cfg:     cfg,
		metrics: m,
		logger:  logging.NewLogger("session"),
	}
}

// OnSessionEnded registers fn to run once per authenticated to anonymous edge.
func (m *Monitor) OnSessionEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, fn)
}

// OnIdentity registers fn to run after every observation.
func (m *Monitor) OnIdentity(fn func(prev, cur *models.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = append(m.identity, fn)
}

// Envelope is the session check network action. 401/403 and null bodies
// both decode to no identity.
func Envelope(authPath string) action.Envelope {
	return action.Envelope{
		Key:     store.Key(store.KindUser),
		Request: api.Get(authPath),
		Decode: func(resp *api.Response) ([]models.Entity, error) {
			if resp.IsNull() {
				return nil, nil
			}
			return action.One[models.User]()(resp)
		},
		Mode:         store.MergeReplace,
		ErrorMessage: "Error checking session",
		Recover: func(err error) ([]models.Entity, bool) {
			return nil, errors.Is(err, errors.ErrCodeUnauthenticated)
		},
	}
}

// Check performs one session check and records the observation. Transport
// failures and in-flight rejections leave the previous identity in place.
func (m *Monitor) Check(ctx context.Context) (*models.User, error) {
	items, err := m.actions.Execute(ctx, Envelope(m.path))
	if err != nil {
		m.metrics.IncSessionCheck("error")
		return m.Identity(), err
	}

	var cur *models.User
	if users := models.Narrow[models.User](items); len(users) > 0 {
		u := users[0]
		cur = &u
		m.metrics.IncSessionCheck("authenticated")
	} else {
		m.metrics.IncSessionCheck("anonymous")
	}
	m.Observe(cur)
	return cur, nil
}

// Observe records cur as the latest identity. It reports whether this
// observation is a sign-out edge (previous identity present, current absent).
func (m *Monitor) Observe(cur *models.User) bool {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	prev := m.prev
	m.prev = cur
	edge := prev != nil && cur == nil
	if edge && m.cfg.SuspendOnSignOut {
		m.paused = true
	}
	ended := append([]func(){}, m.ended...)
	identity := append([]func(prev, cur *models.User){}, m.identity...)
	m.mu.Unlock()

	m.actions.Store().Apply(store.IdentityObserved{Identity: cur, At: time.Now()})

	for _, fn := range identity {
		fn(prev, cur)
	}
	if edge {
		m.metrics.IncSessionEnded()
		m.logger.WithField("user", prev.Sub).Info("Session ended")
		m.actions.Store().Notify(store.NoticeInfo, "You have been signed out")
		for _, fn := range ended {
			fn()
		}
	}
	return edge
}

// Identity returns the last observed identity.
func (m *Monitor) Identity() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prev
}

// Start checks immediately, then at every interval until Stop or ctx ends.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil || m.stopped {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Suspended() {
				continue
			}
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
		m.logger.WithError(err).Debug("Session check skipped")
	}
}

// Stop cancels polling and waits for the loop to exit. No callback fires
// after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.callMu.Lock()
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.callMu.Unlock()
}

// Suspend pauses polling without stopping the loop.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume continues polling after Suspend or a sign-out.
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// Suspended reports whether polling is paused.
func (m *Monitor) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}
