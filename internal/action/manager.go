package action

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
	"github.com/grovetools/chordsync/pkg/profiling"
)

// Doer performs backend calls. *api.Client implements it.
type Doer interface {
	Do(ctx context.Context, req api.Request) (*api.Response, error)
}

// Manager runs network actions against the store.
type Manager struct {
	store   *store.Store
	doer    Doer
	metrics *metrics.Metrics
	logger  *logrus.Entry
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records action durations and rejections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// NewManager creates a Manager.
func NewManager(s *store.Store, doer Doer, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		doer:   doer,
		logger: logging.NewLogger("action"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the store the manager writes to.
func (m *Manager) Store() *store.Store { return m.store }

// Doer returns the backend the manager calls.
func (m *Manager) Doer() Doer { return m.doer }

// Execute runs env. It returns IN_FLIGHT without calling the backend when a
// request for env.Key is already outstanding. Otherwise exactly one of
// Received or Failed is applied for the key once the call resolves.
func (m *Manager) Execute(ctx context.Context, env Envelope) ([]models.Entity, error) {
	key := env.Key
	if !m.store.Apply(store.Requested{Key: key}) {
		if m.store.Disposed() {
			return nil, errors.New(errors.ErrCodeDisposed, "store has been disposed")
		}
		m.metrics.IncActionRejected(string(key.Kind))
		m.logger.WithField("resource", key.String()).Debug("Request already in flight, skipping")
		return nil, errors.InFlight(key.String())
	}

	ctx, span := profiling.Start(ctx, key.String())
	defer span.Stop()

	start := m.now()
	items, err := m.perform(ctx, env)
	if err != nil {
		m.fail(key, env.ErrorMessage, err)
		m.metrics.ObserveAction(string(key.Kind), "failed", m.now().Sub(start))
		return nil, err
	}

	if !m.store.Apply(store.Received{Key: key, Items: items, Mode: env.Mode, At: m.now()}) {
		m.logger.WithField("resource", key.String()).Debug("Dropping response for disposed store")
		return items, nil
	}
	m.metrics.ObserveAction(string(key.Kind), "received", m.now().Sub(start))

	if env.After != nil {
		if err := env.After(ctx, items); err != nil {
			m.logger.WithError(err).WithField("resource", key.String()).Warn("After-action failed")
			m.store.Notify(store.NoticeError, err.Error())
			return items, err
		}
	}
	return items, nil
}

// perform calls the backend and decodes the response. A panic in the doer or
// a mapper is returned as an error so the slice is still released.
func (m *Manager) perform(ctx context.Context, env Envelope) (items []models.Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = errors.New(errors.ErrCodeInternal, fmt.Sprintf("network action panicked: %v", r)).
				WithDetail("resource", env.Key.String())
		}
	}()

	resp, err := m.doer.Do(ctx, env.Request)
	if err != nil {
		if env.Recover != nil {
			if items, ok := env.Recover(err); ok {
				return items, nil
			}
		}
		return nil, err
	}
	if env.Decode == nil {
		return env.Items, nil
	}
	return env.Decode(resp)
}

func (m *Manager) fail(key store.SliceKey, message string, err error) {
	m.store.Apply(store.Failed{Key: key, Err: err})
	if message == "" {
		message = "Error fetching " + key.String()
	}
	m.logger.WithError(err).WithField("resource", key.String()).Warn(message)
	m.store.Notify(store.NoticeError, message)
}

// Invalidate marks key so the next NeedsFetch reports true.
func (m *Manager) Invalidate(key store.SliceKey) {
	m.store.Apply(store.Invalidated{Key: key})
}

// NeedsFetch reports whether key should be fetched: it is not already
// fetching, and it was never fetched, was invalidated, or is older than maxAge.
// A zero maxAge never considers data stale.
func (m *Manager) NeedsFetch(key store.SliceKey, maxAge time.Duration) bool {
	sl := m.store.Slice(key)
	switch {
	case sl.IsFetching:
		return false
	case sl.LastUpdated == nil, sl.DidInvalidate:
		return true
	case maxAge > 0:
		return m.now().Sub(*sl.LastUpdated) > maxAge
	default:
		return false
	}
}

// ExecuteIfNeeded runs env only when NeedsFetch reports true, returning the
// cached items otherwise.
func (m *Manager) ExecuteIfNeeded(ctx context.Context, env Envelope, maxAge time.Duration) ([]models.Entity, error) {
	if !m.NeedsFetch(env.Key, maxAge) {
		return m.store.Slice(env.Key).Items, nil
	}
	return m.Execute(ctx, env)
}
