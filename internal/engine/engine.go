// Package engine wires the client together: store, backend client, action
// manager, flow coordinator, resource manager, session monitor, event relay
// and drop box viewer. It owns their lifecycle.
package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/chordsync/config"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/dropbox"
	"github.com/grovetools/chordsync/internal/flow"
	"github.com/grovetools/chordsync/internal/manager"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/relay"
	"github.com/grovetools/chordsync/internal/session"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
	"github.com/grovetools/chordsync/state"
)

// Option customizes an Engine.
type Option func(*options)

type options struct {
	metrics    *metrics.Metrics
	dialer     relay.Dialer
	selection  manager.Selection
	httpClient *http.Client
}

// WithMetrics records action, flow, session and relay metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDialer replaces the websocket dialer used for the event relay.
func WithDialer(d relay.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithSelection replaces the project selection, which defaults to the
// local state file.
func WithSelection(s manager.Selection) Option {
	return func(o *options) { o.selection = s }
}

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Engine is one running client against one node.
type Engine struct {
	cfg        *config.Config
	store      *store.Store
	client     *api.Client
	actions    *action.Manager
	flows      *flow.Coordinator
	manager    *manager.Manager
	monitor    *session.Monitor
	dispatcher *relay.Dispatcher
	subscriber *relay.Subscriber
	viewer     *dropbox.Viewer
	metrics    *metrics.Metrics
	logger     *logrus.Entry

	mu       sync.Mutex
	loaded   bool
	shutdown bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds an Engine from cfg. Nothing talks to the node until Start or
// one of the manager's operations is called.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{selection: state.ProjectSelection{}}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := api.NewClient(api.Options{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Auth.Token,
		Cookie:     cfg.Auth.Cookie,
		Timeout:    cfg.HTTP.Timeout.Std(),
		Routes:     cfg.Routes,
		HTTPClient: o.httpClient,
	})
	if err != nil {
		return nil, err
	}
	routes := client.Routes()

	s := store.New()
	actions := action.NewManager(s, client, action.WithMetrics(o.metrics))
	flows := flow.NewCoordinator(s, o.metrics)

	origin := cfg.Origin
	if origin == "" {
		origin = client.Origin()
	}

	viewer, err := dropbox.NewViewer(client, routes, cfg.DropBox.StripPrefix, cfg.DropBox.CacheSize)
	if err != nil {
		return nil, err
	}

	suspend := true
	if cfg.Session.SuspendOnSignOut != nil {
		suspend = *cfg.Session.SuspendOnSignOut
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = relay.WebsocketDialer{
			Token:            cfg.Auth.Token,
			Cookie:           cfg.Auth.Cookie,
			HandshakeTimeout: cfg.HTTP.Timeout.Std(),
		}
	}
	dispatcher := relay.NewDispatcher(s, o.metrics)

	e := &Engine{
		cfg:        cfg,
		store:      s,
		client:     client,
		actions:    actions,
		flows:      flows,
		manager:    manager.New(actions, flows, routes, origin, o.selection),
		monitor: session.NewMonitor(actions, routes.AuthUser, session.Config{
			Interval:         cfg.Session.PollInterval.Std(),
			SuspendOnSignOut: suspend,
		}, o.metrics),
		dispatcher: dispatcher,
		subscriber: relay.NewSubscriber(dialer, dispatcher, o.metrics),
		viewer:     viewer,
		metrics:    o.metrics,
		logger:     logging.NewLogger("engine"),
	}

	e.registerHandlers()
	e.monitor.OnIdentity(e.onIdentity)
	e.monitor.OnSessionEnded(e.onSessionEnded)
	return e, nil
}

// Store returns the client state.
func (e *Engine) Store() *store.Store { return e.store }

// Manager returns the resource operations.
func (e *Engine) Manager() *manager.Manager { return e.manager }

// Monitor returns the session monitor.
func (e *Engine) Monitor() *session.Monitor { return e.monitor }

// Subscriber returns the event relay subscriber.
func (e *Engine) Subscriber() *relay.Subscriber { return e.subscriber }

// Dispatcher returns the push event dispatcher, for registering extra handlers.
func (e *Engine) Dispatcher() *relay.Dispatcher { return e.dispatcher }

// Viewer returns the drop box file viewer.
func (e *Engine) Viewer() *dropbox.Viewer { return e.viewer }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Start begins session monitoring. The first authenticated identity loads
// the dependent data and opens the event relay.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.shutdown || e.cancel != nil {
		e.mu.Unlock()
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	runCtx := e.ctx
	e.mu.Unlock()

	e.logger.WithField("node", e.cfg.BaseURL).Info("Starting")
	e.monitor.Start(runCtx)
}

// Shutdown stops the monitor, closes the relay, waits for background
// loading and disposes the store. It is safe to call more than once.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	cancel := e.cancel
	e.mu.Unlock()

	e.monitor.Stop()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.subscriber.Close()
	e.store.Dispose()
	e.logger.Info("Stopped")
}

func (e *Engine) onIdentity(prev, cur *models.User) {
	if cur == nil {
		return
	}

	e.mu.Lock()
	if e.loaded || e.shutdown || e.ctx == nil {
		e.mu.Unlock()
		return
	}
	e.loaded = true
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.WithField("user", cur.Sub).Info("Signed in, loading data")
	go func() {
		defer e.wg.Done()
		e.LoadDependentData(ctx)
		if err := e.OpenRelay(ctx); err != nil {
			e.logger.WithError(err).Warn("Event relay not opened")
		}
	}()
}

func (e *Engine) onSessionEnded() {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
	e.subscriber.Close()
	// The next sign-in may see a different catalog.
	e.manager.InvalidateServices()
}

// LoadDependentData fetches everything the operator needs once signed in.
// Individual failures are already posted as notices and do not stop the
// other fetches.
func (e *Engine) LoadDependentData(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error { return e.manager.FetchProjectsWithDatasets(ctx) })
	g.Go(func() error { return e.manager.FetchServicesWithWorkflows(ctx) })
	g.Go(func() error {
		_, err := e.manager.FetchNotifications(ctx)
		return err
	})
	g.Go(func() error {
		_, err := e.manager.FetchRuns(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.WithError(err).Debug("Some dependent data failed to load")
	}
}

// RelayBaseURL returns the configured relay URL, or the one discovered in
// the service registry. Empty when the relay is disabled or unknown.
func (e *Engine) RelayBaseURL() string {
	if e.cfg.EventRelay.Disabled {
		return ""
	}
	if e.cfg.EventRelay.URL != "" {
		return strings.TrimSuffix(e.cfg.EventRelay.URL, "/")
	}
	return e.manager.EventRelayURL()
}

// OpenRelay connects to the event relay if one is configured.
func (e *Engine) OpenRelay(ctx context.Context) error {
	base := e.RelayBaseURL()
	if base == "" {
		e.logger.Debug("No event relay configured")
		return nil
	}
	e.subscriber.SetURL(relay.EventsURL(base))
	_, err := e.subscriber.Open(ctx)
	return err
}
