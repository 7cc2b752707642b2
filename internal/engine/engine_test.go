package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/chordsync/config"
	"github.com/grovetools/chordsync/internal/relay"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/models"
	"github.com/grovetools/chordsync/testutil"
)

type memorySelection struct {
	mu       sync.Mutex
	selected string
}

func (s *memorySelection) SelectedProject() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, nil
}

func (s *memorySelection) SelectProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
	return nil
}

type chanSource struct {
	events    chan relay.PushEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *chanSource) Receive() (relay.PushEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return relay.PushEvent{}, io.EOF
	}
}

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeDialer struct {
	mu     sync.Mutex
	urls   []string
	source *chanSource
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (relay.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.source = &chanSource{events: make(chan relay.PushEvent, 16), closed: make(chan struct{})}
	return d.source, nil
}

func (d *fakeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) send(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	d.mu.Lock()
	src := d.source
	d.mu.Unlock()
	require.NotNil(t, src)
	src.events <- relay.PushEvent{Type: eventType, Payload: data}
}

// node serves an empty node with a signed-in user. signedIn flips the
// session endpoint to 401.
type node struct {
	backend  *testutil.Backend
	signedIn atomic.Bool
}

func newNode(t *testing.T) *node {
	n := &node{backend: testutil.NewBackend(t)}
	n.signedIn.Store(true)
	n.backend.Handle(http.MethodGet, "/api/auth/user", func(w http.ResponseWriter, r *http.Request) {
		if !n.signedIn.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.User{Sub: "u-1", PreferredUsername: "ada"})
	})
	n.backend.JSON(http.MethodGet, "/api/project/projects", http.StatusOK, []models.Project{})
	n.backend.JSON(http.MethodGet, "/api/service-registry/services", http.StatusOK, []models.Service{})
	n.backend.JSON(http.MethodGet, "/api/notification/notifications", http.StatusOK, []models.Notification{})
	n.backend.JSON(http.MethodGet, "/api/wes/runs", http.StatusOK, []models.Run{})
	return n
}

func newTestEngine(t *testing.T, n *node, extra string) (*Engine, *fakeDialer) {
	t.Helper()
	yml := fmt.Sprintf("base_url: %s\nsession:\n  poll_interval: 20ms\n%s", n.backend.URL(), extra)
	cfg, err := config.LoadFromBytes([]byte(yml), "yaml")
	require.NoError(t, err)

	dialer := &fakeDialer{}
	e, err := New(cfg, WithDialer(dialer), WithSelection(&memorySelection{}))
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e, dialer
}

const relayConfig = "event_relay:\n  url: https://relay.example/\n"

func TestStartLoadsDataAndOpensRelay(t *testing.T) {
	n := newNode(t)
	e, dialer := newTestEngine(t, n, relayConfig)

	e.Start(context.Background())

	require.Eventually(t, func() bool { return len(dialer.dials()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "https://relay.example"+relay.EventsPath, dialer.dials()[0])

	for _, kind := range []store.Kind{store.KindProjects, store.KindServices, store.KindNotifications, store.KindRuns} {
		assert.NotNil(t, e.Store().Slice(store.Key(kind)).LastUpdated, "%s should be loaded", kind)
	}
	assert.Equal(t, "u-1", e.Store().Session().Identity.Sub)

	// Later polls with the same identity do not reload.
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, n.backend.Requests(http.MethodGet, "/api/project/projects"), 1)
	assert.Len(t, dialer.dials(), 1)
}

func TestPushEventHandlers(t *testing.T) {
	n := newNode(t)
	n.backend.JSON(http.MethodGet, "/api/wes/runs/r-1", http.StatusOK, models.RunDetails{RunID: "r-1", State: "RUNNING"})
	e, dialer := newTestEngine(t, n, relayConfig)

	e.Start(context.Background())
	require.Eventually(t, func() bool { return e.Subscriber().Current() != nil }, 2*time.Second, 10*time.Millisecond)

	t.Run("notification is upserted", func(t *testing.T) {
		dialer.send(t, EventNotification, models.Notification{ID: "n-1", Title: "Ingestion done"})
		require.Eventually(t, func() bool {
			_, ok := e.Store().Get(store.Key(store.KindNotifications), "n-1")
			return ok
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("run update refreshes runs and details", func(t *testing.T) {
		dialer.send(t, EventRunUpdated, models.Run{RunID: "r-1", State: "RUNNING"})
		require.Eventually(t, func() bool {
			_, ok := e.Manager().RunDetails("r-1")
			return ok && len(n.backend.Requests(http.MethodGet, "/api/wes/runs")) == 2
		}, 2*time.Second, 10*time.Millisecond)
		assert.False(t, e.Store().Slice(store.Key(store.KindRuns)).DidInvalidate)
	})

	t.Run("terminal run is refetched when updated", func(t *testing.T) {
		n.backend.JSON(http.MethodGet, "/api/wes/runs/r-2", http.StatusOK, models.RunDetails{RunID: "r-2", State: "COMPLETE"})
		_, err := e.Manager().FetchRunDetails(context.Background(), "r-2")
		require.NoError(t, err)

		dialer.send(t, EventRunUpdated, models.Run{RunID: "r-2", State: "COMPLETE"})
		require.Eventually(t, func() bool {
			return len(n.backend.Requests(http.MethodGet, "/api/wes/runs/r-2")) == 2
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("service change reloads services and workflows", func(t *testing.T) {
		n.backend.JSON(http.MethodGet, "/api/service-registry/services", http.StatusOK, []models.Service{{
			ID:       "svc-variant",
			Name:     "variant",
			Metadata: models.ServiceMetadata{DataService: true},
		}})
		n.backend.Raw(http.MethodGet, "/api/variant/workflows", http.StatusOK,
			`{"ingestion": {"vcf_gz": {"name": "VCF", "inputs": [{"id": "vcf_files", "type": "file[]", "extensions": [".vcf.gz"]}]}}}`)

		dialer.send(t, EventServiceChanged, map[string]string{})
		require.Eventually(t, func() bool {
			return len(e.Manager().Workflows()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		assert.Len(t, n.backend.Requests(http.MethodGet, "/api/service-registry/services"), 2)
		assert.False(t, e.Store().Slice(store.Key(store.KindServices)).DidInvalidate)
		_, err := e.Manager().Workflow("svc-variant", "vcf_gz")
		assert.NoError(t, err)
	})
}

func TestSignOutClosesRelay(t *testing.T) {
	n := newNode(t)
	e, dialer := newTestEngine(t, n, relayConfig)

	ended := make(chan struct{}, 1)
	e.Monitor().OnSessionEnded(func() { ended <- struct{}{} })

	e.Start(context.Background())
	require.Eventually(t, func() bool { return e.Subscriber().Current() != nil }, 2*time.Second, 10*time.Millisecond)

	n.signedIn.Store(false)
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session end not detected")
	}

	assert.Nil(t, e.Subscriber().Current())
	assert.True(t, e.Monitor().Suspended())

	// Signing in again dials a fresh channel; only one is ever open.
	n.signedIn.Store(true)
	e.Monitor().Resume()
	require.Eventually(t, func() bool { return e.Subscriber().Current() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, dialer.dials(), 2)
}

func TestRelayDisabled(t *testing.T) {
	n := newNode(t)
	e, dialer := newTestEngine(t, n, "event_relay:\n  url: https://relay.example\n  disabled: true\n")

	e.Start(context.Background())
	require.Eventually(t, func() bool {
		return e.Store().Slice(store.Key(store.KindRuns)).LastUpdated != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, e.RelayBaseURL())
	assert.Empty(t, dialer.dials())
}

func TestRelayDiscoveredFromRegistry(t *testing.T) {
	n := newNode(t)
	n.backend.JSON(http.MethodGet, "/api/service-registry/services", http.StatusOK, []models.Service{{
		ID:   "relay",
		Name: "event-relay",
		URL:  "/api/event-relay",
		Type: models.ServiceType{Artifact: "event-relay"},
	}})
	e, dialer := newTestEngine(t, n, "")

	e.Start(context.Background())
	require.Eventually(t, func() bool { return len(dialer.dials()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, n.backend.URL()+"/api/event-relay"+relay.EventsPath, dialer.dials()[0])
}

func TestShutdown(t *testing.T) {
	n := newNode(t)
	e, _ := newTestEngine(t, n, relayConfig)

	e.Start(context.Background())
	require.Eventually(t, func() bool { return e.Subscriber().Current() != nil }, 2*time.Second, 10*time.Millisecond)

	e.Shutdown()
	e.Shutdown()

	assert.True(t, e.Store().Disposed())
	assert.Nil(t, e.Subscriber().Current())

	// Start after Shutdown is a no-op.
	e.Start(context.Background())
	assert.True(t, e.Store().Disposed())
}
