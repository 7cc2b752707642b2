package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

// scriptedDoer replays responses in order and repeats the last one.
type scriptedDoer struct {
	mu    sync.Mutex
	steps []func(req api.Request) (*api.Response, error)
	calls int
}

func (d *scriptedDoer) Do(ctx context.Context, req api.Request) (*api.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.steps) {
		i = len(d.steps) - 1
	}
	d.calls++
	return d.steps[i](req)
}

func (d *scriptedDoer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func user(sub string) func(api.Request) (*api.Response, error) {
	return func(req api.Request) (*api.Response, error) {
		return &api.Response{StatusCode: http.StatusOK, Body: []byte(`{"sub":"` + sub + `","chord_user_role":"owner"}`)}, nil
	}
}

func null(req api.Request) (*api.Response, error) {
	return &api.Response{StatusCode: http.StatusOK, Body: []byte("null")}, nil
}

func unauthorized(req api.Request) (*api.Response, error) {
	return nil, errors.Unauthenticated(req.Path, http.StatusUnauthorized)
}

func unreachable(req api.Request) (*api.Response, error) {
	return nil, errors.Transport(req.Method, req.Path, context.DeadlineExceeded)
}

func newMonitor(doer action.Doer, cfg Config) (*Monitor, *store.Store) {
	s := store.New()
	return NewMonitor(action.NewManager(s, doer), "/api/auth/user", cfg, nil), s
}

func TestObserveEdgeSequences(t *testing.T) {
	u := &models.User{Sub: "u"}
	v := &models.User{Sub: "v"}

	tests := []struct {
		name         string
		observations []*models.User
		edges        int
	}{
		{name: "sign out once", observations: []*models.User{u, u, nil, nil}, edges: 1},
		{name: "never signed in", observations: []*models.User{nil, nil}, edges: 0},
		{name: "identity change", observations: []*models.User{u, v, v}, edges: 0},
		{name: "sign out twice", observations: []*models.User{u, nil, v, nil}, edges: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(&scriptedDoer{}, Config{})
			var fired int
			m.OnSessionEnded(func() { fired++ })

			for _, obs := range tt.observations {
				m.Observe(obs)
			}
			assert.Equal(t, tt.edges, fired)
		})
	}
}

func TestCheckObservations(t *testing.T) {
	doer := &scriptedDoer{steps: []func(api.Request) (*api.Response, error){
		user("u"), unreachable, unauthorized, user("u"), null,
	}}
	m, s := newMonitor(doer, Config{})
	var fired int
	m.OnSessionEnded(func() { fired++ })
	ctx := context.Background()

	cur, err := m.Check(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "u", cur.Sub)
	assert.Equal(t, "u", s.Session().Identity.Sub)

	// transport failure keeps the previous identity and posts a notice
	cur, err = m.Check(ctx)
	assert.True(t, errors.Is(err, errors.ErrCodeTransport))
	assert.Equal(t, "u", cur.Sub)
	assert.Equal(t, 0, fired)
	require.Len(t, s.Notices(), 1)
	assert.Equal(t, "Error checking session", s.Notices()[0].Message)

	// 401 is a sign-out observation, not an error
	cur, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
	assert.Nil(t, s.Session().Identity)
	assert.Equal(t, 1, fired)

	_, err = m.Check(ctx)
	require.NoError(t, err)
	_, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fired, "null body after sign-in is another edge")
}

func TestOnIdentitySeesTransitions(t *testing.T) {
	m, _ := newMonitor(&scriptedDoer{}, Config{})
	var firstSignIn int
	m.OnIdentity(func(prev, cur *models.User) {
		if prev == nil && cur != nil {
			firstSignIn++
		}
	})

	m.Observe(nil)
	m.Observe(&models.User{Sub: "u"})
	m.Observe(&models.User{Sub: "u"})
	assert.Equal(t, 1, firstSignIn)
}

func TestStartPollsAndSuspendsOnSignOut(t *testing.T) {
	doer := &scriptedDoer{steps: []func(api.Request) (*api.Response, error){user("u"), user("u"), null}}
	m, _ := newMonitor(doer, Config{Interval: 5 * time.Millisecond, SuspendOnSignOut: true})

	var fired int32
	m.OnSessionEnded(func() { atomic.AddInt32(&fired, 1) })

	m.Start(context.Background())
	require.Eventually(t, m.Suspended, time.Second, time.Millisecond)

	calls := doer.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, doer.Calls(), "no polling while suspended")
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	m.Resume()
	require.Eventually(t, func() bool { return doer.Calls() > calls }, time.Second, time.Millisecond)
	m.Stop()
}

func TestStopIsFinal(t *testing.T) {
	doer := &scriptedDoer{steps: []func(api.Request) (*api.Response, error){user("u")}}
	m, _ := newMonitor(doer, Config{Interval: 5 * time.Millisecond})

	var fired int32
	m.OnSessionEnded(func() { atomic.AddInt32(&fired, 1) })

	m.Start(context.Background())
	require.Eventually(t, func() bool { return doer.Calls() >= 2 }, time.Second, time.Millisecond)
	m.Stop()

	calls := doer.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, doer.Calls())

	assert.False(t, m.Observe(nil), "observations after Stop are ignored")
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	m.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, doer.Calls(), "a stopped monitor cannot restart")
}

func TestStopWithoutStart(t *testing.T) {
	m, _ := newMonitor(&scriptedDoer{}, Config{})
	assert.NotPanics(t, m.Stop)
	assert.Equal(t, DefaultInterval, m.cfg.Interval)
}
