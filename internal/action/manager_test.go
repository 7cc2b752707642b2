package action

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

type fakeDoer struct {
	calls   int32
	release chan struct{}
	respond func(req api.Request) (*api.Response, error)
}

func (f *fakeDoer) Do(ctx context.Context, req api.Request) (*api.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.respond(req)
}

func jsonBody(body string) func(api.Request) (*api.Response, error) {
	return func(req api.Request) (*api.Response, error) {
		return &api.Response{StatusCode: http.StatusOK, Body: []byte(body), URL: req.Path}, nil
	}
}

func projectsEnvelope() Envelope {
	return Envelope{
		Key:          store.Key(store.KindProjects),
		Request:      api.Get("/api/project/projects"),
		Decode:       List[models.Project](),
		Mode:         store.MergeReplace,
		ErrorMessage: "Error fetching projects",
	}
}

func TestExecuteReceived(t *testing.T) {
	s := store.New()
	doer := &fakeDoer{respond: jsonBody(`[{"identifier":"p1","title":"One"},{"identifier":"p2","title":"Two"}]`)}
	m := NewManager(s, doer)

	items, err := m.Execute(context.Background(), projectsEnvelope())
	require.NoError(t, err)
	assert.Len(t, items, 2)

	sl := s.Slice(store.Key(store.KindProjects))
	assert.False(t, sl.IsFetching)
	require.NotNil(t, sl.LastUpdated)
	assert.Equal(t, []string{"p1", "p2"}, models.IDs(sl.Items))
	assert.Empty(t, s.Notices())
}

func TestExecuteConcurrentIsSingleFlight(t *testing.T) {
	s := store.New()
	doer := &fakeDoer{release: make(chan struct{}), respond: jsonBody(`[]`)}
	m := NewManager(s, doer, WithMetrics(metrics.MustNew(prometheus.NewRegistry())))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = m.Execute(context.Background(), projectsEnvelope())
	}()
	require.Eventually(t, func() bool { return s.IsFetching(store.Key(store.KindProjects)) }, time.Second, time.Millisecond)

	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Execute(context.Background(), projectsEnvelope())
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(doer.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.calls))
	assert.NoError(t, errs[0])
	for _, err := range errs[1:] {
		assert.True(t, errors.Is(err, errors.ErrCodeInFlight))
	}
	assert.False(t, s.IsFetching(store.Key(store.KindProjects)))
}

func TestExecuteFailureKeepsItemsAndNotifies(t *testing.T) {
	s := store.New()
	doer := &fakeDoer{respond: jsonBody(`[{"identifier":"p1"}]`)}
	m := NewManager(s, doer)
	_, err := m.Execute(context.Background(), projectsEnvelope())
	require.NoError(t, err)

	doer.respond = func(req api.Request) (*api.Response, error) {
		return nil, errors.HTTPStatus(req.Method, req.Path, http.StatusBadGateway, "")
	}
	_, err = m.Execute(context.Background(), projectsEnvelope())
	assert.True(t, errors.Is(err, errors.ErrCodeTransport))

	sl := s.Slice(store.Key(store.KindProjects))
	assert.False(t, sl.IsFetching)
	assert.Equal(t, []string{"p1"}, models.IDs(sl.Items))

	notices := s.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, store.NoticeError, notices[0].Level)
	assert.Equal(t, "Error fetching projects", notices[0].Message)
}

func TestExecuteMalformedBodyFails(t *testing.T) {
	s := store.New()
	m := NewManager(s, &fakeDoer{respond: jsonBody(`{"oops":`)})

	_, err := m.Execute(context.Background(), projectsEnvelope())
	assert.Equal(t, errors.ErrCodeMalformedResponse, errors.GetCode(err))
	assert.False(t, s.IsFetching(store.Key(store.KindProjects)))
	assert.NotEmpty(t, s.Slice(store.Key(store.KindProjects)).LastError)
}

func TestExecuteCancelledContextFails(t *testing.T) {
	s := store.New()
	m := NewManager(s, &fakeDoer{release: make(chan struct{}), respond: jsonBody(`[]`)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Execute(ctx, projectsEnvelope())
	assert.Error(t, err)
	assert.False(t, s.IsFetching(store.Key(store.KindProjects)))
}

func TestExecuteRunsAfterAction(t *testing.T) {
	s := store.New()
	m := NewManager(s, &fakeDoer{respond: jsonBody(`{"identifier":"p9","title":"New"}`)})

	var selected string
	env := Envelope{
		Key:     store.Key(store.KindProjects),
		Request: api.Get("/x"),
		Decode:  One[models.Project](),
		Mode:    store.MergeUpsert,
		After: func(ctx context.Context, items []models.Entity) error {
			selected = items[0].EntityID()
			return nil
		},
	}
	_, err := m.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "p9", selected)

	env.After = func(context.Context, []models.Entity) error { return fmt.Errorf("could not select") }
	_, err = m.Execute(context.Background(), env)
	assert.EqualError(t, err, "could not select")
	assert.False(t, s.IsFetching(store.Key(store.KindProjects)))
}

func TestExecuteDeleteUsesSuppliedItems(t *testing.T) {
	s := store.New()
	s.Apply(store.Merged{Key: store.Key(store.KindProjects), Items: []models.Entity{models.Project{ID: "a"}, models.Project{ID: "b"}}})
	m := NewManager(s, &fakeDoer{respond: jsonBody(``)})

	_, err := m.Execute(context.Background(), Envelope{
		Key:     store.Key(store.KindProjects),
		Request: api.Delete("/api/project/projects/a"),
		Items:   []models.Entity{models.Project{ID: "a"}},
		Mode:    store.MergeRemove,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, models.IDs(s.Slice(store.Key(store.KindProjects)).Items))
}

func TestExecutePanicReleasesSlice(t *testing.T) {
	tests := []struct {
		name string
		doer *fakeDoer
		env  Envelope
	}{
		{
			name: "doer",
			doer: &fakeDoer{respond: func(api.Request) (*api.Response, error) { panic("connection pool corrupted") }},
			env:  projectsEnvelope(),
		},
		{
			name: "mapper",
			doer: &fakeDoer{respond: jsonBody(`[]`)},
			env: Envelope{
				Key:          store.Key(store.KindProjects),
				Request:      api.Get("/api/project/projects"),
				Decode:       func(*api.Response) ([]models.Entity, error) { panic("bad mapper") },
				ErrorMessage: "Error fetching projects",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			m := NewManager(s, tt.doer)

			_, err := m.Execute(context.Background(), tt.env)
			assert.True(t, errors.Is(err, errors.ErrCodeInternal))
			assert.False(t, s.IsFetching(store.Key(store.KindProjects)))
			assert.Equal(t, "Error fetching projects", s.Notices()[0].Message)

			tt.doer.respond = jsonBody(`[{"identifier":"p1"}]`)
			_, err = m.Execute(context.Background(), projectsEnvelope())
			require.NoError(t, err)
			assert.Equal(t, []string{"p1"}, models.IDs(s.Slice(store.Key(store.KindProjects)).Items))
		})
	}
}

func TestExecuteAfterDisposeIsDropped(t *testing.T) {
	s := store.New()
	doer := &fakeDoer{release: make(chan struct{}), respond: jsonBody(`[{"identifier":"p1"}]`)}
	m := NewManager(s, doer)

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), projectsEnvelope())
		done <- err
	}()
	require.Eventually(t, func() bool { return s.IsFetching(store.Key(store.KindProjects)) }, time.Second, time.Millisecond)
	s.Dispose()
	close(doer.release)

	assert.NoError(t, <-done)
	assert.Empty(t, s.Slice(store.Key(store.KindProjects)).Items)

	_, err := m.Execute(context.Background(), projectsEnvelope())
	assert.True(t, errors.Is(err, errors.ErrCodeDisposed))
}

func TestNeedsFetch(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := store.New()
	m := NewManager(s, &fakeDoer{respond: jsonBody(`[]`)}, WithClock(func() time.Time { return now }))
	key := store.Key(store.KindRuns)

	assert.True(t, m.NeedsFetch(key, time.Minute), "never fetched")

	require.True(t, s.Apply(store.Requested{Key: key}))
	assert.False(t, m.NeedsFetch(key, time.Minute), "fetching")
	require.True(t, s.Apply(store.Received{Key: key, At: now}))
	assert.False(t, m.NeedsFetch(key, time.Minute), "fresh")
	assert.False(t, m.NeedsFetch(key, 0), "no max age")

	now = now.Add(2 * time.Minute)
	assert.True(t, m.NeedsFetch(key, time.Minute), "stale")

	now = now.Add(-2 * time.Minute)
	m.Invalidate(key)
	assert.True(t, m.NeedsFetch(key, time.Minute), "invalidated")
}

func TestExecuteIfNeededReturnsCached(t *testing.T) {
	s := store.New()
	doer := &fakeDoer{respond: jsonBody(`[{"identifier":"p1"}]`)}
	m := NewManager(s, doer)

	_, err := m.ExecuteIfNeeded(context.Background(), projectsEnvelope(), time.Hour)
	require.NoError(t, err)
	items, err := m.ExecuteIfNeeded(context.Background(), projectsEnvelope(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int32(1), doer.calls)
	assert.Equal(t, []string{"p1"}, models.IDs(items))
}
