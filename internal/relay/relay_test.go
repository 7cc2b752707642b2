package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/store"
)

// chanSource is a Source fed from a channel.
type chanSource struct {
	events    chan PushEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan PushEvent, 16), closed: make(chan struct{})}
}

func (s *chanSource) Receive() (PushEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return PushEvent{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return PushEvent{}, io.EOF
	}
}

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeDialer struct {
	dials  int32
	source *chanSource
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Source, error) {
	atomic.AddInt32(&d.dials, 1)
	d.source = newChanSource()
	return d.source, nil
}

func event(t, payload string) PushEvent {
	return PushEvent{Type: t, Payload: json.RawMessage(payload)}
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var got []string
	d.Handle("notification", func(ctx context.Context, ev PushEvent) { got = append(got, "a:"+string(ev.Payload)) })
	d.Handle("notification", func(ctx context.Context, ev PushEvent) { got = append(got, "b:"+string(ev.Payload)) })
	d.Handle("wes_run_updated", func(ctx context.Context, ev PushEvent) { panic("handler bug") })

	d.Dispatch(context.Background(), event("notification", `1`))
	d.Dispatch(context.Background(), event("unknown", `2`))
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), event("wes_run_updated", `3`)) })

	assert.Equal(t, []string{"a:1", "b:1"}, got)
}

func TestDispatcherRecordsEventsInStore(t *testing.T) {
	s := store.New()
	updates := s.Subscribe()
	d := NewDispatcher(s, nil)

	d.Dispatch(context.Background(), event("service_changed", `{}`))

	u := <-updates
	assert.Equal(t, store.UpdateEvent, u.Type)
	ev, ok := u.Payload.(store.EventRelayed)
	require.True(t, ok)
	assert.Equal(t, "service_changed", ev.Type)
}

func TestOpenRequiresURL(t *testing.T) {
	sub := NewSubscriber(&fakeDialer{}, NewDispatcher(nil, nil), nil)
	_, err := sub.Open(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeRelayUnavailable))
}

func TestOpenIsMemoized(t *testing.T) {
	dialer := &fakeDialer{}
	sub := NewSubscriber(dialer, NewDispatcher(nil, nil), nil)
	sub.SetURL("ws://relay/private/events")

	first, err := sub.Open(context.Background())
	require.NoError(t, err)
	second, err := sub.Open(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dialer.dials))
	assert.Same(t, first, sub.Current())

	sub.Close()
	assert.Nil(t, sub.Current())

	third, err := sub.Open(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dialer.dials))
	sub.Close()
}

func TestChannelPreservesArrivalOrder(t *testing.T) {
	dialer := &fakeDialer{}
	d := NewDispatcher(nil, nil)

	var mu sync.Mutex
	var got []string
	d.Handle("n", func(ctx context.Context, ev PushEvent) {
		// uneven handler latency must not reorder delivery
		if string(ev.Payload) == `"0"` {
			time.Sleep(10 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, string(ev.Payload))
		mu.Unlock()
	})

	sub := NewSubscriber(dialer, d, nil)
	sub.SetURL("ws://relay/private/events")
	_, err := sub.Open(context.Background())
	require.NoError(t, err)

	want := []string{`"0"`, `"1"`, `"2"`, `"3"`, `"4"`}
	for _, p := range want {
		dialer.source.events <- event("n", p)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, got)
	sub.Close()
}

func TestChannelEndsWithoutReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	sub := NewSubscriber(dialer, NewDispatcher(nil, nil), nil)
	sub.SetURL("ws://relay/private/events")

	ch, err := sub.Open(context.Background())
	require.NoError(t, err)
	close(dialer.source.events)

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not finish")
	}
	assert.ErrorIs(t, ch.Err(), io.EOF)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dialer.dials))
	assert.Nil(t, sub.Current())
}

func TestWebsocketSource(t *testing.T) {
	auths := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EventsPath, r.URL.Path)
		auths <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","payload":{"id":"n1"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wes_run_updated","payload":{"run_id":"r1"}}`))
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	d := NewDispatcher(nil, nil)
	var mu sync.Mutex
	var types []string
	record := func(ctx context.Context, ev PushEvent) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type)
	}
	d.Handle("notification", record)
	d.Handle("wes_run_updated", record)

	sub := NewSubscriber(WebsocketDialer{Token: "secret"}, d, nil)
	sub.SetURL(EventsURL(srv.URL + "/"))
	_, err := sub.Open(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"notification", "wes_run_updated"}, types)
	assert.Equal(t, "Bearer secret", <-auths)

	sub.Close()
}

func TestWebsocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := WebsocketDialer{}.Dial(context.Background(), EventsURL(srv.URL))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRelayUnavailable))
	status, ok := errors.Detail(err, "status")
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://node/relay/private/events", want: "ws://node/relay/private/events"},
		{in: "https://node/private/events", want: "wss://node/private/events"},
		{in: "wss://node/private/events", want: "wss://node/private/events"},
		{in: "ftp://node", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := websocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.HasSuffix(got, "/"))
		})
	}
}
