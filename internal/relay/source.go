// Package relay subscribes to the node's event relay and dispatches push
// events to handlers in arrival order.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grovetools/chordsync/errors"
)

// EventsPath is the relay endpoint for authenticated event streams.
const EventsPath = "/private/events"

// PushEvent is a message delivered by the relay.
type PushEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Source delivers push events until closed.
type Source interface {
	// Receive blocks until the next event. Malformed frames are reported
	// with a MALFORMED_RESPONSE error and the source stays usable; any other
	// error means the source is finished.
	Receive() (PushEvent, error)
	Close() error
}

// Dialer opens a Source.
type Dialer interface {
	Dial(ctx context.Context, url string) (Source, error)
}

// WebsocketDialer dials the relay over a websocket.
type WebsocketDialer struct {
	Token            string
	Cookie           string
	HandshakeTimeout time.Duration
}

// Dial connects to rawURL. http(s) schemes are rewritten to ws(s).
func (d WebsocketDialer) Dial(ctx context.Context, rawURL string) (Source, error) {
	target, err := websocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	if d.Cookie != "" {
		header.Set("Cookie", d.Cookie)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		e := errors.Wrap(err, errors.ErrCodeRelayUnavailable, fmt.Sprintf("failed to connect to event relay at %s", target))
		if resp != nil {
			e = e.WithDetail("status", resp.StatusCode)
		}
		return nil, e
	}
	return &wsSource{conn: conn}, nil
}

func websocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid relay URL '%s'", rawURL))
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unsupported relay URL scheme '%s'", u.Scheme))
	}
	return u.String(), nil
}

// EventsURL joins a relay base URL with the events endpoint.
func EventsURL(base string) string {
	return strings.TrimSuffix(base, "/") + EventsPath
}

type wsSource struct {
	conn *websocket.Conn
}

func (s *wsSource) Receive() (PushEvent, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return PushEvent{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var ev PushEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return PushEvent{}, errors.MalformedResponse(s.conn.RemoteAddr().String(), err)
		}
		if ev.Type == "" {
			return PushEvent{}, errors.MalformedResponse(s.conn.RemoteAddr().String(), fmt.Errorf("event without type"))
		}
		return ev, nil
	}
}

func (s *wsSource) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
