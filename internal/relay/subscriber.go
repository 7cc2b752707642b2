package relay

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/logging"
)

// queueSize bounds events read but not yet dispatched. A full queue blocks
// the read loop rather than dropping events.
const queueSize = 256

// Subscriber owns at most one open relay channel.
type Subscriber struct {
	dialer     Dialer
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *logrus.Entry

	mu  sync.Mutex
	url string
	ch  *Channel
}

// NewSubscriber creates a Subscriber. m may be nil.
func NewSubscriber(dialer Dialer, dispatcher *Dispatcher, m *metrics.Metrics) *Subscriber {
	return &Subscriber{
		dialer:     dialer,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logging.NewLogger("relay"),
	}
}

// SetURL sets the events URL used by the next Open.
func (s *Subscriber) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// URL returns the configured events URL.
func (s *Subscriber) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Open connects to the relay. While a channel is open, Open returns it
// without dialing again. A channel that has died is not reopened
// automatically; the next Open dials a new one.
func (s *Subscriber) Open(ctx context.Context) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil && !s.ch.closed() {
		return s.ch, nil
	}
	if s.url == "" {
		return nil, errors.New(errors.ErrCodeRelayUnavailable, "no event relay configured")
	}

	src, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("url", s.url).Info("Event relay connected")
	s.metrics.SetRelayConnected(true)
	s.ch = newChannel(src, s.dispatcher, s.logger, func() { s.metrics.SetRelayConnected(false) })
	return s.ch, nil
}

// Current returns the open channel, or nil.
func (s *Subscriber) Current() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil || s.ch.closed() {
		return nil
	}
	return s.ch
}

// Close tears down the open channel, if any, and waits for it to finish.
func (s *Subscriber) Close() {
	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

// Channel is one live relay connection. A reader goroutine queues events in
// arrival order and a single consumer dispatches them.
type Channel struct {
	src        Source
	dispatcher *Dispatcher
	logger     *logrus.Entry
	onDone     func()

	queue     chan PushEvent
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newChannel(src Source, dispatcher *Dispatcher, logger *logrus.Entry, onDone func()) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		src:        src,
		dispatcher: dispatcher,
		logger:     logger,
		onDone:     onDone,
		queue:      make(chan PushEvent, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.dispatchLoop()
	}()
	go func() {
		wg.Wait()
		if c.onDone != nil {
			c.onDone()
		}
		close(c.done)
	}()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.queue)
	for {
		ev, err := c.src.Receive()
		if err != nil {
			if errors.Is(err, errors.ErrCodeMalformedResponse) {
				c.logger.WithError(err).Warn("Skipping malformed relay event")
				continue
			}
			if c.ctx.Err() == nil {
				c.setErr(err)
				c.logger.WithError(err).Warn("Event relay disconnected")
			}
			return
		}
		select {
		case c.queue <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Channel) dispatchLoop() {
	for ev := range c.queue {
		if c.ctx.Err() != nil {
			continue
		}
		c.dispatcher.Dispatch(c.ctx, ev)
	}
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Err returns the error that ended the channel, or nil if it is open or was
// closed deliberately.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once both goroutines have exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return c.ctx.Err() != nil
	}
}

// Close stops reading, drops undispatched events and waits for the
// goroutines to exit.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.src.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing relay source")
		}
	})
	<-c.done
}
