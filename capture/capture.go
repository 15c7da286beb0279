// Package capture turns GDO0 edges into level/duration samples.
package capture

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatstand/subghz/telemetry"
	"github.com/kidoman/embd"
	"go.uber.org/zap"
)

// DefaultQuiesceTimeout bounds how long Stop waits for an in-flight consumer call.
const DefaultQuiesceTimeout = time.Second

var ErrRunning = errors.New("capture already running")

// Consumer receives the level that just ended and how long it lasted in microseconds.
// It runs on the edge-watching goroutine, must return quickly and must not start or stop the radio.
type Consumer func(level bool, duration uint32)

type Option func(*Channel)

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

func WithQuiesceTimeout(d time.Duration) Option {
	return func(c *Channel) { c.quiesceTimeout = d }
}

type Channel struct {
	pin            embd.InterruptPin
	logger         *zap.Logger
	now            func() time.Time
	quiesceTimeout time.Duration

	// Held for reading by every delivery, for writing by Start and Stop.
	mu       sync.RWMutex
	consumer Consumer
	running  bool

	lastEdge atomic.Int64
}

// NewChannel creates a channel fed by pin. A nil pin is allowed for callers that drive Edge themselves.
func NewChannel(pin embd.InterruptPin, opts ...Option) *Channel {
	c := &Channel{
		pin:            pin,
		logger:         zap.NewNop(),
		now:            time.Now,
		quiesceTimeout: DefaultQuiesceTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) Start(consumer Consumer) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.consumer = consumer
	c.running = true
	c.lastEdge.Store(c.now().UnixNano())
	c.mu.Unlock()

	if c.pin == nil {
		return nil
	}
	if err := c.pin.Watch(embd.EdgeBoth, c.handle); err != nil {
		c.mu.Lock()
		c.running = false
		c.consumer = nil
		c.mu.Unlock()
		return err
	}
	c.logger.Debug("Capture started")
	return nil
}

func (c *Channel) handle(pin embd.DigitalPin) {
	at := c.now()
	v, err := pin.Read()
	if err != nil {
		telemetry.CaptureDropped.Inc()
		return
	}
	c.Edge(v == embd.High, at)
}

// Edge reports that the line switched to level at the given time.
func (c *Channel) Edge(level bool, at time.Time) {
	if !c.mu.TryRLock() {
		telemetry.CaptureDropped.Inc()
		return
	}
	defer c.mu.RUnlock()
	if !c.running {
		return
	}

	now := at.UnixNano()
	prev := c.lastEdge.Swap(now)
	us := (now - prev) / int64(time.Microsecond)
	if us < 0 {
		us = 0
	} else if us > math.MaxUint32 {
		us = math.MaxUint32
	}
	telemetry.CaptureSamples.Inc()
	c.consumer(!level, uint32(us))
}

func (c *Channel) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Stop detaches the consumer. When it returns no consumer call is in flight and none will follow.
// Calling Stop from inside the consumer never quiesces and panics after the quiesce timeout.
func (c *Channel) Stop() {
	if c.pin != nil {
		if err := c.pin.StopWatching(); err != nil {
			c.logger.Debug("Failed to stop watching GDO0", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		c.running = false
		c.consumer = nil
		c.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.quiesceTimeout):
		c.logger.Error("Capture consumer did not return; was the radio stopped from inside the capture callback?")
		panic("capture: stop did not quiesce")
	}
}
