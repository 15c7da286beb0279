package protocol

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatstand/subghz/pulse"
	"github.com/hatstand/subghz/telemetry"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize   = 16
	DefaultDedupWindow = 500 * time.Millisecond
)

type Options struct {
	// Decoders to instantiate from the registry, in feed order.
	Decoders []string
	// Fallback sees only samples no other decoder has matched on.
	Fallback    string
	DedupWindow time.Duration
	QueueSize   int
	Logger      *zap.Logger
	Clock       func() time.Time
}

type activeSet struct {
	decoders []Decoder
	fallback Decoder
}

type tuning struct {
	frequency uint32
	preset    string
}

// Multiplexer feeds every captured sample to the attached decoders and queues what they decode.
type Multiplexer struct {
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
	dedup    *cache.Cache
	items    chan *Item

	mu       sync.Mutex
	decoders []Decoder
	ignored  map[string]bool
	fallback Decoder

	active atomic.Value
	tuning atomic.Value
	rssi   atomic.Uint32
}

// NewMultiplexer builds the decoders named in opts. Names missing from the registry are
// logged and skipped; they are returned so the caller can report them.
func NewMultiplexer(reg *Registry, opts Options) (*Multiplexer, []string) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	m := &Multiplexer{
		registry: reg,
		logger:   opts.Logger,
		now:      opts.Clock,
		items:    make(chan *Item, opts.QueueSize),
		ignored:  make(map[string]bool),
	}
	if opts.DedupWindow > 0 {
		m.dedup = cache.New(opts.DedupWindow, 4*opts.DedupWindow)
	}
	m.rssi.Store(math.Float32bits(float32(math.Inf(-1))))
	m.tuning.Store(tuning{})

	var missing []string
	for _, name := range opts.Decoders {
		if err := m.Add(name); err != nil {
			missing = append(missing, name)
		}
	}
	if opts.Fallback != "" {
		if err := m.SetFallback(opts.Fallback); err != nil {
			missing = append(missing, opts.Fallback)
		}
	}
	m.publish()
	return m, missing
}

// Add instantiates and attaches another decoder.
func (m *Multiplexer) Add(name string) error {
	d, err := m.registry.New(name)
	if err != nil {
		m.logger.Warn("Decoder not available", zap.String("decoder", name))
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoders = append(m.decoders, d)
	m.publish()
	return nil
}

// SetFallback swaps the fallback decoder. The previous one is kept if name is unknown.
func (m *Multiplexer) SetFallback(name string) error {
	d, err := m.registry.New(name)
	if err != nil {
		m.logger.Warn("Fallback decoder not available", zap.String("decoder", name))
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = d
	m.publish()
	return nil
}

// publish swaps in the set of decoders the capture goroutine feeds. Callers hold mu,
// except the constructor.
func (m *Multiplexer) publish() {
	set := &activeSet{}
	for _, d := range m.decoders {
		if !m.ignored[d.Name()] {
			set.decoders = append(set.decoders, d)
		}
	}
	if m.fallback != nil && !m.ignored[m.fallback.Name()] {
		set.fallback = m.fallback
	}
	m.active.Store(set)
}

func (m *Multiplexer) find(name string) Decoder {
	for _, d := range m.decoders {
		if d.Name() == name {
			return d
		}
	}
	if m.fallback != nil && m.fallback.Name() == name {
		return m.fallback
	}
	return nil
}

// Ignore detaches the named decoders; they keep existing but produce nothing.
// Unknown names are skipped and reported with ErrUnknownDecoder.
func (m *Multiplexer) Ignore(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, name := range names {
		if m.find(name) == nil {
			errs = append(errs, ErrUnknownDecoder)
			m.logger.Debug("Ignoring unknown decoder", zap.String("decoder", name))
			continue
		}
		m.ignored[name] = true
	}
	m.publish()
	return errors.Join(errs...)
}

// Attach re-enables an ignored decoder from a clean state.
func (m *Multiplexer) Attach(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.find(name)
	if d == nil {
		return ErrUnknownDecoder
	}
	if m.ignored[name] {
		d.Reset()
		delete(m.ignored, name)
		m.publish()
	}
	return nil
}

func (m *Multiplexer) Ignored(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored[name]
}

// Feed is the capture consumer.
func (m *Multiplexer) Feed(level bool, duration uint32) {
	ld := pulse.New(level, duration)
	set := m.active.Load().(*activeSet)
	matched := false
	for _, d := range set.decoders {
		if item := d.Feed(ld); item != nil {
			matched = true
			m.emit(item)
		}
	}
	if set.fallback == nil {
		return
	}
	if matched {
		set.fallback.Reset()
		return
	}
	if item := set.fallback.Feed(ld); item != nil {
		m.emit(item)
	}
}

func (m *Multiplexer) emit(item *Item) {
	if m.dedup != nil {
		key := item.Key()
		if _, found := m.dedup.Get(key); found {
			m.dedup.SetDefault(key, struct{}{})
			telemetry.DecodesSuppressed.WithLabelValues("repeat").Inc()
			return
		}
		m.dedup.SetDefault(key, struct{}{})
	}

	t := m.tuning.Load().(tuning)
	stamped := *item
	stamped.Time = m.now()
	stamped.RSSI = m.RSSI()
	stamped.Frequency = t.frequency
	stamped.Preset = t.preset

	select {
	case m.items <- &stamped:
		telemetry.Decodes.WithLabelValues(item.Protocol).Inc()
	default:
		telemetry.DecodesSuppressed.WithLabelValues("queue_full").Inc()
	}
}

// Drain discards items queued but not yet collected and returns how many there were.
// Reset leaves the queue alone so a retune doesn't lose decodes from before it.
func (m *Multiplexer) Drain() int {
	n := 0
	for {
		select {
		case <-m.items:
			n++
		default:
			return n
		}
	}
}

// Items delivers decoded items to the session.
func (m *Multiplexer) Items() <-chan *Item {
	return m.items
}

// InputRSSI forwards the latest RSSI sample to decoders that want it.
func (m *Multiplexer) InputRSSI(rssi float32) {
	m.rssi.Store(math.Float32bits(rssi))
	set := m.active.Load().(*activeSet)
	for _, d := range set.decoders {
		if r, ok := d.(RSSIReceiver); ok {
			r.InputRSSI(rssi)
		}
	}
	if r, ok := set.fallback.(RSSIReceiver); ok {
		r.InputRSSI(rssi)
	}
}

func (m *Multiplexer) RSSI() float32 {
	return math.Float32frombits(m.rssi.Load())
}

// SetTuning records where subsequent items are being received.
func (m *Multiplexer) SetTuning(frequency uint32, preset string) {
	m.tuning.Store(tuning{frequency: frequency, preset: preset})
}

// Reset clears decoder state and the repeat filter. Capture must be stopped.
func (m *Multiplexer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.decoders {
		d.Reset()
	}
	if m.fallback != nil {
		m.fallback.Reset()
	}
	if m.dedup != nil {
		m.dedup.Flush()
	}
}
