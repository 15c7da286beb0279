// Package receiver runs the interactive receive session: it tunes the radio, collects
// decoded keys into the history and replays them on request.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hatstand/subghz"
	"github.com/hatstand/subghz/capture"
	"github.com/hatstand/subghz/history"
	"github.com/hatstand/subghz/hopper"
	"github.com/hatstand/subghz/notify"
	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/pulse"
	"github.com/hatstand/subghz/scene"
	"github.com/hatstand/subghz/telemetry"
	"github.com/hatstand/subghz/txstream"
	"go.uber.org/zap"
)

// Radio is the part of *subghz.Radio the session drives.
type Radio interface {
	SetFrequency(hz uint32) (uint32, error)
	LoadPreset(p *subghz.Preset) error
	StartRx(consumer capture.Consumer) error
	StopRx()
	IsTxAllowed(hz uint32) bool
	StartTx(supplier txstream.Supplier) bool
	StopTx()
	PollTxComplete() bool
	TxErr() error
	RSSI() float32
}

type Notifier interface {
	Play(p notify.Pattern)
}

type Navigator interface {
	Next(id scene.ID)
	SearchAndSwitchToPrevious(targets ...scene.ID) bool
}

type KeyStore interface {
	Save(item *protocol.Item, name string) (string, error)
}

type SessionState int

const (
	Idle SessionState = iota
	Start
	AddKey
	Exit
)

func (s SessionState) String() string {
	switch s {
	case Start:
		return "start"
	case AddKey:
		return "add_key"
	case Exit:
		return "exit"
	default:
		return "idle"
	}
}

type NotifyState int

const (
	NotifyIdle NotifyState = iota
	NotifyRx
	NotifyRxDone
)

type EventKind int

const (
	EventBack EventKind = iota
	// EventOK opens the item at Index.
	EventOK
	EventDelete
	EventConfig
	EventLock
	EventUnlock
	// EventTransmit replays the item at Index.
	EventTransmit
	EventHopperToggle
	// EventSave stores the item at Index under Name, a generated name if empty.
	EventSave
	// EventTune moves to Frequency with the preset called Name, either may be zero.
	EventTune
	// EventEnter shows the receiver again, starting afresh after an exit.
	EventEnter
)

type Event struct {
	Kind      EventKind
	Index     int
	Name      string
	Frequency uint32
}

const DefaultTickPeriod = 100 * time.Millisecond

// DefaultThreshold is the RSSI above which the channel counts as busy.
const DefaultThreshold = -85

var ErrTxRefused = errors.New("transmission refused")

type Options struct {
	Frequency  uint32
	Preset     *subghz.Preset
	Threshold  float32
	TickPeriod time.Duration
	// Hopping arms the hopper whenever the session starts fresh.
	Hopping bool

	History   *history.Store
	Hopper    *hopper.Hopper
	Notifier  Notifier
	Navigator Navigator
	Keys      KeyStore
	// Registry encodes items for transmission.
	Registry *protocol.Registry
	Logger   *zap.Logger
}

type nopNotifier struct{}

func (nopNotifier) Play(notify.Pattern) {}

// Session is not safe for concurrent use. Hosts either call HandleEvent and Tick from
// one goroutine or let Run do it.
type Session struct {
	radio    Radio
	mux      *protocol.Multiplexer
	history  *history.Store
	hopper   *hopper.Hopper
	notifier Notifier
	nav      Navigator
	keys     KeyStore
	registry *protocol.Registry
	logger   *zap.Logger

	tick      time.Duration
	threshold float32
	hopping   bool
	frequency uint32
	preset    *subghz.Preset

	state    SessionState
	notify   NotifyState
	locked   bool
	rxArmed  bool
	txActive bool
	selected int
	rssi     float32
	busy     bool
}

func New(radio Radio, mux *protocol.Multiplexer, opts Options) *Session {
	if opts.Frequency == 0 {
		opts.Frequency = subghz.DefaultFrequency
	}
	if opts.Preset == nil {
		opts.Preset = subghz.PresetOok650Async
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.History == nil {
		opts.History = history.New(history.DefaultBudget)
	}
	if opts.Hopper == nil {
		opts.Hopper = hopper.New(hopper.DefaultOptions)
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Navigator == nil {
		opts.Navigator = scene.NewStack(scene.DefaultDepth, opts.Logger)
	}
	if opts.Registry == nil {
		opts.Registry = protocol.DefaultRegistry
	}
	return &Session{
		radio:     radio,
		mux:       mux,
		history:   opts.History,
		hopper:    opts.Hopper,
		notifier:  opts.Notifier,
		nav:       opts.Navigator,
		keys:      opts.Keys,
		registry:  opts.Registry,
		logger:    opts.Logger,
		tick:      opts.TickPeriod,
		threshold: opts.Threshold,
		hopping:   opts.Hopping,
		frequency: opts.Frequency,
		preset:    opts.Preset,
		rssi:      subghz.RSSIFloor,
	}
}

func (s *Session) State() SessionState     { return s.state }
func (s *Session) Notify() NotifyState     { return s.notify }
func (s *Session) Locked() bool            { return s.locked }
func (s *Session) History() *history.Store { return s.history }
func (s *Session) Hopper() *hopper.Hopper  { return s.hopper }
func (s *Session) Frequency() uint32       { return s.frequency }
func (s *Session) Selected() int           { return s.selected }

// RSSI is the sample taken on the last tick and whether it crossed the threshold.
func (s *Session) RSSI() (float32, bool) {
	return s.rssi, s.busy
}

// Enter shows the receiver. A fresh session clears the history and starts listening;
// returning from an item view just listens again.
func (s *Session) Enter() error {
	if s.state == Idle || s.state == Exit {
		s.history.Reset()
		s.mux.Reset()
		s.mux.Drain()
		if s.hopping {
			s.frequency = s.hopper.On()
		} else {
			s.hopper.Off()
		}
		s.state = Start
		s.logger.Info("Receiver started", zap.Uint32("frequency", s.frequency), zap.String("preset", s.preset.Name))
	}
	s.notify = NotifyRx
	return s.retune(s.frequency)
}

// Reset stops the radio and forgets everything received.
func (s *Session) Reset() {
	s.stopRx()
	if s.txActive {
		s.radio.StopTx()
		s.txActive = false
	}
	s.history.Reset()
	s.hopper.Off()
	s.mux.Reset()
	s.mux.Drain()
	s.state = Idle
	s.notify = NotifyIdle
	s.locked = false
	s.selected = 0
}

// Configure changes where the receiver listens, taking effect immediately if it is listening.
func (s *Session) Configure(frequency uint32, preset *subghz.Preset) error {
	if preset != nil {
		s.preset = preset
	}
	if frequency != 0 {
		s.frequency = frequency
	}
	if s.rxArmed {
		return s.retune(s.frequency)
	}
	return nil
}

func (s *Session) stopRx() {
	if s.rxArmed {
		s.radio.StopRx()
		s.rxArmed = false
	}
}

// retune restarts receive on hz with the preset reloaded.
func (s *Session) retune(hz uint32) error {
	s.stopRx()
	s.mux.Reset()
	if err := s.radio.LoadPreset(s.preset); err != nil {
		return fmt.Errorf("failed to load preset %s: %w", s.preset.Name, err)
	}
	actual, err := s.radio.SetFrequency(hz)
	if err != nil {
		return fmt.Errorf("failed to tune to %d: %w", hz, err)
	}
	s.frequency = actual
	s.mux.SetTuning(actual, s.preset.ShortName())
	if err := s.radio.StartRx(s.mux.Feed); err != nil {
		return fmt.Errorf("failed to start receiving: %w", err)
	}
	s.rxArmed = true
	return nil
}

// HandleEvent applies a user action and reports whether it was consumed.
func (s *Session) HandleEvent(ev Event) bool {
	switch ev.Kind {
	case EventBack:
		if s.locked {
			return true
		}
		s.back()
		return true

	case EventOK:
		if _, err := s.history.Get(ev.Index); err != nil {
			return false
		}
		s.selected = ev.Index
		s.nav.Next(scene.ReceiverInfo)
		return true

	case EventDelete:
		if s.locked {
			return true
		}
		if err := s.history.Delete(ev.Index); err != nil {
			s.logger.Debug("Failed to delete item", zap.Int("index", ev.Index), zap.Error(err))
			return false
		}
		if s.history.Len() == 0 && s.state == AddKey {
			s.state = Start
		}
		return true

	case EventConfig:
		if s.locked {
			return true
		}
		s.nav.Next(scene.ReceiverConfig)
		return true

	case EventLock:
		s.locked = true
		return true

	case EventUnlock:
		if !s.locked {
			return false
		}
		s.locked = false
		return true

	case EventTransmit:
		if err := s.transmit(ev.Index); err != nil {
			s.logger.Warn("Transmit failed", zap.Int("index", ev.Index), zap.Error(err))
			s.notifier.Play(notify.Error)
		}
		return true

	case EventHopperToggle:
		if s.locked {
			return true
		}
		if s.hopper.Enabled() {
			s.hopper.Off()
			s.hopping = false
			return true
		}
		s.hopping = true
		if err := s.retune(s.hopper.On()); err != nil {
			s.logger.Error("Failed to start hopping", zap.Error(err))
		}
		return true

	case EventSave:
		name, err := s.SaveItem(ev.Index, ev.Name)
		if err != nil {
			s.logger.Warn("Failed to save key", zap.Int("index", ev.Index), zap.Error(err))
			return false
		}
		s.nav.Next(scene.SaveSuccess)
		s.logger.Info("Saved", zap.String("name", name))
		return true

	case EventTune:
		if s.locked {
			return true
		}
		var preset *subghz.Preset
		if ev.Name != "" {
			p, err := subghz.LookupPreset(ev.Name)
			if err != nil {
				s.logger.Warn("Unknown preset", zap.String("preset", ev.Name))
				return false
			}
			preset = p
		}
		if err := s.Configure(ev.Frequency, preset); err != nil {
			s.logger.Error("Failed to retune", zap.Error(err))
			s.notifier.Play(notify.Error)
		}
		return true

	case EventEnter:
		if err := s.Enter(); err != nil {
			s.logger.Error("Failed to start receiver", zap.Error(err))
			s.notifier.Play(notify.Error)
		}
		return true
	}
	return false
}

func (s *Session) back() {
	s.stopRx()
	s.hopper.Off()
	s.notify = NotifyIdle
	if s.state == AddKey {
		s.state = Exit
		s.nav.Next(scene.NeedSaving)
		return
	}
	s.state = Idle
	s.history.Reset()
	s.nav.SearchAndSwitchToPrevious(scene.Start)
}

func (s *Session) transmit(index int) error {
	if s.txActive {
		return subghz.ErrBusy
	}
	item, err := s.history.Get(index)
	if err != nil {
		return err
	}
	timings, err := protocol.Encode(s.registry, item)
	if err != nil {
		return err
	}
	hz := s.frequency
	if item.Frequency != 0 {
		hz = item.Frequency
	}
	if !s.radio.IsTxAllowed(hz) {
		return fmt.Errorf("%w on %d Hz", ErrTxRefused, hz)
	}

	s.stopRx()
	s.hopper.Pause()
	if _, err := s.radio.SetFrequency(hz); err != nil {
		s.rearm()
		return err
	}
	if !s.radio.StartTx(supply(timings)) {
		s.rearm()
		return ErrTxRefused
	}
	s.txActive = true
	s.notify = NotifyIdle
	s.logger.Info("Transmitting", zap.String("protocol", item.Protocol), zap.Uint32("frequency", hz))
	return nil
}

// supply replays timings once.
func supply(timings []pulse.LevelDuration) txstream.Supplier {
	i := 0
	return func() pulse.LevelDuration {
		if i >= len(timings) {
			return pulse.End()
		}
		ld := timings[i]
		i++
		return ld
	}
}

// rearm resumes listening after a transmission.
func (s *Session) rearm() {
	s.hopper.Resume()
	if s.hopper.Enabled() {
		s.frequency = s.hopper.Frequency()
	}
	if s.state == Idle || s.state == Exit {
		return
	}
	if err := s.retune(s.frequency); err != nil {
		s.logger.Error("Failed to resume receiving", zap.Error(err))
		s.notifier.Play(notify.Error)
		return
	}
	s.notify = NotifyRx
}

// Tick does the periodic work. It reports whether the session is active.
func (s *Session) Tick() bool {
	if s.state == Idle || s.state == Exit {
		return false
	}
	// A flash raised by the previous tick's decode lasts until now.
	switch s.notify {
	case NotifyRxDone:
		s.notify = NotifyRx
	case NotifyRx:
		s.notifier.Play(notify.RxActivity)
	}
	s.collect()

	if s.txActive {
		if !s.radio.PollTxComplete() {
			return true
		}
		s.txActive = false
		if err := s.radio.TxErr(); err != nil {
			s.logger.Warn("Transmission failed", zap.Error(err))
			s.notifier.Play(notify.Error)
		} else {
			s.notifier.Play(notify.Success)
		}
		s.rearm()
		return true
	}

	if s.rxArmed {
		s.rssi = s.radio.RSSI()
		s.busy = s.rssi >= s.threshold
		s.mux.InputRSSI(s.rssi)
		telemetry.RSSI.Set(float64(s.rssi))

		if hz, ok := s.hopper.Tick(s.rssi, s.locked); ok {
			if err := s.retune(hz); err != nil {
				s.logger.Error("Failed to hop", zap.Uint32("frequency", hz), zap.Error(err))
			}
		}
	}

	return true
}

// collect moves decoded items into the history. Once it is full further decodes are dropped.
func (s *Session) collect() {
	for {
		select {
		case item := <-s.mux.Items():
			if s.history.Full() {
				continue
			}
			if !s.history.Add(item) {
				s.logger.Info("History full", zap.String("dropped", item.Summary()))
				s.notify = NotifyIdle
				continue
			}
			s.logger.Info("Received", zap.String("key", item.Summary()), zap.Uint32("frequency", item.Frequency))
			if s.state == Start || s.state == AddKey {
				s.state = AddKey
			}
			s.hopper.NoteActivity()
			s.notify = NotifyRxDone
			if s.locked {
				s.notifier.Play(notify.RxDoneLocked)
			} else {
				s.notifier.Play(notify.RxDone)
			}
		default:
			return
		}
	}
}

// StatusText is the status bar line for the current tick.
func (s *Session) StatusText() string {
	if s.locked {
		return "Locked"
	}
	return s.history.RemainingText()
}

// SaveItem stores the item at index and returns the name it was saved under.
func (s *Session) SaveItem(index int, name string) (string, error) {
	if s.keys == nil {
		return "", errors.New("no key store configured")
	}
	item, err := s.history.Get(index)
	if err != nil {
		return "", err
	}
	saved, err := s.keys.Save(item, name)
	if err != nil {
		s.notifier.Play(notify.Error)
		return "", err
	}
	s.notifier.Play(notify.Success)
	return saved, nil
}

// Run enters the session and serves events and ticks until ctx is done.
func (s *Session) Run(ctx context.Context, events <-chan Event) error {
	if err := s.Enter(); err != nil {
		return err
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.stopRx()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleEvent(ev)
		case <-ticker.C:
			s.Tick()
		}
	}
}
