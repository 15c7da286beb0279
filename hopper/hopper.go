// Package hopper cycles the receive frequency while nothing is being heard.
package hopper

import (
	"github.com/hatstand/subghz/telemetry"
	"go.uber.org/zap"
)

type State int

const (
	Off State = iota
	Running
	// Paused while transmitting.
	Paused
	// Holding on a frequency that recently showed activity.
	Holding
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Holding:
		return "holding"
	default:
		return "off"
	}
}

var DefaultFrequencies = []uint32{
	310000000,
	315000000,
	318000000,
	390000000,
	433920000,
	868350000,
}

type Options struct {
	Frequencies []uint32
	// Ticks without activity before moving on.
	IdleWindow int
	// Ticks to stay after activity was seen.
	HoldTicks int
	// RSSI at or above this counts as activity.
	Threshold float32
	Logger    *zap.Logger
}

var DefaultOptions = Options{
	Frequencies: DefaultFrequencies,
	IdleWindow:  1,
	HoldTicks:   10,
	Threshold:   -90,
}

type Hopper struct {
	opts  Options
	state State
	// Where Resume goes back to.
	resume State
	index  int
	idle   int
	hold   int
}

func New(opts Options) *Hopper {
	if len(opts.Frequencies) == 0 {
		opts.Frequencies = DefaultOptions.Frequencies
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = DefaultOptions.IdleWindow
	}
	if opts.HoldTicks < 0 {
		opts.HoldTicks = 0
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultOptions.Threshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hopper{opts: opts}
}

func (h *Hopper) State() State {
	return h.state
}

func (h *Hopper) Enabled() bool {
	return h.state != Off
}

// On arms the hopper and returns the frequency it starts on.
func (h *Hopper) On() uint32 {
	h.state = Running
	h.index = 0
	h.idle = 0
	h.hold = 0
	return h.Frequency()
}

func (h *Hopper) Off() {
	h.state = Off
}

// Pause suspends hopping for a transmission.
func (h *Hopper) Pause() {
	if h.state == Off || h.state == Paused {
		return
	}
	h.resume = h.state
	h.state = Paused
}

func (h *Hopper) Resume() {
	if h.state == Paused {
		h.state = h.resume
		h.idle = 0
	}
}

func (h *Hopper) Frequency() uint32 {
	return h.opts.Frequencies[h.index]
}

// NoteActivity reports a decode on the current frequency.
func (h *Hopper) NoteActivity() {
	if h.state == Running || h.state == Holding {
		h.state = Holding
		h.hold = h.opts.HoldTicks
		h.idle = 0
	}
}

// Tick runs once per session tick. It returns the next frequency and true when the
// receiver should retune.
func (h *Hopper) Tick(rssi float32, locked bool) (uint32, bool) {
	switch h.state {
	case Off, Paused:
		return 0, false
	}
	if locked {
		return 0, false
	}
	if h.state == Holding {
		if h.hold > 0 {
			h.hold--
			return 0, false
		}
		h.state = Running
		h.idle = 0
	}
	if rssi >= h.opts.Threshold {
		h.NoteActivity()
		return 0, false
	}

	h.idle++
	if h.idle < h.opts.IdleWindow {
		return 0, false
	}
	h.idle = 0
	h.index = (h.index + 1) % len(h.opts.Frequencies)
	telemetry.Hops.Inc()
	h.opts.Logger.Debug("Hopping", zap.Uint32("frequency", h.Frequency()))
	return h.Frequency(), true
}
