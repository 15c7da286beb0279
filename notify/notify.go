// Package notify plays short LED and vibration patterns.
package notify

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

type Pattern int

const (
	RxActivity Pattern = iota
	RxDone
	Error
	Success
	// RxDoneLocked is the shorter decode flash used while the session is locked.
	RxDoneLocked
)

func (p Pattern) String() string {
	switch p {
	case RxActivity:
		return "rx_activity"
	case RxDone:
		return "rx_done"
	case Error:
		return "error"
	case RxDoneLocked:
		return "rx_done_locked"
	default:
		return "success"
	}
}

// Output is the part of gpio.PinOut a pattern needs.
type Output interface {
	Out(l gpio.Level) error
}

type step struct {
	led, vibro bool
	d          time.Duration
}

var patterns = map[Pattern][]step{
	RxActivity: {{led: true, d: 10 * time.Millisecond}},
	RxDone: {
		{led: true, vibro: true, d: 30 * time.Millisecond},
		{d: 30 * time.Millisecond},
		{led: true, d: 30 * time.Millisecond},
	},
	Error: {
		{led: true, vibro: true, d: 100 * time.Millisecond},
		{d: 100 * time.Millisecond},
		{led: true, vibro: true, d: 100 * time.Millisecond},
	},
	Success: {{led: true, d: 200 * time.Millisecond}},
	RxDoneLocked: {
		{led: true, vibro: true, d: 30 * time.Millisecond},
		{d: 30 * time.Millisecond},
	},
}

// Player runs patterns on its own goroutine. Play never waits: a pattern requested
// while another one is playing is dropped.
type Player struct {
	led, vibro Output
	logger     *zap.Logger
	queue      chan Pattern
	done       chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPlayer drives led and vibro, either of which may be nil.
func NewPlayer(led, vibro Output, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Player{
		led:    led,
		vibro:  vibro,
		logger: logger,
		queue:  make(chan Pattern, 1),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// NewGPIOPlayer looks the pins up by name in the periph registry. An empty name disables that output.
func NewGPIOPlayer(ledName, vibroName string, logger *zap.Logger) (*Player, error) {
	lookup := func(name string) (Output, error) {
		if name == "" {
			return nil, nil
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("unknown GPIO %q", name)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("failed to set %s as output: %v", name, err)
		}
		return pin, nil
	}
	led, err := lookup(ledName)
	if err != nil {
		return nil, err
	}
	vibro, err := lookup(vibroName)
	if err != nil {
		return nil, err
	}
	return NewPlayer(led, vibro, logger), nil
}

func (p *Player) Play(pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- pattern:
	default:
	}
}

func (p *Player) run() {
	defer close(p.done)
	for pattern := range p.queue {
		for _, s := range patterns[pattern] {
			p.set(p.led, s.led)
			p.set(p.vibro, s.vibro)
			time.Sleep(s.d)
		}
		p.set(p.led, false)
		p.set(p.vibro, false)
	}
}

func (p *Player) set(o Output, on bool) {
	if o == nil {
		return
	}
	if err := o.Out(gpio.Level(on)); err != nil {
		p.logger.Debug("Failed to drive notification output", zap.Error(err))
	}
}

// Close waits for the pattern in progress to finish.
func (p *Player) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}
