// Package protocol decodes captured timings into keys.
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hatstand/subghz/pulse"
)

var (
	ErrUnknownDecoder = errors.New("unknown decoder")
	ErrNotEncodable   = errors.New("protocol cannot be transmitted")
)

// Item is one decoded transmission. It is not modified once handed out.
type Item struct {
	Protocol string
	Payload  []byte
	Bits     int
	// Text is the multi-line rendering shown in the item view, first line is the summary.
	Text      string
	Time      time.Time
	RSSI      float32
	Frequency uint32
	Preset    string
	// Timings is set by decoders replaying raw captures.
	Timings []pulse.LevelDuration
}

// Summary is the first line of Text.
func (i *Item) Summary() string {
	if n := strings.IndexByte(i.Text, '\n'); n >= 0 {
		return i.Text[:n]
	}
	return i.Text
}

func (i *Item) Key() string {
	return fmt.Sprintf("%s:%x", i.Protocol, i.Payload)
}

type Decoder interface {
	Name() string
	// Feed consumes one sample and returns an item when a transmission completes.
	// It runs on the capture goroutine and must return quickly.
	Feed(ld pulse.LevelDuration) *Item
	Reset()
}

// Encoder is implemented by decoders whose items can be transmitted again.
type Encoder interface {
	Encode(item *Item) ([]pulse.LevelDuration, error)
}

// RSSIReceiver is implemented by decoders that gate on signal strength.
type RSSIReceiver interface {
	InputRSSI(rssi float32)
}

type Factory func() Decoder

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) New(name string) (Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDecoder, name)
	}
	return f(), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds every decoder built into this package.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(RawName, func() Decoder { return NewRawDecoder(RawOptions{}) })
	DefaultRegistry.Register(PrincetonName, func() Decoder { return NewPrincetonDecoder() })
}

// Ignore sets name groups of noisy protocols that users commonly silence.
var (
	IgnoreStarLine   = []string{"Star Line"}
	IgnoreAutoAlarms = []string{"KIA Seed", "Scher-Khan"}
	IgnoreMagellan   = []string{"Magellan"}
)

// IgnoreSet expands a configured ignore set name into decoder names.
func IgnoreSet(name string) ([]string, bool) {
	switch strings.ToLower(name) {
	case "starline":
		return IgnoreStarLine, true
	case "auto_alarms":
		return IgnoreAutoAlarms, true
	case "magellan":
		return IgnoreMagellan, true
	}
	return nil, false
}

// Encode returns the timings to transmit item with the decoder it came from.
func Encode(reg *Registry, item *Item) ([]pulse.LevelDuration, error) {
	if len(item.Timings) > 0 {
		return item.Timings, nil
	}
	d, err := reg.New(item.Protocol)
	if err != nil {
		return nil, err
	}
	enc, ok := d.(Encoder)
	if !ok {
		return nil, ErrNotEncodable
	}
	return enc.Encode(item)
}
