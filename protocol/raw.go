package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/hatstand/subghz/pulse"
)

const RawName = "RAW"

type RawOptions struct {
	// Bursts only start while RSSI is at or above Threshold.
	Threshold float32
	// A level lasting at least Gap microseconds ends the burst.
	Gap uint32
	// Bursts with fewer edges are noise.
	MinSamples int
	// Horizon caps a single capture; a longer burst is cut here.
	Horizon int
}

var DefaultRawOptions = RawOptions{
	Threshold:  -85,
	Gap:        10000,
	MinSamples: 24,
	Horizon:    2048,
}

// RawDecoder keeps the timings of a burst nothing else decoded so it can be replayed verbatim.
type RawDecoder struct {
	opts    RawOptions
	rssi    atomic.Uint32
	samples []pulse.LevelDuration
}

func NewRawDecoder(opts RawOptions) *RawDecoder {
	if opts.Gap == 0 {
		opts.Gap = DefaultRawOptions.Gap
	}
	if opts.MinSamples == 0 {
		opts.MinSamples = DefaultRawOptions.MinSamples
	}
	if opts.Horizon == 0 {
		opts.Horizon = DefaultRawOptions.Horizon
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultRawOptions.Threshold
	}
	d := &RawDecoder{opts: opts}
	// Open until told otherwise.
	d.rssi.Store(math.Float32bits(float32(math.Inf(1))))
	return d
}

func (d *RawDecoder) Name() string {
	return RawName
}

func (d *RawDecoder) InputRSSI(rssi float32) {
	d.rssi.Store(math.Float32bits(rssi))
}

func (d *RawDecoder) gateOpen() bool {
	return math.Float32frombits(d.rssi.Load()) >= d.opts.Threshold
}

func (d *RawDecoder) Feed(ld pulse.LevelDuration) *Item {
	if ld.Duration >= d.opts.Gap {
		return d.flush()
	}
	if len(d.samples) == 0 && !d.gateOpen() {
		return nil
	}
	d.samples = append(d.samples, ld)
	if len(d.samples) >= d.opts.Horizon {
		return d.flush()
	}
	return nil
}

func (d *RawDecoder) flush() *Item {
	defer d.Reset()
	if len(d.samples) < d.opts.MinSamples {
		return nil
	}
	timings := make([]pulse.LevelDuration, len(d.samples))
	copy(timings, d.samples)
	var total uint64
	for _, s := range timings {
		total += uint64(s.Duration)
	}
	return &Item{
		Protocol: RawName,
		Payload:  EncodeTimings(timings),
		Bits:     len(timings),
		Text:     fmt.Sprintf("RAW %d edges\nLength: %.1fms", len(timings), float64(total)/1000),
		Timings:  timings,
	}
}

func (d *RawDecoder) Reset() {
	d.samples = d.samples[:0]
}

func (d *RawDecoder) Encode(item *Item) ([]pulse.LevelDuration, error) {
	if len(item.Timings) > 0 {
		return item.Timings, nil
	}
	return DecodeTimings(item.Payload)
}

// EncodeTimings packs timings as little endian signed microseconds, negative for low.
func EncodeTimings(timings []pulse.LevelDuration) []byte {
	out := make([]byte, 4*len(timings))
	for i, t := range timings {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(t.Signed()))
	}
	return out
}

func DecodeTimings(b []byte) ([]pulse.LevelDuration, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("raw payload length %d is not a multiple of 4", len(b))
	}
	out := make([]pulse.LevelDuration, len(b)/4)
	for i := range out {
		out[i] = pulse.FromSigned(int32(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return out, nil
}
