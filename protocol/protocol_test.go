package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/hatstand/subghz/pulse"

	. "github.com/smartystreets/goconvey/convey"
)

// countingDecoder emits an item every n samples.
type countingDecoder struct {
	name   string
	n      int
	seen   int
	resets int
}

func (d *countingDecoder) Name() string { return d.name }

func (d *countingDecoder) Feed(ld pulse.LevelDuration) *Item {
	d.seen++
	if d.seen%d.n == 0 {
		return &Item{Protocol: d.name, Payload: []byte{byte(d.seen)}, Text: d.name}
	}
	return nil
}

func (d *countingDecoder) Reset() { d.resets++ }

func feedAll(m *Multiplexer, samples []pulse.LevelDuration) {
	for _, s := range samples {
		m.Feed(s.Level, s.Duration)
	}
}

func drain(m *Multiplexer) []*Item {
	var out []*Item
	for {
		select {
		case it := <-m.Items():
			out = append(out, it)
		default:
			return out
		}
	}
}

func TestPrinceton(t *testing.T) {
	Convey("Encoded keys decode again", t, func() {
		d := NewPrincetonDecoder()
		timings, err := d.Encode(&Item{Payload: []byte{0x1a, 0x2b, 0x3c}})
		So(err, ShouldBeNil)
		So(len(timings), ShouldEqual, princetonRepeats*(2*princetonBits+2))

		var items []*Item
		for _, ld := range timings {
			if it := d.Feed(ld); it != nil {
				items = append(items, it)
			}
		}
		// The first frame only serves to find the sync gap.
		So(len(items), ShouldEqual, princetonRepeats-1)
		So(items[0].Payload, ShouldResemble, []byte{0x1a, 0x2b, 0x3c})
		So(items[0].Summary(), ShouldEqual, "Princeton 0x1A2B3C")
		So(items[0].Text, ShouldContainSubstring, "Te: 390us")
	})

	Convey("Malformed pulses resynchronise", t, func() {
		d := NewPrincetonDecoder()
		d.Feed(pulse.New(false, 11700))
		d.Feed(pulse.New(true, 5000))
		So(d.Feed(pulse.New(false, 390)), ShouldBeNil)
		So(d.step, ShouldEqual, princetonReset)
	})

	Convey("Payload size is checked", t, func() {
		_, err := NewPrincetonDecoder().Encode(&Item{Payload: []byte{1}})
		So(err, ShouldNotBeNil)
	})
}

func TestRaw(t *testing.T) {
	burst := func(n int) []pulse.LevelDuration {
		var out []pulse.LevelDuration
		for i := 0; i < n; i++ {
			out = append(out, pulse.New(i%2 == 0, 500))
		}
		return out
	}

	Convey("A burst ended by a gap is captured", t, func() {
		d := NewRawDecoder(RawOptions{})
		for _, ld := range burst(30) {
			So(d.Feed(ld), ShouldBeNil)
		}
		item := d.Feed(pulse.New(false, 20000))
		So(item, ShouldNotBeNil)
		So(item.Protocol, ShouldEqual, RawName)
		So(len(item.Timings), ShouldEqual, 30)
		So(item.Summary(), ShouldEqual, "RAW 30 edges")

		timings, err := d.Encode(&Item{Payload: item.Payload})
		So(err, ShouldBeNil)
		So(timings, ShouldResemble, item.Timings)
	})

	Convey("Short bursts are noise", t, func() {
		d := NewRawDecoder(RawOptions{})
		for _, ld := range burst(5) {
			d.Feed(ld)
		}
		So(d.Feed(pulse.New(false, 20000)), ShouldBeNil)
	})

	Convey("Bursts are cut at the horizon", t, func() {
		d := NewRawDecoder(RawOptions{Horizon: 64})
		var items []*Item
		for _, ld := range burst(200) {
			if it := d.Feed(ld); it != nil {
				items = append(items, it)
			}
		}
		So(len(items), ShouldEqual, 3)
		So(len(items[0].Timings), ShouldEqual, 64)
	})

	Convey("Weak signals don't start a burst", t, func() {
		d := NewRawDecoder(RawOptions{Threshold: -70})
		d.InputRSSI(-100)
		for _, ld := range burst(30) {
			d.Feed(ld)
		}
		So(d.Feed(pulse.New(false, 20000)), ShouldBeNil)
	})

	Convey("Truncated payloads are rejected", t, func() {
		_, err := DecodeTimings([]byte{1, 2, 3})
		So(err, ShouldNotBeNil)
	})
}

func TestMultiplexer(t *testing.T) {
	reg := NewRegistry()
	var a, b *countingDecoder
	reg.Register("A", func() Decoder { a = &countingDecoder{name: "A", n: 2}; return a })
	reg.Register("B", func() Decoder { b = &countingDecoder{name: "B", n: 3}; return b })
	reg.Register("C", func() Decoder { return &countingDecoder{name: "C", n: 1000} })
	reg.Register(RawName, func() Decoder { return NewRawDecoder(RawOptions{MinSamples: 2}) })

	Convey("Every attached decoder sees every sample", t, func() {
		now := time.Unix(5000, 0)
		m, missing := NewMultiplexer(reg, Options{
			Decoders: []string{"A", "B", "Nope"},
			Clock:    func() time.Time { return now },
		})
		So(missing, ShouldResemble, []string{"Nope"})

		m.SetTuning(433920000, "AM650")
		m.InputRSSI(-60)
		feedAll(m, make([]pulse.LevelDuration, 6))
		items := drain(m)
		So(a.seen, ShouldEqual, 6)
		So(b.seen, ShouldEqual, 6)
		So(len(items), ShouldEqual, 5)
		So(items[0].Protocol, ShouldEqual, "A")
		So(items[0].Frequency, ShouldEqual, 433920000)
		So(items[0].Preset, ShouldEqual, "AM650")
		So(items[0].RSSI, ShouldEqual, -60)
		So(items[0].Time.Equal(now), ShouldBeTrue)
	})

	Convey("Ignored decoders are detached", t, func() {
		m, _ := NewMultiplexer(reg, Options{Decoders: []string{"A", "B"}})
		err := m.Ignore("B", "Star Line")
		So(errors.Is(err, ErrUnknownDecoder), ShouldBeTrue)
		So(m.Ignored("B"), ShouldBeTrue)

		feedAll(m, make([]pulse.LevelDuration, 6))
		So(b.seen, ShouldEqual, 0)
		So(len(drain(m)), ShouldEqual, 3)

		So(m.Attach("B"), ShouldBeNil)
		So(b.resets, ShouldEqual, 1)
		feedAll(m, make([]pulse.LevelDuration, 3))
		So(b.seen, ShouldEqual, 3)
		So(m.Attach("Nope"), ShouldEqual, ErrUnknownDecoder)
	})

	Convey("The fallback only sees unmatched samples", t, func() {
		m, missing := NewMultiplexer(reg, Options{Decoders: []string{"B"}, Fallback: RawName})
		So(missing, ShouldBeEmpty)
		feedAll(m, []pulse.LevelDuration{
			pulse.New(true, 100), pulse.New(false, 100),
			pulse.New(true, 100), // B matches, RAW resets
			pulse.New(false, 50000),
		})
		items := drain(m)
		So(len(items), ShouldEqual, 1)
		So(items[0].Protocol, ShouldEqual, "B")

		m, _ = NewMultiplexer(reg, Options{Decoders: []string{"C"}, Fallback: RawName})
		feedAll(m, []pulse.LevelDuration{
			pulse.New(true, 100), pulse.New(false, 100), pulse.New(true, 100),
			pulse.New(false, 50000),
		})
		items = drain(m)
		So(len(items), ShouldEqual, 1)
		So(items[0].Protocol, ShouldEqual, RawName)
		So(len(items[0].Timings), ShouldEqual, 3)

		So(m.SetFallback("Nope"), ShouldNotBeNil)
	})

	Convey("Repeats within the window are suppressed", t, func() {
		reg := NewRegistry()
		reg.Register("Same", func() Decoder { return &sameDecoder{} })
		m, _ := NewMultiplexer(reg, Options{Decoders: []string{"Same"}, DedupWindow: time.Minute})
		feedAll(m, make([]pulse.LevelDuration, 5))
		So(len(drain(m)), ShouldEqual, 1)

		m.Reset()
		feedAll(m, make([]pulse.LevelDuration, 1))
		So(len(drain(m)), ShouldEqual, 1)
	})

	Convey("A full queue drops items instead of blocking", t, func() {
		m, _ := NewMultiplexer(reg, Options{Decoders: []string{"A"}, QueueSize: 2})
		feedAll(m, make([]pulse.LevelDuration, 20))
		So(len(drain(m)), ShouldEqual, 2)
	})

	Convey("Drain empties the queue that Reset keeps", t, func() {
		m, _ := NewMultiplexer(reg, Options{Decoders: []string{"A"}})
		feedAll(m, make([]pulse.LevelDuration, 6))
		m.Reset()
		So(m.Drain(), ShouldEqual, 3)
		So(len(drain(m)), ShouldEqual, 0)
		So(m.Drain(), ShouldEqual, 0)
	})
}

type sameDecoder struct{}

func (sameDecoder) Name() string { return "Same" }
func (sameDecoder) Feed(pulse.LevelDuration) *Item {
	return &Item{Protocol: "Same", Payload: []byte{1}}
}
func (sameDecoder) Reset() {}

func TestEncode(t *testing.T) {
	Convey("Items encode through their decoder", t, func() {
		timings, err := Encode(DefaultRegistry, &Item{Protocol: PrincetonName, Payload: []byte{0, 0, 1}})
		So(err, ShouldBeNil)
		So(len(timings), ShouldBeGreaterThan, 0)

		raw := []pulse.LevelDuration{pulse.New(true, 1)}
		timings, err = Encode(DefaultRegistry, &Item{Protocol: "Whatever", Timings: raw})
		So(err, ShouldBeNil)
		So(timings, ShouldResemble, raw)

		_, err = Encode(DefaultRegistry, &Item{Protocol: "Whatever"})
		So(errors.Is(err, ErrUnknownDecoder), ShouldBeTrue)
	})

	Convey("Ignore sets", t, func() {
		names, ok := IgnoreSet("auto_alarms")
		So(ok, ShouldBeTrue)
		So(names, ShouldResemble, IgnoreAutoAlarms)
		_, ok = IgnoreSet("other")
		So(ok, ShouldBeFalse)
		So(DefaultRegistry.Names(), ShouldResemble, []string{PrincetonName, RawName})
	})
}
