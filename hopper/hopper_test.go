package hopper

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const quiet = -120

func TestHopper(t *testing.T) {
	freqs := []uint32{1, 2, 3}

	Convey("Advances one step per idle window", t, func() {
		h := New(Options{Frequencies: freqs, IdleWindow: 3, HoldTicks: 2})
		So(h.On(), ShouldEqual, 1)

		var hops []uint32
		for i := 0; i < 9; i++ {
			if f, ok := h.Tick(quiet, false); ok {
				hops = append(hops, f)
			}
		}
		So(hops, ShouldResemble, []uint32{2, 3, 1})
	})

	Convey("Off never hops", t, func() {
		h := New(Options{Frequencies: freqs})
		_, ok := h.Tick(quiet, false)
		So(ok, ShouldBeFalse)
		So(h.Enabled(), ShouldBeFalse)
	})

	Convey("Locking freezes the frequency", t, func() {
		h := New(Options{Frequencies: freqs})
		h.On()
		for i := 0; i < 5; i++ {
			_, ok := h.Tick(quiet, true)
			So(ok, ShouldBeFalse)
		}
		So(h.Frequency(), ShouldEqual, 1)
		f, ok := h.Tick(quiet, false)
		So(ok, ShouldBeTrue)
		So(f, ShouldEqual, 2)
	})

	Convey("Transmitting pauses hopping", t, func() {
		h := New(Options{Frequencies: freqs})
		h.On()
		h.Pause()
		So(h.State(), ShouldEqual, Paused)
		_, ok := h.Tick(quiet, false)
		So(ok, ShouldBeFalse)
		h.Resume()
		So(h.State(), ShouldEqual, Running)
		_, ok = h.Tick(quiet, false)
		So(ok, ShouldBeTrue)
	})

	Convey("Activity holds the frequency", t, func() {
		h := New(Options{Frequencies: freqs, HoldTicks: 2, Threshold: -80})
		h.On()
		_, ok := h.Tick(-50, false)
		So(ok, ShouldBeFalse)
		So(h.State(), ShouldEqual, Holding)

		_, ok = h.Tick(quiet, false)
		So(ok, ShouldBeFalse)
		_, ok = h.Tick(quiet, false)
		So(ok, ShouldBeFalse)
		f, ok := h.Tick(quiet, false)
		So(ok, ShouldBeTrue)
		So(f, ShouldEqual, 2)

		h.NoteActivity()
		So(h.State(), ShouldEqual, Holding)
		h.Pause()
		h.Resume()
		So(h.State(), ShouldEqual, Holding)
	})
}
