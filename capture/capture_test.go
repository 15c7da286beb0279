package capture

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/hatstand/subghz/mocks"
	"github.com/kidoman/embd"

	. "github.com/smartystreets/goconvey/convey"
)

type sample struct {
	level    bool
	duration uint32
}

func TestChannel(t *testing.T) {
	t0 := time.Unix(1000, 0)

	Convey("Edges become samples of the level that ended", t, func() {
		c := NewChannel(nil, WithClock(func() time.Time { return t0 }))
		var got []sample
		So(c.Start(func(level bool, d uint32) { got = append(got, sample{level, d}) }), ShouldBeNil)

		c.Edge(true, t0.Add(1000*time.Microsecond))
		c.Edge(false, t0.Add(1350*time.Microsecond))
		c.Edge(true, t0.Add(2400*time.Microsecond))

		So(got, ShouldResemble, []sample{{false, 1000}, {true, 350}, {false, 1050}})
		c.Stop()
	})

	Convey("Only one consumer at a time", t, func() {
		c := NewChannel(nil)
		So(c.Start(func(bool, uint32) {}), ShouldBeNil)
		So(c.Start(func(bool, uint32) {}), ShouldEqual, ErrRunning)
		c.Stop()
		So(c.Running(), ShouldBeFalse)
		So(c.Start(func(bool, uint32) {}), ShouldBeNil)
		c.Stop()
	})

	Convey("Nothing is delivered after Stop", t, func() {
		c := NewChannel(nil, WithClock(func() time.Time { return t0 }))
		calls := 0
		So(c.Start(func(bool, uint32) { calls++ }), ShouldBeNil)
		c.Edge(true, t0.Add(time.Millisecond))
		c.Stop()
		c.Stop()
		c.Edge(false, t0.Add(2*time.Millisecond))
		So(calls, ShouldEqual, 1)
	})

	Convey("Stopping from inside the consumer is fatal", t, func() {
		c := NewChannel(nil, WithQuiesceTimeout(20*time.Millisecond))
		So(c.Start(func(bool, uint32) { c.Stop() }), ShouldBeNil)
		So(func() { c.Edge(true, time.Now()) }, ShouldPanic)
	})
}

func TestChannelWatchesPin(t *testing.T) {
	Convey("GDO0 edges are read through embd", t, func() {
		mock := gomock.NewController(t)
		defer mock.Finish()
		pin := mocks.NewMockDigitalPin(mock)

		now := time.Unix(2000, 0)
		c := NewChannel(pin, WithClock(func() time.Time { return now }))

		var handler func(embd.DigitalPin)
		pin.EXPECT().Watch(embd.EdgeBoth, gomock.Any()).DoAndReturn(func(_ embd.Edge, h func(embd.DigitalPin)) error {
			handler = h
			return nil
		})
		var got []sample
		So(c.Start(func(level bool, d uint32) { got = append(got, sample{level, d}) }), ShouldBeNil)
		So(handler, ShouldNotBeNil)

		pin.EXPECT().Read().Return(embd.High, nil)
		now = now.Add(500 * time.Microsecond)
		handler(pin)
		So(got, ShouldResemble, []sample{{false, 500}})

		pin.EXPECT().StopWatching().Return(nil)
		c.Stop()
	})
}
