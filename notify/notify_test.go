package notify

import (
	"sync"
	"testing"

	"periph.io/x/periph/conn/gpio"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeOut struct {
	mu     sync.Mutex
	levels []gpio.Level
}

func (f *fakeOut) Out(l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, l)
	return nil
}

func TestPlayer(t *testing.T) {
	Convey("Patterns end with outputs off", t, func() {
		led := &fakeOut{}
		vibro := &fakeOut{}
		p := NewPlayer(led, vibro, nil)
		p.Play(Success)
		p.Close()

		So(led.levels, ShouldResemble, []gpio.Level{gpio.High, gpio.Low})
		So(vibro.levels, ShouldResemble, []gpio.Level{gpio.Low, gpio.Low})
	})

	Convey("The locked flash buzzes once", t, func() {
		led := &fakeOut{}
		vibro := &fakeOut{}
		p := NewPlayer(led, vibro, nil)
		p.Play(RxDoneLocked)
		p.Close()

		So(RxDoneLocked.String(), ShouldEqual, "rx_done_locked")
		So(led.levels, ShouldResemble, []gpio.Level{gpio.High, gpio.Low, gpio.Low})
		So(vibro.levels, ShouldResemble, []gpio.Level{gpio.High, gpio.Low, gpio.Low})
	})

	Convey("Missing outputs are skipped", t, func() {
		p := NewPlayer(nil, nil, nil)
		p.Play(Error)
		p.Play(RxDone)
		p.Close()
		p.Close()
		So(Error.String(), ShouldEqual, "error")
	})
}
