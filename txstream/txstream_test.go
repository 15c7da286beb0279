package txstream

import (
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/hatstand/subghz/mocks"
	"github.com/hatstand/subghz/pulse"
	"github.com/kidoman/embd"

	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu       sync.Mutex
	samples  []pulse.LevelDuration
	silenced int
}

func (r *recorder) Emit(level bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, pulse.New(level, uint32(d/time.Microsecond)))
}

func (r *recorder) Silence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silenced++
}

func (r *recorder) total() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum uint32
	for _, s := range r.samples {
		sum += s.Duration
	}
	return sum
}

func sliceSupplier(samples []pulse.LevelDuration) Supplier {
	i := 0
	return func() pulse.LevelDuration {
		if i >= len(samples) {
			return pulse.End()
		}
		ld := samples[i]
		i++
		return ld
	}
}

func alternating(n int, d uint32) []pulse.LevelDuration {
	var out []pulse.LevelDuration
	for i := 0; i < n; i++ {
		out = append(out, pulse.New(i%2 == 0, d))
	}
	return out
}

type result struct {
	last int
	errs []error
	done chan struct{}
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

func (r *result) options(deadline time.Duration) Options {
	return Options{
		RefillDeadline: deadline,
		OnLast:         func() { r.last++ },
		OnEnd: func(err error) {
			r.errs = append(r.errs, err)
			close(r.done)
		},
	}
}

func (r *result) wait() bool {
	select {
	case <-r.done:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func TestShortStream(t *testing.T) {
	Convey("Equal levels merge and the guard time follows the last sample", t, func() {
		rec := &recorder{}
		res := newResult()
		s := New(sliceSupplier([]pulse.LevelDuration{
			pulse.New(true, 100),
			pulse.New(true, 50),
			pulse.New(false, 10),
		}), rec, res.options(time.Second))

		So(s.Start(), ShouldBeNil)
		So(res.wait(), ShouldBeTrue)
		s.Stop()

		So(res.errs, ShouldResemble, []error{nil})
		So(res.last, ShouldEqual, 1)
		So(rec.samples, ShouldResemble, []pulse.LevelDuration{
			pulse.New(true, 150),
			pulse.New(false, 10+GuardTime),
		})
		So(rec.silenced, ShouldBeGreaterThan, 0)
	})

	Convey("An empty stream only sends the guard", t, func() {
		rec := &recorder{}
		res := newResult()
		s := New(sliceSupplier(nil), rec, res.options(time.Second))
		So(s.Start(), ShouldBeNil)
		So(res.wait(), ShouldBeTrue)
		s.Stop()
		So(rec.samples, ShouldResemble, []pulse.LevelDuration{pulse.New(false, GuardTime)})
	})

	Convey("A stream needs a supplier", t, func() {
		s := New(nil, &recorder{}, Options{})
		So(s.Start(), ShouldEqual, ErrNoSupplier)
	})
}

func TestLongStream(t *testing.T) {
	Convey("A prompt supplier never underruns", t, func() {
		rec := &recorder{}
		res := newResult()
		samples := alternating(10*BufferFull+7, 300)
		s := New(sliceSupplier(samples), rec, res.options(time.Second))

		So(s.Start(), ShouldBeNil)
		So(res.wait(), ShouldBeTrue)
		s.Stop()

		So(res.errs, ShouldResemble, []error{nil})
		So(res.last, ShouldEqual, 1)
		So(rec.total(), ShouldEqual, uint32(len(samples))*300+GuardTime)
	})
}

func TestUnderrun(t *testing.T) {
	Convey("A stalled supplier is reported once", t, func() {
		rec := &recorder{}
		res := newResult()
		release := make(chan struct{})
		n := 0
		supplier := func() pulse.LevelDuration {
			n++
			if n == BufferFull+10 {
				<-release
			}
			return pulse.New(n%2 == 0, 100)
		}
		s := New(supplier, rec, res.options(20*time.Millisecond))

		So(s.Start(), ShouldBeNil)
		So(res.wait(), ShouldBeTrue)
		close(release)
		s.Stop()

		So(res.errs, ShouldResemble, []error{ErrUnderrun})
		So(res.last, ShouldEqual, 0)
	})
}

func TestStop(t *testing.T) {
	Convey("Stop cancels an endless stream without completing it", t, func() {
		rec := &recorder{}
		ended := false
		s := New(func() pulse.LevelDuration { return pulse.New(true, 1) }, rec, Options{
			RefillDeadline: time.Second,
			OnEnd:          func(error) { ended = true },
		})
		So(s.Start(), ShouldBeNil)
		time.Sleep(10 * time.Millisecond)
		s.Stop()
		s.Stop()
		So(ended, ShouldBeFalse)
		So(rec.silenced, ShouldBeGreaterThan, 0)
	})
}

func TestPinEmitter(t *testing.T) {
	Convey("Levels are written to the pin", t, func() {
		mock := gomock.NewController(t)
		defer mock.Finish()
		pin := mocks.NewMockDigitalPin(mock)

		gomock.InOrder(
			pin.EXPECT().Write(embd.High).Return(nil),
			pin.EXPECT().Write(embd.Low).Return(nil),
			pin.EXPECT().Write(embd.Low).Return(nil),
		)
		e := NewPinEmitter(pin)
		start := time.Now()
		e.Emit(true, 300*time.Microsecond)
		e.Emit(false, 300*time.Microsecond)
		So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 600*time.Microsecond)
		e.Silence()
	})
}
