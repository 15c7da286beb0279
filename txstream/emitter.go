package txstream

import (
	"time"

	"github.com/kidoman/embd"
)

// Sleeping is too coarse below this, the rest of each period is spent polling the clock.
const spinThreshold = 200 * time.Microsecond

// PinEmitter drives the CC1101 asynchronous serial input (GDO0) from a GPIO.
type PinEmitter struct {
	Pin embd.DigitalPin

	next time.Time
}

func NewPinEmitter(pin embd.DigitalPin) *PinEmitter {
	return &PinEmitter{Pin: pin}
}

func (e *PinEmitter) Emit(level bool, d time.Duration) {
	v := embd.Low
	if level {
		v = embd.High
	}
	e.Pin.Write(v)

	// Deadlines chain from the previous edge so timing errors don't accumulate.
	now := time.Now()
	if e.next.IsZero() || e.next.Before(now.Add(-d)) {
		e.next = now
	}
	e.next = e.next.Add(d)
	if wait := time.Until(e.next); wait > spinThreshold {
		time.Sleep(wait - spinThreshold)
	}
	for time.Now().Before(e.next) {
	}
}

func (e *PinEmitter) Silence() {
	e.Pin.Write(embd.Low)
	e.next = time.Time{}
}
