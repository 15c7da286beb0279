// Package txstream plays a supplier-driven waveform through a double buffer.
//
// The buffer is split in two halves. While one half plays out through the
// Emitter, the other is refilled by pulling samples from the Supplier. If a
// half finishes playing and the other one has not been refilled within the
// refill deadline the transmission is aborted with ErrUnderrun.
package txstream

import (
	"errors"
	"sync"
	"time"

	"github.com/hatstand/subghz/pulse"
	"github.com/hatstand/subghz/telemetry"
	"go.uber.org/zap"
)

const (
	BufferFull = 256
	BufferHalf = BufferFull / 2
	// GuardTime is the minimum low time, in microseconds, appended after the last sample.
	GuardTime = 999

	DefaultRefillDeadline = 5 * time.Millisecond
)

var (
	ErrUnderrun   = errors.New("transmit buffer underrun")
	ErrNoSupplier = errors.New("no supplier")
)

// Supplier returns the next sample, or pulse.End() once the waveform is exhausted. It must not block.
type Supplier func() pulse.LevelDuration

// Emitter puts levels on the air.
type Emitter interface {
	// Emit holds level for d and returns once d has elapsed.
	Emit(level bool, d time.Duration)
	// Silence drops the line low immediately.
	Silence()
}

type Options struct {
	RefillDeadline time.Duration
	// OnLast is called once the supplier has signalled the end of the stream.
	OnLast func()
	// OnEnd is called once with nil after the final sample drained, or with ErrUnderrun.
	// It is not called for streams cancelled with Stop.
	OnEnd  func(err error)
	Logger *zap.Logger
}

type half struct {
	samples []pulse.LevelDuration
	final   bool
}

type Stream struct {
	supplier Supplier
	emitter  Emitter
	opts     Options
	logger   *zap.Logger

	halves  [2]half
	ready   [2]chan struct{}
	drained chan int
	stop    chan struct{}
	wg      sync.WaitGroup

	// Only touched by whoever is filling: Start, then the refill goroutine.
	ended bool

	finishOnce sync.Once
	stopOnce   sync.Once
}

func New(supplier Supplier, emitter Emitter, opts Options) *Stream {
	if opts.RefillDeadline <= 0 {
		opts.RefillDeadline = DefaultRefillDeadline
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		supplier: supplier,
		emitter:  emitter,
		opts:     opts,
		logger:   logger,
		drained:  make(chan int, 2),
		stop:     make(chan struct{}),
	}
	for i := range s.halves {
		s.halves[i].samples = make([]pulse.LevelDuration, 0, BufferHalf)
		s.ready[i] = make(chan struct{}, 1)
	}
	return s
}

// Start primes both halves and begins playing. A Stream is started at most once.
func (s *Stream) Start() error {
	if s.supplier == nil {
		return ErrNoSupplier
	}
	s.fill(0)
	s.ready[0] <- struct{}{}
	if !s.ended {
		s.fill(1)
		s.ready[1] <- struct{}{}
	}

	s.wg.Add(2)
	go s.play()
	go s.refill()
	return nil
}

func (s *Stream) push(h *half, ld pulse.LevelDuration) {
	if n := len(h.samples); n > 0 && h.samples[n-1].Level == ld.Level {
		h.samples[n-1].Duration += ld.Duration
		return
	}
	h.samples = append(h.samples, ld)
}

func (s *Stream) fill(i int) {
	h := &s.halves[i]
	h.samples = h.samples[:0]
	h.final = false
	// One slot stays free for the guard sample.
	for pulled := 0; pulled < BufferHalf-1; pulled++ {
		ld := s.supplier()
		if ld.IsEnd() {
			s.push(h, pulse.New(false, GuardTime))
			h.final = true
			s.ended = true
			if s.opts.OnLast != nil {
				s.opts.OnLast()
			}
			return
		}
		if ld.Duration == 0 {
			continue
		}
		telemetry.TxSamples.Inc()
		s.push(h, ld)
	}
}

func (s *Stream) refill() {
	defer s.wg.Done()
	for !s.ended {
		select {
		case <-s.stop:
			return
		case i := <-s.drained:
			s.fill(i)
			s.ready[i] <- struct{}{}
		}
	}
}

func (s *Stream) play() {
	defer s.wg.Done()
	i := 0
	<-s.ready[0]
	for {
		for _, ld := range s.halves[i].samples {
			select {
			case <-s.stop:
				s.emitter.Silence()
				return
			default:
			}
			s.emitter.Emit(ld.Level, time.Duration(ld.Duration)*time.Microsecond)
		}
		if s.halves[i].final {
			s.emitter.Silence()
			s.finish(nil)
			return
		}

		s.drained <- i
		next := i ^ 1
		timer := time.NewTimer(s.opts.RefillDeadline)
		select {
		case <-s.ready[next]:
			timer.Stop()
		case <-timer.C:
			s.emitter.Silence()
			telemetry.TxUnderruns.Inc()
			s.logger.Warn("Transmit buffer underrun", zap.Duration("deadline", s.opts.RefillDeadline))
			s.finish(ErrUnderrun)
			return
		case <-s.stop:
			timer.Stop()
			s.emitter.Silence()
			return
		}
		i = next
	}
}

func (s *Stream) finish(err error) {
	s.finishOnce.Do(func() {
		if s.opts.OnEnd != nil {
			s.opts.OnEnd(err)
		}
	})
}

// Stop cancels the stream and waits for playback and refill to exit.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	s.emitter.Silence()
}
