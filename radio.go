package subghz

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatstand/subghz/capture"
	"github.com/hatstand/subghz/telemetry"
	"github.com/hatstand/subghz/txstream"
	"github.com/kidoman/embd"
	"go.uber.org/zap"
)

type State int32

const (
	StateInit State = iota
	StateIdle
	StateAsyncRx
	StateAsyncTx
	StateAsyncTxLast
	StateAsyncTxEnd
)

var stateNames = []string{"init", "idle", "async_rx", "async_tx", "async_tx_last", "async_tx_end"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) transmitting() bool {
	return s == StateAsyncTx || s == StateAsyncTxLast || s == StateAsyncTxEnd
}

// RSSIFloor is reported when the receiver isn't running.
const RSSIFloor = -127

const DefaultFrequency = 433920000

var (
	ErrBusy           = errors.New("radio busy")
	ErrNotInitialised = errors.New("radio not initialised")
)

type RadioOption func(*Radio)

func WithLogger(l *zap.Logger) RadioOption {
	return func(r *Radio) { r.logger = l }
}

func WithRegion(region Region) RadioOption {
	return func(r *Radio) { r.region = region }
}

// WithRFSwitch sets the GPIO driving the antenna switch, if the board has one.
func WithRFSwitch(pin embd.DigitalPin) RadioOption {
	return func(r *Radio) { r.rfSwitch = pin }
}

func WithEmitter(e txstream.Emitter) RadioOption {
	return func(r *Radio) { r.emitter = e }
}

func WithRefillDeadline(d time.Duration) RadioOption {
	return func(r *Radio) { r.refillDeadline = d }
}

func WithCapture(c *capture.Channel) RadioOption {
	return func(r *Radio) { r.capture = c }
}

type txResult struct {
	err error
}

// Radio owns the transceiver and its receive/transmit state machine.
// RX and TX are mutually exclusive; every transition goes through Idle.
type Radio struct {
	chip           *CC1101
	gdo0           embd.DigitalPin
	rfSwitch       embd.DigitalPin
	region         Region
	logger         *zap.Logger
	capture        *capture.Channel
	emitter        txstream.Emitter
	refillDeadline time.Duration

	mu        sync.Mutex
	frequency uint32
	path      Path
	preset    *Preset
	tx        *txstream.Stream

	// Also written by the transmit stream callbacks.
	state    atomic.Int32
	txResult atomic.Value
}

// NewRadio wraps chip. gdo0 is the asynchronous data line, used as input while
// receiving and as output while transmitting.
func NewRadio(chip *CC1101, gdo0 embd.DigitalPin, opts ...RadioOption) *Radio {
	r := &Radio{
		chip:      chip,
		gdo0:      gdo0,
		region:    RegionUnlocked,
		logger:    zap.NewNop(),
		frequency: DefaultFrequency,
		path:      Path433,
		preset:    PresetOok650Async,
	}
	for _, o := range opts {
		o(r)
	}
	if r.capture == nil {
		var pin embd.InterruptPin
		if gdo0 != nil {
			pin = gdo0
		}
		r.capture = capture.NewChannel(pin, capture.WithLogger(r.logger))
	}
	if r.emitter == nil && gdo0 != nil {
		r.emitter = txstream.NewPinEmitter(gdo0)
	}
	r.txResult.Store(txResult{})
	return r
}

func (r *Radio) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.logger.Debug("Radio state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
	telemetry.SetRadioState(s.String(), stateNames)
}

func (r *Radio) State() State {
	return State(r.state.Load())
}

// Init resets and identifies the chip, loads the default preset and leaves the radio Idle.
// It may only succeed once.
func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateInit {
		panic("subghz: radio initialised twice")
	}
	if err := r.chip.Reset(); err != nil {
		return fmt.Errorf("failed to reset CC1101: %v", err)
	}
	if err := r.chip.SelfTest(); err != nil {
		return err
	}
	if err := r.loadPreset(r.preset); err != nil {
		return err
	}
	if err := r.chip.SetIdle(); err != nil {
		return fmt.Errorf("failed to idle CC1101: %v", err)
	}
	r.setState(StateIdle)
	r.logger.Info("Radio ready", zap.Uint32("frequency", r.frequency), zap.String("preset", r.preset.Name))
	return nil
}

// SetFrequency tunes to hz, or to the nearest reachable frequency if hz is out of range,
// and selects the matching antenna path. The tuned frequency is returned.
// Retuning while transmitting is refused with ErrBusy, since the regulatory gate only
// ran for the frequency the transmission started on.
func (r *Radio) SetFrequency(hz uint32) (uint32, error) {
	actual := ClampFrequency(hz)
	if actual != hz {
		r.logger.Warn("Frequency out of range", zap.Uint32("requested", hz), zap.Uint32("actual", actual))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s.transmitting() {
		r.logger.DPanic("Frequency changed while transmitting", zap.Stringer("state", s), zap.Uint32("requested", actual))
		return r.frequency, ErrBusy
	}
	if err := r.tune(actual); err != nil {
		return actual, err
	}
	return actual, nil
}

func (r *Radio) tune(hz uint32) error {
	synth, err := r.chip.SetFrequency(hz)
	if err != nil {
		return fmt.Errorf("failed to set frequency: %v", err)
	}
	if r.State() == StateIdle {
		if err := r.chip.Calibrate(); err != nil {
			return fmt.Errorf("failed to calibrate: %v", err)
		}
	}
	r.frequency = hz
	telemetry.Frequency.Set(float64(hz))
	r.logger.Debug("Tuned", zap.Uint32("frequency", hz), zap.Uint32("synthesized", synth))
	return r.setPath(PathForFrequency(hz))
}

func (r *Radio) Frequency() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frequency
}

func (r *Radio) SetPath(p Path) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s.transmitting() {
		r.logger.DPanic("Path changed while transmitting", zap.Stringer("state", s), zap.Stringer("path", p))
		return ErrBusy
	}
	return r.setPath(p)
}

func (r *Radio) setPath(p Path) error {
	var iocfg byte = IOCFG_HIGH_Z
	sw := embd.Low
	switch p {
	case Path433:
		sw = embd.High
		iocfg |= IOCFG_INV
	case Path315:
	case Path868:
		sw = embd.High
	default:
		iocfg |= IOCFG_INV
	}
	if err := r.chip.WriteSingleByte(IOCFG2, iocfg); err != nil {
		return fmt.Errorf("failed to set path %v: %v", p, err)
	}
	if r.rfSwitch != nil {
		if err := r.rfSwitch.Write(sw); err != nil {
			return fmt.Errorf("failed to switch antenna: %v", err)
		}
	}
	r.path = p
	return nil
}

func (r *Radio) Path() Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// LoadPreset replaces the modem configuration. The radio must be Idle.
func (r *Radio) LoadPreset(p *Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s != StateIdle {
		r.logger.DPanic("Preset loaded while radio not idle", zap.Stringer("state", s))
		return ErrBusy
	}
	return r.loadPreset(p)
}

func (r *Radio) loadPreset(p *Preset) error {
	if err := r.chip.Reset(); err != nil {
		return fmt.Errorf("failed to reset CC1101: %v", err)
	}
	if err := r.chip.WriteRegisters(p.Registers); err != nil {
		return fmt.Errorf("failed to load preset %s: %v", p.Name, err)
	}
	if err := r.chip.WritePATable(p.PATable); err != nil {
		return fmt.Errorf("failed to load PA table: %v", err)
	}
	r.preset = p
	// Reset cleared the synthesizer.
	return r.tune(r.frequency)
}

func (r *Radio) Preset() *Preset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preset
}

// StartRx enters asynchronous receive and hands every captured sample to consumer.
func (r *Radio) StartRx(consumer capture.Consumer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.State() {
	case StateIdle:
	case StateInit:
		return ErrNotInitialised
	default:
		return ErrBusy
	}

	if r.gdo0 != nil {
		if err := r.gdo0.SetDirection(embd.In); err != nil {
			return fmt.Errorf("failed to set GDO0 direction: %v", err)
		}
	}
	if err := r.chip.WriteSingleByte(IOCFG0, IOCFG_ASYNC_SERIAL); err != nil {
		return fmt.Errorf("failed to route serial data to GDO0: %v", err)
	}
	if err := r.chip.SetRx(); err != nil {
		return fmt.Errorf("failed to enter RX: %v", err)
	}
	if err := r.capture.Start(consumer); err != nil {
		r.chip.SetIdle()
		return fmt.Errorf("failed to start capture: %v", err)
	}
	r.setState(StateAsyncRx)
	return nil
}

// StopRx returns to Idle. No capture callback runs once it has returned.
func (r *Radio) StopRx() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateAsyncRx {
		return
	}
	r.capture.Stop()
	if err := r.chip.SetIdle(); err != nil {
		r.logger.Error("Failed to idle CC1101", zap.Error(err))
	}
	r.setState(StateIdle)
}

// IsTxAllowed reports whether the regulatory region permits transmitting on hz.
func (r *Radio) IsTxAllowed(hz uint32) bool {
	return r.region.Allows(hz)
}

// StartTx begins transmitting the waveform produced by supplier. It returns false,
// without touching the hardware, if the current frequency may not be used or the radio is busy.
func (r *Radio) StartTx(supplier txstream.Supplier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.IsTxAllowed(r.frequency) {
		telemetry.TxRefused.Inc()
		r.logger.Warn("Transmission not allowed", zap.Uint32("frequency", r.frequency), zap.String("region", r.region.Name))
		return false
	}
	if s := r.State(); s != StateIdle {
		r.logger.Error("Transmission requested while radio busy", zap.Stringer("state", s))
		return false
	}
	if r.emitter == nil {
		r.logger.Error("No transmit emitter configured")
		return false
	}

	if r.gdo0 != nil {
		if err := r.gdo0.SetDirection(embd.Out); err != nil {
			r.logger.Error("Failed to set GDO0 direction", zap.Error(err))
			return false
		}
	}
	if err := r.chip.WriteSingleByte(IOCFG0, IOCFG_HIGH_Z); err != nil {
		r.logger.Error("Failed to release GDO0", zap.Error(err))
		return false
	}
	if err := r.chip.SetTx(); err != nil {
		r.logger.Error("Failed to enter TX", zap.Error(err))
		r.chip.SetIdle()
		return false
	}

	r.txResult.Store(txResult{})
	r.setState(StateAsyncTx)
	r.tx = txstream.New(supplier, r.emitter, txstream.Options{
		RefillDeadline: r.refillDeadline,
		Logger:         r.logger,
		OnLast: func() {
			r.state.CompareAndSwap(int32(StateAsyncTx), int32(StateAsyncTxLast))
		},
		OnEnd: func(err error) {
			r.txResult.Store(txResult{err: err})
			r.state.Store(int32(StateAsyncTxEnd))
		},
	})
	if err := r.tx.Start(); err != nil {
		r.logger.Error("Failed to start transmit stream", zap.Error(err))
		r.tx = nil
		r.chip.SetIdle()
		r.setState(StateIdle)
		return false
	}
	return true
}

// StopTx aborts or finalises a transmission and returns to Idle.
func (r *Radio) StopTx() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTx()
}

func (r *Radio) stopTx() {
	if !r.State().transmitting() {
		return
	}
	if r.tx != nil {
		r.tx.Stop()
		r.tx = nil
	}
	if err := r.chip.SetIdle(); err != nil {
		r.logger.Error("Failed to idle CC1101", zap.Error(err))
	}
	if r.gdo0 != nil {
		if err := r.gdo0.SetDirection(embd.In); err != nil {
			r.logger.Error("Failed to set GDO0 direction", zap.Error(err))
		}
	}
	r.setState(StateIdle)
}

// PollTxComplete reports whether no transmission is pending. A fully drained
// transmission is torn down and the radio returns to Idle.
func (r *Radio) PollTxComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.State() {
	case StateAsyncTx, StateAsyncTxLast:
		return false
	case StateAsyncTxEnd:
		r.stopTx()
	}
	return true
}

// TxErr returns why the last transmission failed, nil if it drained normally.
func (r *Radio) TxErr() error {
	return r.txResult.Load().(txResult).err
}

// RSSI in dBm. Reads while not receiving or transmitting report RSSIFloor.
func (r *Radio) RSSI() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s == StateIdle || s == StateInit {
		return RSSIFloor
	}
	rssi, err := r.chip.ReadRSSI()
	if err != nil {
		r.logger.Debug("Failed to read RSSI", zap.Error(err))
		return RSSIFloor
	}
	return rssi
}

// LQI of the last received data, 0 while not receiving or transmitting.
func (r *Radio) LQI() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s == StateIdle || s == StateInit {
		return 0
	}
	lqi, err := r.chip.ReadLQI()
	if err != nil {
		r.logger.Debug("Failed to read LQI", zap.Error(err))
		return 0
	}
	return lqi
}

func (r *Radio) Close() error {
	r.StopRx()
	r.StopTx()
	return r.chip.Close()
}
