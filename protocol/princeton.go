package protocol

import (
	"fmt"

	"github.com/hatstand/subghz/pulse"
)

const (
	PrincetonName = "Princeton"

	princetonBits     = 24
	princetonTeShort  = 390
	princetonTeLong   = 1170
	princetonTeDelta  = 300
	princetonRepeats  = 10
	princetonSyncTe   = 30
	princetonMinGapTe = 36
)

type princetonStep int

const (
	princetonReset princetonStep = iota
	princetonSaveDuration
	princetonCheckDuration
)

// PrincetonDecoder handles PT2262 style fixed codes: 24 bits, each a short/long
// pulse pair, frames separated by a ~31 te low.
type PrincetonDecoder struct {
	step    princetonStep
	data    uint32
	bits    int
	teLast  uint32
	teSum   uint32
	teCount uint32
}

func NewPrincetonDecoder() *PrincetonDecoder {
	return &PrincetonDecoder{}
}

func (d *PrincetonDecoder) Name() string {
	return PrincetonName
}

func (d *PrincetonDecoder) Reset() {
	*d = PrincetonDecoder{}
}

func (d *PrincetonDecoder) startFrame() {
	d.step = princetonSaveDuration
	d.data = 0
	d.bits = 0
	d.teSum = 0
	d.teCount = 0
}

func (d *PrincetonDecoder) Feed(ld pulse.LevelDuration) *Item {
	switch d.step {
	case princetonReset:
		if !ld.Level && pulse.DurationDiff(ld.Duration, princetonTeShort*princetonMinGapTe) < princetonTeDelta*princetonMinGapTe {
			d.startFrame()
		}
	case princetonSaveDuration:
		if ld.Level {
			d.teLast = ld.Duration
			d.step = princetonCheckDuration
		} else {
			d.step = princetonReset
		}
	case princetonCheckDuration:
		if ld.Level {
			d.step = princetonReset
			return nil
		}
		if ld.Duration >= princetonTeLong*2 {
			var item *Item
			if d.bits == princetonBits {
				item = d.item()
			}
			d.startFrame()
			return item
		}
		switch {
		case pulse.DurationDiff(d.teLast, princetonTeShort) < princetonTeDelta &&
			pulse.DurationDiff(ld.Duration, princetonTeLong) < princetonTeDelta*3:
			d.addBit(0, d.teLast+ld.Duration)
		case pulse.DurationDiff(d.teLast, princetonTeLong) < princetonTeDelta*3 &&
			pulse.DurationDiff(ld.Duration, princetonTeShort) < princetonTeDelta:
			d.addBit(1, d.teLast+ld.Duration)
		default:
			d.step = princetonReset
		}
	}
	return nil
}

func (d *PrincetonDecoder) addBit(bit uint32, period uint32) {
	d.data = d.data<<1 | bit
	d.bits++
	d.teSum += period
	d.teCount += 4
	d.step = princetonSaveDuration
}

func (d *PrincetonDecoder) item() *Item {
	te := d.teSum / d.teCount
	return &Item{
		Protocol: PrincetonName,
		Payload:  []byte{byte(d.data >> 16), byte(d.data >> 8), byte(d.data)},
		Bits:     princetonBits,
		Text:     fmt.Sprintf("Princeton 0x%06X\nKey: 0x%06X\nBit: %d\nTe: %dus", d.data, d.data, princetonBits, te),
	}
}

func (d *PrincetonDecoder) Encode(item *Item) ([]pulse.LevelDuration, error) {
	if len(item.Payload) != 3 {
		return nil, fmt.Errorf("princeton payload must be 3 bytes, got %d", len(item.Payload))
	}
	key := uint32(item.Payload[0])<<16 | uint32(item.Payload[1])<<8 | uint32(item.Payload[2])
	var out []pulse.LevelDuration
	for r := 0; r < princetonRepeats; r++ {
		for i := princetonBits - 1; i >= 0; i-- {
			if key>>uint(i)&1 == 1 {
				out = append(out, pulse.New(true, princetonTeLong), pulse.New(false, princetonTeShort))
			} else {
				out = append(out, pulse.New(true, princetonTeShort), pulse.New(false, princetonTeLong))
			}
		}
		out = append(out, pulse.New(true, princetonTeShort), pulse.New(false, princetonTeShort*princetonSyncTe))
	}
	return out, nil
}
