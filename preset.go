package subghz

import (
	"errors"
	"strings"
)

type Modulation int

const (
	ModulationOOK Modulation = iota
	Modulation2FSK
	ModulationMSK
	ModulationGFSK
	ModulationCustom
)

func (m Modulation) String() string {
	switch m {
	case ModulationOOK:
		return "OOK"
	case Modulation2FSK:
		return "2FSK"
	case ModulationMSK:
		return "MSK"
	case ModulationGFSK:
		return "GFSK"
	default:
		return "Custom"
	}
}

type RegisterValue struct {
	Address byte
	Value   byte
}

// Preset is a complete modem configuration. It is always loaded as a whole.
type Preset struct {
	Name       string
	Modulation Modulation
	Registers  []RegisterValue
	PATable    [8]byte
}

var ErrUnknownPreset = errors.New("unknown preset")

// Registers shared by every asynchronous preset: GDO0 carries the serial data,
// no packet engine, autocalibrate from idle.
var asyncCommon = []RegisterValue{
	{IOCFG0, IOCFG_ASYNC_SERIAL},
	{PKTCTRL0, 0x32},
	{FSCTRL1, 0x06},
	{MCSM0, 0x18},
	{WORCTRL, 0xfb},
}

func withCommon(regs ...RegisterValue) []RegisterValue {
	out := make([]RegisterValue, 0, len(asyncCommon)+len(regs))
	out = append(out, asyncCommon...)
	return append(out, regs...)
}

var ookPATable = [8]byte{0x00, 0xc0}
var fskPATable = [8]byte{0xc0}

var (
	PresetOok270Async = &Preset{
		Name:       "FuriHalSubGhzPresetOok270Async",
		Modulation: ModulationOOK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x47},
			RegisterValue{MDMCFG0, 0x00},
			RegisterValue{MDMCFG1, 0x00},
			RegisterValue{MDMCFG2, 0x30},
			RegisterValue{MDMCFG3, 0x32},
			RegisterValue{MDMCFG4, 0x67},
			RegisterValue{FOCCFG, 0x18},
			RegisterValue{AGCCTRL0, 0x40},
			RegisterValue{AGCCTRL1, 0x00},
			RegisterValue{AGCCTRL2, 0x03},
			RegisterValue{FREND0, 0x11},
			RegisterValue{FREND1, 0xb6},
		),
		PATable: ookPATable,
	}

	PresetOok650Async = &Preset{
		Name:       "FuriHalSubGhzPresetOok650Async",
		Modulation: ModulationOOK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x07},
			RegisterValue{MDMCFG0, 0x00},
			RegisterValue{MDMCFG1, 0x00},
			RegisterValue{MDMCFG2, 0x30},
			RegisterValue{MDMCFG3, 0x32},
			RegisterValue{MDMCFG4, 0x17},
			RegisterValue{FOCCFG, 0x18},
			RegisterValue{AGCCTRL0, 0x91},
			RegisterValue{AGCCTRL1, 0x00},
			RegisterValue{AGCCTRL2, 0x07},
			RegisterValue{FREND0, 0x11},
			RegisterValue{FREND1, 0xb6},
		),
		PATable: ookPATable,
	}

	Preset2FSKDev238Async = &Preset{
		Name:       "FuriHalSubGhzPreset2FSKDev238Async",
		Modulation: Modulation2FSK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x47},
			RegisterValue{MDMCFG0, 0x00},
			RegisterValue{MDMCFG1, 0x02},
			RegisterValue{MDMCFG2, 0x04},
			RegisterValue{MDMCFG3, 0x83},
			RegisterValue{MDMCFG4, 0x67},
			RegisterValue{DEVIATN, 0x04},
			RegisterValue{FOCCFG, 0x16},
			RegisterValue{AGCCTRL0, 0x91},
			RegisterValue{AGCCTRL1, 0x00},
			RegisterValue{AGCCTRL2, 0x07},
			RegisterValue{FREND0, 0x10},
			RegisterValue{FREND1, 0x56},
		),
		PATable: fskPATable,
	}

	Preset2FSKDev476Async = &Preset{
		Name:       "FuriHalSubGhzPreset2FSKDev476Async",
		Modulation: Modulation2FSK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x47},
			RegisterValue{MDMCFG0, 0x00},
			RegisterValue{MDMCFG1, 0x02},
			RegisterValue{MDMCFG2, 0x04},
			RegisterValue{MDMCFG3, 0x83},
			RegisterValue{MDMCFG4, 0x67},
			RegisterValue{DEVIATN, 0x47},
			RegisterValue{FOCCFG, 0x16},
			RegisterValue{AGCCTRL0, 0x91},
			RegisterValue{AGCCTRL1, 0x00},
			RegisterValue{AGCCTRL2, 0x07},
			RegisterValue{FREND0, 0x10},
			RegisterValue{FREND1, 0x56},
		),
		PATable: fskPATable,
	}

	PresetMSK99_97KbAsync = &Preset{
		Name:       "FuriHalSubGhzPresetMSK99_97KbAsync",
		Modulation: ModulationMSK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x07},
			RegisterValue{SYNC1, 0x46},
			RegisterValue{SYNC0, 0x4c},
			RegisterValue{MDMCFG0, 0xf8},
			RegisterValue{MDMCFG1, 0x22},
			RegisterValue{MDMCFG2, 0x72},
			RegisterValue{MDMCFG3, 0xf8},
			RegisterValue{MDMCFG4, 0x5b},
			RegisterValue{DEVIATN, 0x47},
			RegisterValue{FOCCFG, 0x16},
			RegisterValue{BSCFG, 0x1c},
			RegisterValue{AGCCTRL0, 0xb2},
			RegisterValue{AGCCTRL1, 0x00},
			RegisterValue{AGCCTRL2, 0xc7},
			RegisterValue{FREND0, 0x10},
			RegisterValue{FREND1, 0x56},
		),
		PATable: fskPATable,
	}

	PresetGFSK9_99KbAsync = &Preset{
		Name:       "FuriHalSubGhzPresetGFSK9_99KbAsync",
		Modulation: ModulationGFSK,
		Registers: withCommon(
			RegisterValue{FIFOTHR, 0x47},
			RegisterValue{SYNC1, 0x46},
			RegisterValue{SYNC0, 0x4c},
			RegisterValue{MDMCFG0, 0x00},
			RegisterValue{MDMCFG1, 0x22},
			RegisterValue{MDMCFG2, 0x1e},
			RegisterValue{MDMCFG3, 0x93},
			RegisterValue{MDMCFG4, 0xc8},
			RegisterValue{DEVIATN, 0x34},
			RegisterValue{FOCCFG, 0x16},
			RegisterValue{BSCFG, 0x6c},
			RegisterValue{AGCCTRL0, 0x91},
			RegisterValue{AGCCTRL1, 0x40},
			RegisterValue{AGCCTRL2, 0x43},
			RegisterValue{FREND0, 0x10},
			RegisterValue{FREND1, 0x56},
		),
		PATable: fskPATable,
	}

	Presets = []*Preset{
		PresetOok270Async,
		PresetOok650Async,
		Preset2FSKDev238Async,
		Preset2FSKDev476Async,
		PresetMSK99_97KbAsync,
		PresetGFSK9_99KbAsync,
	}

	presetAliases = map[string]*Preset{
		"am270":  PresetOok270Async,
		"am650":  PresetOok650Async,
		"fm238":  Preset2FSKDev238Async,
		"fm476":  Preset2FSKDev476Async,
		"msk":    PresetMSK99_97KbAsync,
		"gfsk":   PresetGFSK9_99KbAsync,
		"ook270": PresetOok270Async,
		"ook650": PresetOok650Async,
	}
)

// NewCustomPreset wraps a caller supplied register table.
func NewCustomPreset(name string, regs []RegisterValue, patable [8]byte) *Preset {
	r := make([]RegisterValue, len(regs))
	copy(r, regs)
	return &Preset{
		Name:       name,
		Modulation: ModulationCustom,
		Registers:  r,
		PATable:    patable,
	}
}

// LookupPreset finds a built-in preset by full name or short alias (AM650, FM476, ...).
func LookupPreset(name string) (*Preset, error) {
	for _, p := range Presets {
		if p.Name == name {
			return p, nil
		}
	}
	if p, ok := presetAliases[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, ErrUnknownPreset
}

// ShortName is the label shown in the receiver status bar.
func (p *Preset) ShortName() string {
	switch p {
	case PresetOok270Async:
		return "AM270"
	case PresetOok650Async:
		return "AM650"
	case Preset2FSKDev238Async:
		return "FM238"
	case Preset2FSKDev476Async:
		return "FM476"
	case PresetMSK99_97KbAsync:
		return "MSK"
	case PresetGFSK9_99KbAsync:
		return "GFSK"
	}
	return "Custom"
}
