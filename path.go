package subghz

// Path selects the antenna matching network.
type Path int

const (
	PathIsolate Path = iota
	Path433
	Path315
	Path868
)

func (p Path) String() string {
	switch p {
	case Path433:
		return "433MHz"
	case Path315:
		return "315MHz"
	case Path868:
		return "868MHz"
	default:
		return "Isolate"
	}
}

// Band is an inclusive frequency range in Hz.
type Band struct {
	Min, Max uint32
}

func (b Band) Contains(hz uint32) bool {
	return hz >= b.Min && hz <= b.Max
}

// Ranges the synthesizer can reach, and the path serving each.
var synthBands = []struct {
	Band
	path Path
}{
	{Band{281000000, 361000000}, Path315},
	{Band{378000000, 481000000}, Path433},
	{Band{749000000, 962000000}, Path868},
}

func IsFrequencyValid(hz uint32) bool {
	for _, b := range synthBands {
		if b.Contains(hz) {
			return true
		}
	}
	return false
}

// ClampFrequency returns hz if the synthesizer can reach it, otherwise the nearest edge of a valid range.
func ClampFrequency(hz uint32) uint32 {
	best := synthBands[0].Min
	var bestDist uint32 = ^uint32(0)
	for _, b := range synthBands {
		if b.Contains(hz) {
			return hz
		}
		for _, edge := range []uint32{b.Min, b.Max} {
			d := edge - hz
			if hz > edge {
				d = hz - edge
			}
			if d < bestDist {
				best, bestDist = edge, d
			}
		}
	}
	return best
}

// PathForFrequency picks the matching network for hz, PathIsolate if hz is unreachable.
func PathForFrequency(hz uint32) Path {
	for _, b := range synthBands {
		if b.Contains(hz) {
			return b.path
		}
	}
	return PathIsolate
}
