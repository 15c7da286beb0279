// Package pulse holds the timing sample shared by capture, decoders and transmission.
package pulse

import "fmt"

// LevelDuration is one timed signal edge: the line was at Level for Duration microseconds.
type LevelDuration struct {
	Level    bool
	Duration uint32
	end      bool
}

func New(level bool, duration uint32) LevelDuration {
	return LevelDuration{Level: level, Duration: duration}
}

// End marks the end of a transmit stream.
func End() LevelDuration {
	return LevelDuration{end: true}
}

func (ld LevelDuration) IsEnd() bool {
	return ld.end
}

func (ld LevelDuration) String() string {
	if ld.end {
		return "end"
	}
	if ld.Level {
		return fmt.Sprintf("+%d", ld.Duration)
	}
	return fmt.Sprintf("-%d", ld.Duration)
}

// Signed returns the duration with the sign carrying the level, as used in raw key files.
func (ld LevelDuration) Signed() int32 {
	if ld.Level {
		return int32(ld.Duration)
	}
	return -int32(ld.Duration)
}

func FromSigned(v int32) LevelDuration {
	if v < 0 {
		return New(false, uint32(-v))
	}
	return New(true, uint32(v))
}

// DurationDiff returns the absolute difference between two durations.
func DurationDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
