package subghz

import (
	"errors"
	"strings"
)

// Region is the set of bands transmission is permitted in.
type Region struct {
	Name  string
	Bands []Band
}

var ErrUnknownRegion = errors.New("unknown region")

var (
	// RegionUnlocked permits transmission anywhere the synthesizer can reach.
	RegionUnlocked = Region{
		Name: "unlocked",
		Bands: []Band{
			{281000000, 361000000},
			{378000000, 481000000},
			{749000000, 962000000},
		},
	}
	RegionEU = Region{
		Name: "eu",
		Bands: []Band{
			{433050000, 434790000},
			{868150000, 868550000},
		},
	}
	RegionUS = Region{
		Name: "us",
		Bands: []Band{
			{304100000, 321950000},
			{433050000, 434790000},
			{915000000, 928000000},
		},
	}
	RegionJP = Region{
		Name: "jp",
		Bands: []Band{
			{312000000, 315250000},
			{920500000, 923500000},
		},
	}

	regions = []Region{RegionUnlocked, RegionEU, RegionUS, RegionJP}
)

func LookupRegion(name string) (Region, error) {
	for _, r := range regions {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Region{}, ErrUnknownRegion
}

// Allows reports whether transmitting on hz is permitted. It has no side effects.
func (r Region) Allows(hz uint32) bool {
	if !IsFrequencyValid(hz) {
		return false
	}
	for _, b := range r.Bands {
		if b.Contains(hz) {
			return true
		}
	}
	return false
}

func (r Region) Locked() bool {
	return r.Name != RegionUnlocked.Name
}
