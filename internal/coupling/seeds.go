package coupling

import (
	"github.com/markusressel/heat2go/internal/util"
)

// seed coefficients (°C/h per °C) derived from the building topology
const (
	SeedOpenPlan      = 0.15
	SeedStairwellUp   = 0.10
	SeedStairwellDown = 0.03
	SeedFloorAbove    = 0.04
)

// Topology describes how zones are physically connected
type Topology struct {
	// floor level per zone id
	Floors map[string]int
	// groups of zones sharing an open floor plan
	OpenGroups [][]string
	// zones connected by a stairwell
	Stairwell []string
}

// Seeds derives initial coefficients for all ordered zone pairs the topology
// says something about. Open plan takes precedence over a stairwell connection,
// which takes precedence over a zone being on the floor directly above.
func (t Topology) Seeds() map[Pair]float64 {
	seeds := map[Pair]float64{}
	set := func(pair Pair, value float64) {
		if pair.Source == pair.Target {
			return
		}
		if _, exists := seeds[pair]; !exists {
			seeds[pair] = value
		}
	}

	for _, group := range t.OpenGroups {
		for _, source := range group {
			for _, target := range group {
				set(Pair{Source: source, Target: target}, SeedOpenPlan)
			}
		}
	}

	for _, source := range t.Stairwell {
		for _, target := range t.Stairwell {
			sourceFloor, sourceOk := t.Floors[source]
			targetFloor, targetOk := t.Floors[target]
			if !sourceOk || !targetOk || sourceFloor == targetFloor {
				continue
			}
			if targetFloor > sourceFloor {
				set(Pair{Source: source, Target: target}, SeedStairwellUp)
			} else {
				set(Pair{Source: source, Target: target}, SeedStairwellDown)
			}
		}
	}

	zones := util.SortedKeys(t.Floors)
	for _, source := range zones {
		for _, target := range zones {
			if t.Floors[target] == t.Floors[source]+1 {
				set(Pair{Source: source, Target: target}, SeedFloorAbove)
			}
		}
	}

	return seeds
}
