package configuration

import "github.com/markusressel/heat2go/internal/coupling"

const (
	DefaultFeedforwardGain = 1.0
	DefaultMaxFeedforward  = 20.0
)

type CouplingConfig struct {
	Enabled bool `json:"enabled"`
	// scales the feedforward (%) per °C/h of coupled heat input
	FeedforwardGain float64 `json:"feedforwardGain"`
	// upper limit (%) of the feedforward term of a single zone
	MaxFeedforward float64 `json:"maxFeedforward"`

	Topology TopologyConfig `json:"topology"`
	Seeds    []SeedConfig   `json:"seeds"`
}

type TopologyConfig struct {
	// floor level per zone id
	Floors map[string]int `json:"floors"`
	// groups of zones sharing an open floor plan
	OpenGroups [][]string `json:"openGroups"`
	// zones connected by a stairwell
	Stairwell []string `json:"stairwell"`
}

// SeedConfig explicitly seeds the coefficient of an ordered zone pair
type SeedConfig struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// SeedCoefficients derives the coupling seeds from the topology,
// explicitly configured seeds take precedence.
func (c CouplingConfig) SeedCoefficients() map[coupling.Pair]float64 {
	topology := coupling.Topology{
		Floors:     c.Topology.Floors,
		OpenGroups: c.Topology.OpenGroups,
		Stairwell:  c.Topology.Stairwell,
	}
	seeds := topology.Seeds()
	for _, seed := range c.Seeds {
		seeds[coupling.Pair{Source: seed.Source, Target: seed.Target}] = seed.Value
	}
	return seeds
}
