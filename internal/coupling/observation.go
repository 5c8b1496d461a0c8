package coupling

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/markusressel/heat2go/internal/util"
)

const (
	MinObservationDuration = 15 * time.Minute
	// minimum temperature rise (°C) of the source zone
	MinSourceRise = 0.3
	// maximum outdoor temperature change (°C) during an observation
	MaxOutdoorSwing = 3.0

	pairSeparator = "->"
)

var errInvalidRecord = errors.New("record contains invalid values")

// Pair is an ordered (source, target) zone pair
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (p Pair) String() string {
	return p.Source + pairSeparator + p.Target
}

// ParsePair parses the string representation of a pair, "source->target"
func ParsePair(value string) (Pair, error) {
	parts := strings.Split(value, pairSeparator)
	if len(parts) != 2 || len(parts[0]) <= 0 || len(parts[1]) <= 0 {
		return Pair{}, fmt.Errorf("invalid zone pair '%s', expected 'source%starget'", value, pairSeparator)
	}
	if parts[0] == parts[1] {
		return Pair{}, errors.New("zone pair source and target must differ")
	}
	return Pair{Source: parts[0], Target: parts[1]}, nil
}

// Observation is a single measurement of heat transfer from the source zone,
// which was heating, to the idle target zone.
type Observation struct {
	Pair
	SourceStart  float64
	SourceEnd    float64
	TargetStart  float64
	TargetEnd    float64
	OutdoorStart float64
	OutdoorEnd   float64
	Duration     time.Duration
	Timestamp    time.Time
}

func (o Observation) SourceDelta() float64 {
	return o.SourceEnd - o.SourceStart
}

func (o Observation) TargetDelta() float64 {
	return o.TargetEnd - o.TargetStart
}

func (o Observation) OutdoorSwing() float64 {
	return math.Abs(o.OutdoorEnd - o.OutdoorStart)
}

// Rate returns the observed transfer rate in °C/h of target rise per °C of source rise.
// The second return value is false if the rate is not finite.
func (o Observation) Rate() (float64, bool) {
	hours := o.Duration.Hours()
	rate := o.TargetDelta() / (o.SourceDelta() * hours)
	return rate, util.IsFinite(rate)
}

func (o Observation) isFinite() bool {
	return util.AllFinite(o.SourceStart, o.SourceEnd, o.TargetStart, o.TargetEnd, o.OutdoorStart, o.OutdoorEnd)
}

// ShouldRecord decides whether an observation is meaningful enough to be learned from
func ShouldRecord(o Observation) (bool, string) {
	switch {
	case !o.isFinite():
		return false, "non-finite temperatures"
	case o.Duration < MinObservationDuration:
		return false, fmt.Sprintf("duration %s < %s", o.Duration, MinObservationDuration)
	case o.SourceDelta() < MinSourceRise:
		return false, fmt.Sprintf("source rise %.2f°C < %.2f°C", o.SourceDelta(), MinSourceRise)
	case o.TargetStart >= o.SourceStart:
		return false, "target not cooler than source at start"
	case o.OutdoorSwing() > MaxOutdoorSwing:
		return false, fmt.Sprintf("outdoor swing %.2f°C > %.2f°C", o.OutdoorSwing(), MaxOutdoorSwing)
	case o.TargetDelta() < 0:
		return false, "target temperature decreased"
	}
	return true, ""
}

// observationContext is a pending observation of a heating source zone
type observationContext struct {
	source  string
	start   time.Time
	temps   map[string]float64
	outdoor float64
	// zones that started heating while the context was pending
	disqualified map[string]bool
}
