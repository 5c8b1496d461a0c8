package cycle

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/learning"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/util"
)

const (
	// SettlingBand is the distance (°C) from the setpoint a zone has to stay within to count as settled
	SettlingBand = 0.2
	// CrossingBand is the distance (°C) from the setpoint a temperature has to exceed
	// to count as a setpoint crossing
	CrossingBand = 0.05
	// MinCycleDuration is the shortest trace that is analyzed
	MinCycleDuration = 10 * time.Minute
	// SetpointChangeTolerance is the setpoint change (°C) that aborts a running cycle
	SetpointChangeTolerance = 0.1

	maxSamples = 4096
)

// Tracker collects the temperature trace of a heating cycle, from one heating start
// to the next one, and turns it into CycleMetrics.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	samples  []learning.TemperatureSample
	setpoint float64
	active   bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Start begins a new cycle. The metrics of the previous cycle are returned,
// if there was one long enough to be analyzed.
func (t *Tracker) Start(now time.Time, temperature float64, setpoint float64) (rules.CycleMetrics, bool) {
	var metrics rules.CycleMetrics
	ok := false
	if t.active {
		metrics, ok = Analyze(t.samples, t.setpoint)
	}

	t.samples = nil
	t.setpoint = setpoint
	t.active = util.IsFinite(setpoint)
	if t.active {
		t.Add(now, temperature, setpoint)
	}
	return metrics, ok
}

// Add appends a sample to the running cycle. A setpoint change aborts the cycle,
// since its metrics would be meaningless.
func (t *Tracker) Add(now time.Time, temperature float64, setpoint float64) {
	if !t.active {
		return
	}
	if math.Abs(setpoint-t.setpoint) > SetpointChangeTolerance || !util.IsFinite(setpoint) {
		t.Abort()
		return
	}
	if !util.IsFinite(temperature) {
		return
	}
	if len(t.samples) > 0 && !now.After(t.samples[len(t.samples)-1].Time) {
		return
	}
	if len(t.samples) >= maxSamples {
		t.samples = t.samples[1:]
	}
	t.samples = append(t.samples, learning.TemperatureSample{Time: now, Temperature: temperature})
}

// Abort discards the running cycle
func (t *Tracker) Abort() {
	t.samples = nil
	t.active = false
}

func (t *Tracker) IsActive() bool {
	return t.active
}

func (t *Tracker) Setpoint() float64 {
	return t.setpoint
}

// Samples returns a copy of the trace of the running cycle
func (t *Tracker) Samples() []learning.TemperatureSample {
	return append([]learning.TemperatureSample{}, t.samples...)
}

// Analyze calculates the metrics of a single cycle trace.
// Returns false if the trace is too short to be meaningful.
func Analyze(samples []learning.TemperatureSample, setpoint float64) (rules.CycleMetrics, bool) {
	if len(samples) < 2 || !util.IsFinite(setpoint) {
		return rules.CycleMetrics{}, false
	}
	start := samples[0].Time
	end := samples[len(samples)-1].Time
	duration := end.Sub(start)
	if duration < MinCycleDuration {
		return rules.CycleMetrics{}, false
	}

	reached := -1
	for i, sample := range samples {
		if sample.Temperature >= setpoint {
			reached = i
			break
		}
	}

	if reached < 0 {
		// the setpoint was never reached
		maxTemperature := math.Inf(-1)
		for _, sample := range samples {
			maxTemperature = math.Max(maxTemperature, sample.Temperature)
		}
		return rules.CycleMetrics{
			Undershoot:   math.Max(0, setpoint-maxTemperature),
			RiseTime:     duration.Hours(),
			SettlingTime: duration.Hours(),
		}.Sanitized(), true
	}

	afterReach := samples[reached:]
	maxTemperature := math.Inf(-1)
	minTemperature := math.Inf(1)
	for _, sample := range afterReach {
		maxTemperature = math.Max(maxTemperature, sample.Temperature)
		minTemperature = math.Min(minTemperature, sample.Temperature)
	}

	return rules.CycleMetrics{
		Overshoot:    math.Max(0, maxTemperature-setpoint),
		Undershoot:   math.Max(0, setpoint-minTemperature),
		Oscillations: countCrossings(afterReach, setpoint) / 2,
		RiseTime:     samples[reached].Time.Sub(start).Hours(),
		SettlingTime: settlingTime(samples, setpoint).Hours(),
	}.Sanitized(), true
}

// countCrossings counts how often the temperature crosses the setpoint, ignoring
// movements within CrossingBand. The first sample is expected to be at or above the setpoint.
func countCrossings(samples []learning.TemperatureSample, setpoint float64) int {
	crossings := 0
	side := 1
	for _, sample := range samples {
		current := side
		if sample.Temperature > setpoint+CrossingBand {
			current = 1
		} else if sample.Temperature < setpoint-CrossingBand {
			current = -1
		}
		if current != side {
			crossings++
			side = current
		}
	}
	return crossings
}

// settlingTime is the time from the start of the trace until the temperature
// entered the settling band for the last time. A trace ending outside the band never settled.
func settlingTime(samples []learning.TemperatureSample, setpoint float64) time.Duration {
	start := samples[0].Time
	lastOutside := -1
	for i, sample := range samples {
		if math.Abs(sample.Temperature-setpoint) > SettlingBand {
			lastOutside = i
		}
	}
	switch {
	case lastOutside < 0:
		return 0
	case lastOutside == len(samples)-1:
		return samples[lastOutside].Time.Sub(start)
	default:
		return samples[lastOutside+1].Time.Sub(start)
	}
}
