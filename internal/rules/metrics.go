package rules

import (
	"fmt"

	"github.com/markusressel/heat2go/internal/util"
)

// CycleMetrics describes the performance of a single completed heating cycle.
// All values are non-negative, temperatures in °C and times in hours.
type CycleMetrics struct {
	Overshoot    float64 `json:"overshoot"`
	Undershoot   float64 `json:"undershoot"`
	Oscillations int     `json:"oscillations"`
	RiseTime     float64 `json:"riseTime"`
	SettlingTime float64 `json:"settlingTime"`
}

// Sanitized returns a copy with negative and non-finite values replaced by 0
func (m CycleMetrics) Sanitized() CycleMetrics {
	positive := func(value float64) float64 {
		if !util.IsFinite(value) || value < 0 {
			return 0
		}
		return value
	}
	result := CycleMetrics{
		Overshoot:    positive(m.Overshoot),
		Undershoot:   positive(m.Undershoot),
		Oscillations: m.Oscillations,
		RiseTime:     positive(m.RiseTime),
		SettlingTime: positive(m.SettlingTime),
	}
	if result.Oscillations < 0 {
		result.Oscillations = 0
	}
	return result
}

func (m CycleMetrics) String() string {
	return fmt.Sprintf("overshoot: %.2f°C, undershoot: %.2f°C, oscillations: %d, rise: %.2fh, settling: %.2fh",
		m.Overshoot, m.Undershoot, m.Oscillations, m.RiseTime, m.SettlingTime)
}

// AverageMetrics averages a window of cycles, oscillations are rounded to the nearest count
func AverageMetrics(cycles []CycleMetrics) CycleMetrics {
	if len(cycles) == 0 {
		return CycleMetrics{}
	}
	var overshoot, undershoot, oscillations, rise, settling []float64
	for _, c := range cycles {
		c = c.Sanitized()
		overshoot = append(overshoot, c.Overshoot)
		undershoot = append(undershoot, c.Undershoot)
		oscillations = append(oscillations, float64(c.Oscillations))
		rise = append(rise, c.RiseTime)
		settling = append(settling, c.SettlingTime)
	}
	return CycleMetrics{
		Overshoot:    util.Avg(overshoot),
		Undershoot:   util.Avg(undershoot),
		Oscillations: int(util.Avg(oscillations) + 0.5),
		RiseTime:     util.Avg(rise),
		SettlingTime: util.Avg(settling),
	}
}
