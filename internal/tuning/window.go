package tuning

import (
	"math"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/util"
)

// metricWindow keeps the metrics of the last completed cycles, one rolling window per metric
type metricWindow struct {
	size  int
	count int

	overshoot    *rolling.PointPolicy
	undershoot   *rolling.PointPolicy
	oscillations *rolling.PointPolicy
	riseTime     *rolling.PointPolicy
	settlingTime *rolling.PointPolicy
}

func newMetricWindow(size int) *metricWindow {
	w := &metricWindow{size: size}
	w.clear()
	return w
}

func (w *metricWindow) clear() {
	w.count = 0
	w.overshoot = util.CreateRollingWindow(w.size)
	w.undershoot = util.CreateRollingWindow(w.size)
	w.oscillations = util.CreateRollingWindow(w.size)
	w.riseTime = util.CreateRollingWindow(w.size)
	w.settlingTime = util.CreateRollingWindow(w.size)
}

func (w *metricWindow) add(metrics rules.CycleMetrics) {
	metrics = metrics.Sanitized()
	w.overshoot.Append(metrics.Overshoot)
	w.undershoot.Append(metrics.Undershoot)
	w.oscillations.Append(float64(metrics.Oscillations))
	w.riseTime.Append(metrics.RiseTime)
	w.settlingTime.Append(metrics.SettlingTime)
	if w.count < w.size {
		w.count++
	}
}

func (w *metricWindow) isFull() bool {
	return w.count >= w.size
}

// average of all cycles in the window, only meaningful once the window is full
func (w *metricWindow) average() rules.CycleMetrics {
	return rules.CycleMetrics{
		Overshoot:    util.GetWindowAvg(w.overshoot),
		Undershoot:   util.GetWindowAvg(w.undershoot),
		Oscillations: int(math.Round(util.GetWindowAvg(w.oscillations))),
		RiseTime:     util.GetWindowAvg(w.riseTime),
		SettlingTime: util.GetWindowAvg(w.settlingTime),
	}
}

// cycles returns the metrics currently held by the window, in no particular order
func (w *metricWindow) cycles() []rules.CycleMetrics {
	overshoot := points(w.overshoot, w.count)
	undershoot := points(w.undershoot, w.count)
	oscillations := points(w.oscillations, w.count)
	riseTime := points(w.riseTime, w.count)
	settlingTime := points(w.settlingTime, w.count)

	var result []rules.CycleMetrics
	for i := range overshoot {
		result = append(result, rules.CycleMetrics{
			Overshoot:    overshoot[i],
			Undershoot:   undershoot[i],
			Oscillations: int(oscillations[i]),
			RiseTime:     riseTime[i],
			SettlingTime: settlingTime[i],
		})
	}
	return result
}

// points returns the first count values of the window. Values are written
// from the first bucket onwards, so these are the ones that hold data.
func points(window *rolling.PointPolicy, count int) []float64 {
	var result []float64
	window.Reduce(func(w rolling.Window) float64 {
		for i, bucket := range w {
			if i >= count {
				break
			}
			result = append(result, bucket...)
		}
		return 0
	})
	return result
}
