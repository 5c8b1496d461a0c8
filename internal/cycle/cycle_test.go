package cycle

import (
	"math"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cycleStart = time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

func createTrace(step time.Duration, temperatures ...float64) []learning.TemperatureSample {
	var result []learning.TemperatureSample
	for i, temperature := range temperatures {
		result = append(result, learning.TemperatureSample{
			Time:        cycleStart.Add(time.Duration(i) * step),
			Temperature: temperature,
		})
	}
	return result
}

func TestAnalyzeSetpointNeverReached(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 18, 18.5, 19, 19.5)

	// WHEN
	metrics, ok := Analyze(trace, 21)

	// THEN
	require.True(t, ok)
	assert.Equal(t, 0.0, metrics.Overshoot)
	assert.InDelta(t, 1.5, metrics.Undershoot, 1e-9)
	assert.Equal(t, 0, metrics.Oscillations)
	assert.InDelta(t, 0.5, metrics.RiseTime, 1e-9)
	assert.InDelta(t, 0.5, metrics.SettlingTime, 1e-9)
}

func TestAnalyzeTypicalCycle(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 19, 20, 21, 21.6, 21.3, 21.1, 21.0, 20.9)

	// WHEN
	metrics, ok := Analyze(trace, 21)

	// THEN
	require.True(t, ok)
	assert.InDelta(t, 0.6, metrics.Overshoot, 1e-9)
	assert.InDelta(t, 0.1, metrics.Undershoot, 1e-9)
	assert.Equal(t, 0, metrics.Oscillations)
	assert.InDelta(t, 20.0/60, metrics.RiseTime, 1e-9)
	assert.InDelta(t, 50.0/60, metrics.SettlingTime, 1e-9)
}

func TestAnalyzeOscillatingCycle(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 20, 21, 21.5, 20.5, 21.5, 20.5, 21.5)

	// WHEN
	metrics, ok := Analyze(trace, 21)

	// THEN
	require.True(t, ok)
	assert.Equal(t, 2, metrics.Oscillations)
	assert.InDelta(t, 0.5, metrics.Overshoot, 1e-9)
	assert.InDelta(t, 0.5, metrics.Undershoot, 1e-9)
	// ends outside the settling band
	assert.InDelta(t, 1.0, metrics.SettlingTime, 1e-9)
}

func TestAnalyzeNoiseWithinCrossingBandIsIgnored(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 20, 21, 21.03, 20.98, 21.02, 20.97, 21.01)

	// WHEN
	metrics, ok := Analyze(trace, 21)

	// THEN
	require.True(t, ok)
	assert.Equal(t, 0, metrics.Oscillations)
}

func TestAnalyzeStartingAtSetpoint(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 21.1, 21.0, 20.9, 21.05)

	// WHEN
	metrics, ok := Analyze(trace, 21)

	// THEN
	require.True(t, ok)
	assert.Equal(t, 0.0, metrics.RiseTime)
	assert.Equal(t, 0.0, metrics.SettlingTime)
}

func TestAnalyzeTooShort(t *testing.T) {
	// GIVEN
	trace := createTrace(4*time.Minute, 20, 20.5, 21)

	// WHEN
	_, ok := Analyze(trace, 21)

	// THEN
	assert.False(t, ok)
}

func TestAnalyzeInvalidSetpoint(t *testing.T) {
	// GIVEN
	trace := createTrace(10*time.Minute, 20, 20.5, 21)

	// WHEN
	_, ok := Analyze(trace, math.NaN())

	// THEN
	assert.False(t, ok)
}

func TestTrackerFirstStartHasNoMetrics(t *testing.T) {
	// GIVEN
	tracker := NewTracker()

	// WHEN
	_, ok := tracker.Start(cycleStart, 19, 21)

	// THEN
	assert.False(t, ok)
	assert.True(t, tracker.IsActive())
	assert.Len(t, tracker.Samples(), 1)
}

func TestTrackerReturnsMetricsOnNextStart(t *testing.T) {
	// GIVEN
	tracker := NewTracker()
	tracker.Start(cycleStart, 19, 21)
	for i, temperature := range []float64{20, 21, 21.4, 21.1, 20.9} {
		tracker.Add(cycleStart.Add(time.Duration(i+1)*10*time.Minute), temperature, 21)
	}

	// WHEN
	metrics, ok := tracker.Start(cycleStart.Add(time.Hour), 20.8, 21)

	// THEN
	require.True(t, ok)
	assert.InDelta(t, 0.4, metrics.Overshoot, 1e-9)
	assert.InDelta(t, 20.0/60, metrics.RiseTime, 1e-9)
	assert.Len(t, tracker.Samples(), 1)
}

func TestTrackerSetpointChangeAbortsCycle(t *testing.T) {
	// GIVEN
	tracker := NewTracker()
	tracker.Start(cycleStart, 19, 21)
	tracker.Add(cycleStart.Add(10*time.Minute), 20, 21)

	// WHEN
	tracker.Add(cycleStart.Add(20*time.Minute), 20.5, 22)

	// THEN
	assert.False(t, tracker.IsActive())
	_, ok := tracker.Start(cycleStart.Add(time.Hour), 21, 22)
	assert.False(t, ok)
}

func TestTrackerIgnoresInvalidSamples(t *testing.T) {
	// GIVEN
	tracker := NewTracker()
	tracker.Start(cycleStart, 19, 21)

	// WHEN
	tracker.Add(cycleStart.Add(10*time.Minute), math.NaN(), 21)
	tracker.Add(cycleStart, 19.5, 21)
	tracker.Add(cycleStart.Add(-time.Minute), 19.5, 21)

	// THEN
	assert.Len(t, tracker.Samples(), 1)
	assert.True(t, tracker.IsActive())
}
