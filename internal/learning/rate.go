package learning

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
	"gonum.org/v1/gonum/stat"
)

const (
	// temperature reversals smaller than this (°C) do not end a segment
	NoiseTolerance = 0.05
	// segments shorter than this are ignored
	MinSegmentDuration = 10 * time.Minute
	// plausible rate bounds in °C/h
	MinRate = 0.05
	MaxRate = 10.0
	// maximum number of rates kept per buffer
	MaxRateSamples = 20
	// rates further than this many standard deviations from the mean are outliers
	OutlierSigma = 2.0

	minOutlierSamples = 3
)

type TemperatureSample struct {
	Time        time.Time
	Temperature float64
}

// Segment is a monotonic run of a temperature series
type Segment struct {
	Start TemperatureSample
	End   TemperatureSample
}

func (s Segment) Duration() time.Duration {
	return s.End.Time.Sub(s.Start.Time)
}

// Rate returns the signed rate of change in °C/h
func (s Segment) Rate() float64 {
	hours := s.Duration().Hours()
	if hours <= 0 {
		return 0
	}
	return (s.End.Temperature - s.Start.Temperature) / hours
}

func (s Segment) IsValid() bool {
	rate := math.Abs(s.Rate())
	return s.Duration() >= MinSegmentDuration && rate >= MinRate && rate <= MaxRate
}

// FindSegments splits a time ordered series into monotonic segments.
// A segment only ends once the temperature reverses by more than NoiseTolerance
// from the most extreme value of the current segment. Non-finite and out of order
// samples are skipped.
func FindSegments(samples []TemperatureSample) []Segment {
	var segments []Segment
	var start, extreme TemperatureSample
	var lastTime time.Time
	direction := 0
	initialized := false

	for _, sample := range samples {
		if !util.IsFinite(sample.Temperature) {
			continue
		}
		if !initialized {
			start, extreme = sample, sample
			lastTime = sample.Time
			initialized = true
			continue
		}
		if !sample.Time.After(lastTime) {
			continue
		}
		lastTime = sample.Time

		switch direction {
		case 0:
			if math.Abs(sample.Temperature-start.Temperature) > NoiseTolerance {
				direction = util.Sign(sample.Temperature - start.Temperature)
				extreme = sample
			}
		case 1:
			if sample.Temperature >= extreme.Temperature {
				extreme = sample
			} else if extreme.Temperature-sample.Temperature > NoiseTolerance {
				segments = append(segments, Segment{Start: start, End: extreme})
				start, extreme = extreme, sample
				direction = -1
			}
		case -1:
			if sample.Temperature <= extreme.Temperature {
				extreme = sample
			} else if sample.Temperature-extreme.Temperature > NoiseTolerance {
				segments = append(segments, Segment{Start: start, End: extreme})
				start, extreme = extreme, sample
				direction = 1
			}
		}
	}

	if direction != 0 {
		segments = append(segments, Segment{Start: start, End: extreme})
	}
	return segments
}

// CalculateRate returns the median rate (°C/h, always positive) of all valid
// rising or falling segments of the given series.
func CalculateRate(samples []TemperatureSample, rising bool) (float64, bool) {
	var rates []float64
	for _, segment := range FindSegments(samples) {
		rate := segment.Rate()
		if (rising && rate <= 0) || (!rising && rate >= 0) {
			continue
		}
		if !segment.IsValid() {
			continue
		}
		rates = append(rates, math.Abs(rate))
	}
	if len(rates) == 0 {
		return 0, false
	}
	return util.Median(rates), true
}

// RateLearner keeps the most recent heating and cooling rates of a zone
type RateLearner struct {
	heatingType  heating.Type
	heatingRates []float64
	coolingRates []float64
}

func NewRateLearner(heatingType heating.Type) *RateLearner {
	return &RateLearner{
		heatingType: heatingType,
	}
}

// AddHeatingRate stores a heating rate (°C/h), implausible values are ignored
func (l *RateLearner) AddHeatingRate(rate float64) bool {
	return addRate(&l.heatingRates, rate, "heating")
}

// AddCoolingRate stores a cooling rate (°C/h, positive), implausible values are ignored
func (l *RateLearner) AddCoolingRate(rate float64) bool {
	return addRate(&l.coolingRates, rate, "cooling")
}

func addRate(buffer *[]float64, rate float64, kind string) bool {
	if !util.IsFinite(rate) || rate < MinRate || rate > MaxRate {
		ui.Debug("Ignoring implausible %s rate: %v °C/h", kind, rate)
		return false
	}
	*buffer = append(*buffer, rate)
	if len(*buffer) > MaxRateSamples {
		*buffer = (*buffer)[len(*buffer)-MaxRateSamples:]
	}
	return true
}

// LearnFromSeries extracts heating and cooling rates from a temperature series
func (l *RateLearner) LearnFromSeries(samples []TemperatureSample) {
	if rate, ok := CalculateRate(samples, true); ok {
		l.AddHeatingRate(rate)
	}
	if rate, ok := CalculateRate(samples, false); ok {
		l.AddCoolingRate(rate)
	}
}

// HeatingRate returns the outlier filtered average heating rate
func (l *RateLearner) HeatingRate() (float64, bool) {
	return robustAverage(l.heatingRates)
}

// CoolingRate returns the outlier filtered average cooling rate
func (l *RateLearner) CoolingRate() (float64, bool) {
	return robustAverage(l.coolingRates)
}

func (l *RateLearner) HeatingSampleCount() int {
	return len(l.heatingRates)
}

func (l *RateLearner) CoolingSampleCount() int {
	return len(l.coolingRates)
}

// EstimateRecoveryTime estimates how long it takes to raise the temperature by delta °C,
// including the cold-soak margin of the heating type.
func (l *RateLearner) EstimateRecoveryTime(delta float64) (time.Duration, bool) {
	if !util.IsFinite(delta) {
		return 0, false
	}
	if delta <= 0 {
		return 0, true
	}
	rate, ok := l.HeatingRate()
	if !ok || rate <= 0 {
		return 0, false
	}
	hours := delta / rate * heating.GetProfile(l.heatingType).ColdSoakMargin
	return time.Duration(hours * float64(time.Hour)), true
}

func (l *RateLearner) Clear() {
	l.heatingRates = nil
	l.coolingRates = nil
}

// RejectOutliers removes all values further than OutlierSigma standard deviations
// from the mean. If filtering would remove every value, the input is returned.
func RejectOutliers(values []float64) []float64 {
	if len(values) < minOutlierSamples {
		return values
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || !util.IsFinite(std) {
		return values
	}
	var filtered []float64
	for _, v := range values {
		if math.Abs(v-mean) <= OutlierSigma*std {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return values
	}
	return filtered
}

func robustAverage(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(RejectOutliers(values), nil), true
}

type rateLearnerState struct {
	HeatingRates []float64 `mapstructure:"heating_rates"`
	CoolingRates []float64 `mapstructure:"cooling_rates"`
}

func (l *RateLearner) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"heating_rates": append([]float64{}, l.heatingRates...),
		"cooling_rates": append([]float64{}, l.coolingRates...),
	}
}

// FromMap restores the rate buffers, implausible values are skipped
func (l *RateLearner) FromMap(data map[string]interface{}) error {
	var state rateLearnerState
	if err := util.DecodeMap(data, &state); err != nil {
		return err
	}
	l.Clear()
	for _, rate := range state.HeatingRates {
		l.AddHeatingRate(rate)
	}
	for _, rate := range state.CoolingRates {
		l.AddCoolingRate(rate)
	}
	return nil
}
