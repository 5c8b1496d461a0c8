package coupling

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/util"
	"gonum.org/v1/gonum/stat"
)

const (
	// pseudo-count weight of the seed value in the bayesian blend
	SeedWeight = 6.0
	// observation count at which the base confidence reaches 50%
	ConfidenceK = 5.0
	// maximum confidence reduction caused by the coefficient of variation
	MaxVariationPenalty = 0.5
	ConfidenceMax       = 0.95

	// confidence below which a coefficient has no effect
	ActivationThreshold = 0.3
	// confidence at and above which a coefficient has full effect
	FullConfidenceThreshold = 0.8

	// MaxCoefficient caps every coefficient (°C/h per °C)
	MaxCoefficient = 0.5

	// relative overshoot increase over the baseline that triggers a rollback
	DegradationThreshold = 0.30
	// number of cycles without degradation after which a coefficient is validated
	ValidationCycles = 5

	MaxObservationsPerPair = 50
)

type ValidationResult string

const (
	ValidationPending  ValidationResult = ""
	ValidationRollback ValidationResult = "rollback"
	ValidationSuccess  ValidationResult = "success"
)

// Coefficient is the learned heat transfer rate between two zones
type Coefficient struct {
	Pair             Pair      `json:"pair"`
	Value            float64   `json:"value"`
	Confidence       float64   `json:"confidence"`
	ObservationCount int       `json:"observationCount"`
	Seeded           bool      `json:"seeded"`
	LastUpdated      time.Time `json:"lastUpdated"`

	// overshoot before the coefficient was applied, nil if not under validation
	BaselineOvershoot *float64 `json:"baselineOvershoot,omitempty"`
	ValidationCycles  int      `json:"validationCycles"`
}

func (c Coefficient) IsValidating() bool {
	return c.BaselineOvershoot != nil
}

// observedRates returns all positive, finite rates of the given observations
func observedRates(observations []Observation) []float64 {
	var rates []float64
	for _, o := range observations {
		rate, ok := o.Rate()
		if !ok || rate <= 0 {
			continue
		}
		rates = append(rates, rate)
	}
	return rates
}

// calculate blends the observed rates with an optional seed. Returns false if
// no usable observation exists.
func calculate(observations []Observation, seed *float64) (value float64, confidence float64, count int, ok bool) {
	rates := observedRates(observations)
	n := len(rates)
	if n == 0 {
		return 0, 0, 0, false
	}

	var mean, std float64
	if n >= 2 {
		mean, std = stat.MeanStdDev(rates, nil)
	} else {
		mean = rates[0]
	}

	value = mean
	if seed != nil {
		value = (*seed*SeedWeight + mean*float64(n)) / (SeedWeight + float64(n))
	}
	value = math.Min(value, MaxCoefficient)

	confidence = float64(n) / (float64(n) + ConfidenceK)
	if mean > 0 {
		variation := std / mean
		confidence *= 1 - math.Min(variation, MaxVariationPenalty)
	}
	confidence = util.Coerce(confidence, 0, ConfidenceMax)

	return value, confidence, n, true
}

// GraduatedConfidence scales the effect of a coefficient: 0 below the activation
// threshold, 1 at and above the full confidence threshold, linear in between.
func GraduatedConfidence(c Coefficient) float64 {
	switch {
	case !util.IsFinite(c.Confidence) || c.Confidence < ActivationThreshold:
		return 0
	case c.Confidence >= FullConfidenceThreshold:
		return 1
	default:
		return util.Ratio(c.Confidence, ActivationThreshold, FullConfidenceThreshold)
	}
}
