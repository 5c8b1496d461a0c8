package coupling

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

// Learner learns heat transfer coefficients between zones. It is shared by
// all zones, every public method is serialized by a single mutex.
type Learner struct {
	mu sync.Mutex

	seeds        map[Pair]float64
	observations map[Pair][]Observation
	coefficients map[Pair]*Coefficient
	pending      map[string]*observationContext
}

func NewLearner(seeds map[Pair]float64) *Learner {
	l := &Learner{
		seeds:        map[Pair]float64{},
		observations: map[Pair][]Observation{},
		coefficients: map[Pair]*Coefficient{},
		pending:      map[string]*observationContext{},
	}
	for pair, value := range seeds {
		if !util.IsFinite(value) || value <= 0 || pair.Source == pair.Target {
			ui.Warning("Ignoring invalid coupling seed %s: %v", pair, value)
			continue
		}
		l.seeds[pair] = math.Min(value, MaxCoefficient)
	}
	return l
}

// StartObservation records the temperatures of all zones when source starts heating.
// Does nothing if an observation for source is already pending. Any other pending
// observation will not emit a result for source, since it is no longer idle.
func (l *Learner) StartObservation(source string, temps map[string]float64, outdoor float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, context := range l.pending {
		if context.source != source {
			context.disqualified[source] = true
		}
	}

	if _, exists := l.pending[source]; exists {
		return
	}

	snapshot := map[string]float64{}
	for zone, temp := range temps {
		if util.IsFinite(temp) {
			snapshot[zone] = temp
		}
	}
	disqualified := map[string]bool{}
	for zone := range l.pending {
		disqualified[zone] = true
	}

	l.pending[source] = &observationContext{
		source:       source,
		start:        now,
		temps:        snapshot,
		outdoor:      outdoor,
		disqualified: disqualified,
	}
	ui.Debug("Started coupling observation for source zone '%s'", source)
}

// EndObservation closes the pending observation of source and returns one observation
// per target zone that was idle during the whole observation.
func (l *Learner) EndObservation(source string, temps map[string]float64, outdoor float64, idleZones []string, now time.Time) []Observation {
	l.mu.Lock()
	defer l.mu.Unlock()

	context, exists := l.pending[source]
	if !exists {
		return nil
	}
	delete(l.pending, source)

	sourceStart, okStart := context.temps[source]
	sourceEnd, okEnd := temps[source]
	if !okStart || !okEnd {
		ui.Warning("Missing temperature of source zone '%s', discarding coupling observation", source)
		return nil
	}

	idle := append([]string{}, idleZones...)
	sort.Strings(idle)

	var result []Observation
	for _, target := range idle {
		if target == source || context.disqualified[target] {
			continue
		}
		targetStart, okStart := context.temps[target]
		targetEnd, okEnd := temps[target]
		if !okStart || !okEnd || !util.IsFinite(targetEnd) {
			continue
		}
		result = append(result, Observation{
			Pair:         Pair{Source: source, Target: target},
			SourceStart:  sourceStart,
			SourceEnd:    sourceEnd,
			TargetStart:  targetStart,
			TargetEnd:    targetEnd,
			OutdoorStart: context.outdoor,
			OutdoorEnd:   outdoor,
			Duration:     now.Sub(context.start),
			Timestamp:    now,
		})
	}
	return result
}

// CancelObservation drops a pending observation without emitting anything
func (l *Learner) CancelObservation(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, source)
}

func (l *Learner) IsObserving(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.pending[source]
	return exists
}

// ShouldRecord decides whether an observation is meaningful enough to be learned from
func (l *Learner) ShouldRecord(o Observation) bool {
	ok, reason := ShouldRecord(o)
	if !ok {
		ui.Debug("Skipping coupling observation %s: %s", o.Pair, reason)
	}
	return ok
}

// RecordObservation stores the given observation if it passes ShouldRecord and
// recalculates the coefficient of its pair.
func (l *Learner) RecordObservation(o Observation) bool {
	if !l.ShouldRecord(o) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.addObservation(o)
	l.calculateCoefficient(o.Pair, o.Timestamp)
	return true
}

func (l *Learner) addObservation(o Observation) {
	observations := append(l.observations[o.Pair], o)
	if len(observations) > MaxObservationsPerPair {
		observations = observations[len(observations)-MaxObservationsPerPair:]
	}
	l.observations[o.Pair] = observations
}

// CalculateCoefficient recalculates the coefficient of the given pair from all
// stored observations. Returns false if there is no usable observation.
func (l *Learner) CalculateCoefficient(pair Pair) (Coefficient, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.calculateCoefficient(pair, time.Now())
	if c == nil {
		return Coefficient{}, false
	}
	return copyCoefficient(c), true
}

func (l *Learner) calculateCoefficient(pair Pair, now time.Time) *Coefficient {
	var seed *float64
	if value, ok := l.seeds[pair]; ok {
		seed = &value
	}

	value, confidence, count, ok := calculate(l.observations[pair], seed)
	if !ok {
		return l.coefficients[pair]
	}

	c, exists := l.coefficients[pair]
	if !exists {
		c = &Coefficient{Pair: pair}
		l.coefficients[pair] = c
	}
	c.Value = value
	c.Confidence = confidence
	c.ObservationCount = count
	c.Seeded = seed != nil
	c.LastUpdated = now

	ui.Debug("Coupling coefficient %s: %.4f (confidence: %.2f, observations: %d)", pair, value, confidence, count)
	return c
}

// GetCoefficient returns the learned coefficient of the given pair. Without a learned
// coefficient the seed value is returned with a confidence of ActivationThreshold.
func (l *Learner) GetCoefficient(pair Pair) (Coefficient, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getCoefficient(pair)
}

func (l *Learner) getCoefficient(pair Pair) (Coefficient, bool) {
	if c, ok := l.coefficients[pair]; ok {
		return copyCoefficient(c), true
	}
	if seed, ok := l.seeds[pair]; ok {
		return Coefficient{
			Pair:       pair,
			Value:      seed,
			Confidence: ActivationThreshold,
			Seeded:     true,
		}, true
	}
	return Coefficient{}, false
}

// Coefficients returns all learned and seeded coefficients, sorted by pair
func (l *Learner) Coefficients() []Coefficient {
	l.mu.Lock()
	defer l.mu.Unlock()

	pairs := map[Pair]bool{}
	for pair := range l.coefficients {
		pairs[pair] = true
	}
	for pair := range l.seeds {
		pairs[pair] = true
	}

	var result []Coefficient
	for pair := range pairs {
		c, _ := l.getCoefficient(pair)
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Pair.String() < result[j].Pair.String()
	})
	return result
}

// ObservationCount returns the number of stored observations of a pair
func (l *Learner) ObservationCount(pair Pair) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observations[pair])
}

// RecordBaselineOvershoot starts the validation of a learned coefficient
func (l *Learner) RecordBaselineOvershoot(pair Pair, overshoot float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.coefficients[pair]
	if !ok {
		return false
	}
	if !util.IsFinite(overshoot) || overshoot < 0 {
		ui.Warning("Ignoring invalid baseline overshoot for %s: %v", pair, overshoot)
		return false
	}
	baseline := overshoot
	c.BaselineOvershoot = &baseline
	c.ValidationCycles = 0
	return true
}

// CheckValidation compares the overshoot of a completed cycle against the baseline.
// A degradation halves the coefficient and ends the validation with a rollback,
// ValidationCycles cycles without degradation end it successfully.
// A rollback discards the stored observations of the pair, the halved value is
// kept until new observations arrive.
func (l *Learner) CheckValidation(pair Pair, overshoot float64) ValidationResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.coefficients[pair]
	if !ok || c.BaselineOvershoot == nil {
		return ValidationPending
	}
	if !util.IsFinite(overshoot) {
		ui.Warning("Ignoring invalid overshoot for %s: %v", pair, overshoot)
		return ValidationPending
	}

	limit := *c.BaselineOvershoot * (1 + DegradationThreshold)
	if overshoot > limit {
		c.Value /= 2
		c.BaselineOvershoot = nil
		c.ValidationCycles = 0
		delete(l.observations, pair)
		ui.Warning("Coupling coefficient %s degraded overshoot (%.2f > %.2f), rolled back to %.4f", pair, overshoot, limit, c.Value)
		return ValidationRollback
	}

	c.ValidationCycles++
	if c.ValidationCycles >= ValidationCycles {
		c.BaselineOvershoot = nil
		c.ValidationCycles = 0
		ui.Info("Coupling coefficient %s validated", pair)
		return ValidationSuccess
	}
	return ValidationPending
}

// Feedforward calculates the feedforward term of the target zone from the heating
// rates (°C/h) of all currently heating source zones. Every contribution is scaled
// by the graduated confidence of its coefficient, the sum is capped at limit.
func (l *Learner) Feedforward(target string, sourceRates map[string]float64, gain float64, limit float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0.0
	for _, source := range util.SortedKeys(sourceRates) {
		rate := sourceRates[source]
		if source == target || !util.IsFinite(rate) || rate <= 0 {
			continue
		}
		c, ok := l.getCoefficient(Pair{Source: source, Target: target})
		if !ok {
			continue
		}
		total += c.Value * GraduatedConfidence(c) * rate * gain
	}
	if !util.IsFinite(total) || total < 0 {
		return 0
	}
	return math.Min(total, limit)
}

func copyCoefficient(c *Coefficient) Coefficient {
	result := *c
	if c.BaselineOvershoot != nil {
		baseline := *c.BaselineOvershoot
		result.BaselineOvershoot = &baseline
	}
	return result
}
