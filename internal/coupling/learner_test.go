package coupling

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	living  = "living"
	kitchen = "kitchen"
	bedroom = "bedroom"
	office  = "office"

	livingToKitchen = Pair{Source: living, Target: kitchen}
	observationTime = time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
)

// createObservation creates a valid one hour observation with the given transfer rate
func createObservation(pair Pair, rate float64) Observation {
	return Observation{
		Pair:         pair,
		SourceStart:  19,
		SourceEnd:    20,
		TargetStart:  18,
		TargetEnd:    18 + rate,
		OutdoorStart: 5,
		OutdoorEnd:   4,
		Duration:     time.Hour,
		Timestamp:    observationTime,
	}
}

func TestParsePair(t *testing.T) {
	// WHEN
	pair, err := ParsePair("living->kitchen")

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, livingToKitchen, pair)
	assert.Equal(t, "living->kitchen", pair.String())

	for _, invalid := range []string{"", "living", "living->", "->kitchen", "a->b->c", "living->living"} {
		_, err := ParsePair(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestShouldRecord(t *testing.T) {
	valid := createObservation(livingToKitchen, 0.2)

	tests := []struct {
		name     string
		modify   func(o *Observation)
		expected bool
	}{
		{"valid", func(o *Observation) {}, true},
		{"too short", func(o *Observation) { o.Duration = 14 * time.Minute }, false},
		{"minimum duration", func(o *Observation) { o.Duration = 15 * time.Minute }, true},
		{"small source rise", func(o *Observation) { o.SourceEnd = 19.2 }, false},
		{"target warmer than source", func(o *Observation) { o.TargetStart = 19.5; o.TargetEnd = 19.7 }, false},
		{"target equal to source", func(o *Observation) { o.TargetStart = 19; o.TargetEnd = 19.2 }, false},
		{"outdoor swing", func(o *Observation) { o.OutdoorEnd = 8.5 }, false},
		{"target cooled down", func(o *Observation) { o.TargetEnd = 17.9 }, false},
		{"target unchanged", func(o *Observation) { o.TargetEnd = 18 }, true},
		{"NaN", func(o *Observation) { o.TargetEnd = math.NaN() }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN
			o := valid
			tt.modify(&o)

			// WHEN
			result, reason := ShouldRecord(o)

			// THEN
			assert.Equal(t, tt.expected, result, reason)
		})
	}
}

func TestObservation_Rate(t *testing.T) {
	// GIVEN
	o := createObservation(livingToKitchen, 0.3)
	o.Duration = 30 * time.Minute

	// WHEN
	rate, ok := o.Rate()

	// THEN
	assert.True(t, ok)
	assert.InDelta(t, 0.6, rate, 1e-9)
}

func TestStartEndObservation(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	temps := map[string]float64{living: 19, kitchen: 18, bedroom: 17, office: 18.5}
	learner.StartObservation(living, temps, 5, observationTime)

	// WHEN
	endTemps := map[string]float64{living: 20.5, kitchen: 18.4, bedroom: 17.1, office: 18.6}
	observations := learner.EndObservation(living, endTemps, 4, []string{office, kitchen, living}, observationTime.Add(time.Hour))

	// THEN
	require.Len(t, observations, 2)
	assert.Equal(t, Pair{Source: living, Target: kitchen}, observations[0].Pair)
	assert.Equal(t, Pair{Source: living, Target: office}, observations[1].Pair)
	assert.Equal(t, 19.0, observations[0].SourceStart)
	assert.Equal(t, 20.5, observations[0].SourceEnd)
	assert.Equal(t, 18.0, observations[0].TargetStart)
	assert.Equal(t, 18.4, observations[0].TargetEnd)
	assert.Equal(t, 5.0, observations[0].OutdoorStart)
	assert.Equal(t, 4.0, observations[0].OutdoorEnd)
	assert.Equal(t, time.Hour, observations[0].Duration)
	assert.False(t, learner.IsObserving(living))
}

func TestStartObservation_NoOpIfPending(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.StartObservation(living, map[string]float64{living: 19, kitchen: 18}, 5, observationTime)

	// WHEN
	learner.StartObservation(living, map[string]float64{living: 25, kitchen: 25}, 5, observationTime.Add(30*time.Minute))
	observations := learner.EndObservation(living, map[string]float64{living: 20, kitchen: 18.2}, 5, []string{kitchen}, observationTime.Add(time.Hour))

	// THEN
	require.Len(t, observations, 1)
	assert.Equal(t, 19.0, observations[0].SourceStart)
	assert.Equal(t, time.Hour, observations[0].Duration)
}

func TestEndObservation_ExcludesZonesThatHeated(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	temps := map[string]float64{living: 19, kitchen: 18, bedroom: 17}
	learner.StartObservation(living, temps, 5, observationTime)
	learner.StartObservation(kitchen, temps, 5, observationTime.Add(10*time.Minute))
	learner.EndObservation(kitchen, temps, 5, []string{living, bedroom}, observationTime.Add(20*time.Minute))

	// WHEN
	observations := learner.EndObservation(living, map[string]float64{living: 20, kitchen: 19, bedroom: 17.2}, 5, []string{kitchen, bedroom}, observationTime.Add(time.Hour))

	// THEN
	require.Len(t, observations, 1)
	assert.Equal(t, bedroom, observations[0].Target)
}

func TestEndObservation_ExcludesZonesAlreadyHeatingAtStart(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	temps := map[string]float64{living: 19, kitchen: 18}
	learner.StartObservation(kitchen, temps, 5, observationTime)
	learner.StartObservation(living, temps, 5, observationTime)

	// WHEN
	observations := learner.EndObservation(living, map[string]float64{living: 20, kitchen: 19}, 5, []string{kitchen}, observationTime.Add(time.Hour))

	// THEN
	assert.Empty(t, observations)
}

func TestEndObservation_WithoutStart(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)

	// WHEN
	observations := learner.EndObservation(living, map[string]float64{living: 20}, 5, []string{kitchen}, observationTime)

	// THEN
	assert.Nil(t, observations)
}

func TestGetCoefficient_Unknown(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)

	// WHEN
	_, ok := learner.GetCoefficient(livingToKitchen)

	// THEN
	assert.False(t, ok)
}

func TestGetCoefficient_SeedOnly(t *testing.T) {
	// GIVEN
	learner := NewLearner(map[Pair]float64{livingToKitchen: SeedOpenPlan})

	// WHEN
	c, ok := learner.GetCoefficient(livingToKitchen)

	// THEN
	assert.True(t, ok)
	assert.Equal(t, SeedOpenPlan, c.Value)
	assert.Equal(t, ActivationThreshold, c.Confidence)
	assert.Equal(t, 0, c.ObservationCount)
	assert.True(t, c.Seeded)
}

func TestNewLearner_IgnoresInvalidSeeds(t *testing.T) {
	// GIVEN
	seeds := map[Pair]float64{
		livingToKitchen:                   math.NaN(),
		{Source: living, Target: living}:  0.1,
		{Source: kitchen, Target: living}: -0.1,
		{Source: bedroom, Target: office}: 0.9,
	}

	// WHEN
	learner := NewLearner(seeds)

	// THEN
	coefficients := learner.Coefficients()
	require.Len(t, coefficients, 1)
	assert.Equal(t, MaxCoefficient, coefficients[0].Value)
}

func TestRecordObservation_BlendsWithSeed(t *testing.T) {
	// GIVEN
	learner := NewLearner(map[Pair]float64{livingToKitchen: 0.1})

	// WHEN
	recorded := learner.RecordObservation(createObservation(livingToKitchen, 0.3))

	// THEN
	assert.True(t, recorded)
	c, ok := learner.GetCoefficient(livingToKitchen)
	require.True(t, ok)
	assert.InDelta(t, (0.1*SeedWeight+0.3)/(SeedWeight+1), c.Value, 1e-9)
	assert.InDelta(t, 1/(1+ConfidenceK), c.Confidence, 1e-9)
	assert.Equal(t, 1, c.ObservationCount)
	assert.True(t, c.Seeded)
}

func TestRecordObservation_PlainMeanWithoutSeed(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)

	// WHEN
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))

	// THEN
	c, ok := learner.GetCoefficient(livingToKitchen)
	require.True(t, ok)
	assert.InDelta(t, 0.2, c.Value, 1e-9)
	assert.InDelta(t, 2/(2+ConfidenceK), c.Confidence, 1e-9)
	assert.False(t, c.Seeded)
}

func TestRecordObservation_RejectsInvalid(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	o := createObservation(livingToKitchen, 0.2)
	o.Duration = time.Minute

	// WHEN
	recorded := learner.RecordObservation(o)

	// THEN
	assert.False(t, recorded)
	assert.Equal(t, 0, learner.ObservationCount(livingToKitchen))
}

func TestRecordObservation_BoundedHistory(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)

	// WHEN
	for i := 0; i < MaxObservationsPerPair+10; i++ {
		learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	}

	// THEN
	assert.Equal(t, MaxObservationsPerPair, learner.ObservationCount(livingToKitchen))
	c, _ := learner.GetCoefficient(livingToKitchen)
	assert.Equal(t, MaxObservationsPerPair, c.ObservationCount)
}

func TestCoefficient_ConvergesToSampleMean(t *testing.T) {
	// GIVEN
	seed := 0.05
	learner := NewLearner(map[Pair]float64{livingToKitchen: seed})
	previousDistance := math.Inf(1)
	previousConfidence := 0.0

	for i := 0; i < MaxObservationsPerPair; i++ {
		// WHEN
		learner.RecordObservation(createObservation(livingToKitchen, 0.25))

		// THEN
		c, _ := learner.GetCoefficient(livingToKitchen)
		distance := math.Abs(c.Value - 0.25)
		assert.Less(t, distance, previousDistance)
		assert.Greater(t, c.Confidence, previousConfidence)
		assert.LessOrEqual(t, c.Confidence, ConfidenceMax)
		previousDistance = distance
		previousConfidence = c.Confidence
	}
	assert.Less(t, previousDistance, 0.03)
}

func TestCalculate_ConfidenceReachesMaximum(t *testing.T) {
	// GIVEN
	var observations []Observation
	for i := 0; i < 500; i++ {
		observations = append(observations, createObservation(livingToKitchen, 0.25))
	}
	seed := 0.05

	// WHEN
	value, confidence, count, ok := calculate(observations, &seed)

	// THEN
	assert.True(t, ok)
	assert.Equal(t, 500, count)
	assert.InDelta(t, 0.25, value, 0.01)
	assert.Equal(t, ConfidenceMax, confidence)
}

func TestCalculate_VariationPenalty(t *testing.T) {
	// GIVEN
	observations := []Observation{
		createObservation(livingToKitchen, 0.1),
		createObservation(livingToKitchen, 0.3),
	}

	// WHEN
	value, confidence, _, ok := calculate(observations, nil)

	// THEN
	assert.True(t, ok)
	assert.InDelta(t, 0.2, value, 1e-9)
	assert.InDelta(t, 2.0/7.0*(1-MaxVariationPenalty), confidence, 1e-9)
}

func TestCalculate_DropsNonPositiveRates(t *testing.T) {
	// GIVEN
	observations := []Observation{
		createObservation(livingToKitchen, 0),
		createObservation(livingToKitchen, 0.2),
	}

	// WHEN
	value, _, count, ok := calculate(observations, nil)

	// THEN
	assert.True(t, ok)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 0.2, value, 1e-9)

	// WHEN
	_, _, _, ok = calculate(observations[:1], nil)

	// THEN
	assert.False(t, ok)
}

func TestCalculate_CappedAtMaximum(t *testing.T) {
	// GIVEN
	observations := []Observation{createObservation(livingToKitchen, 2.0)}

	// WHEN
	value, _, _, _ := calculate(observations, nil)

	// THEN
	assert.Equal(t, MaxCoefficient, value)
}

func TestGraduatedConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   float64
	}{
		{0.0, 0},
		{0.29, 0},
		{ActivationThreshold, 0},
		{0.55, 0.5},
		{FullConfidenceThreshold, 1},
		{0.95, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.confidence), func(t *testing.T) {
			// WHEN
			result := GraduatedConfidence(Coefficient{Confidence: tt.confidence})

			// THEN
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestValidation_Rollback(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	require.True(t, learner.RecordBaselineOvershoot(livingToKitchen, 0.5))

	// WHEN
	result := learner.CheckValidation(livingToKitchen, 0.66)

	// THEN
	assert.Equal(t, ValidationRollback, result)
	c, _ := learner.GetCoefficient(livingToKitchen)
	assert.InDelta(t, 0.1, c.Value, 1e-9)
	assert.False(t, c.IsValidating())
	assert.Equal(t, ValidationPending, learner.CheckValidation(livingToKitchen, 5))
}

func TestValidation_RollbackSurvivesNextObservation(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	require.True(t, learner.RecordBaselineOvershoot(livingToKitchen, 0.5))
	require.Equal(t, ValidationRollback, learner.CheckValidation(livingToKitchen, 0.8))

	// THEN
	assert.Equal(t, 0, learner.ObservationCount(livingToKitchen))
	c, ok := learner.CalculateCoefficient(livingToKitchen)
	require.True(t, ok)
	assert.InDelta(t, 0.1, c.Value, 1e-9)

	// WHEN
	learner.RecordObservation(createObservation(livingToKitchen, 0.12))

	// THEN
	c, _ = learner.GetCoefficient(livingToKitchen)
	assert.InDelta(t, 0.12, c.Value, 1e-9)
	assert.Equal(t, 1, c.ObservationCount)
}

func TestValidation_SuccessAfterCycles(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	require.True(t, learner.RecordBaselineOvershoot(livingToKitchen, 0.5))

	// WHEN / THEN
	for i := 1; i < ValidationCycles; i++ {
		assert.Equal(t, ValidationPending, learner.CheckValidation(livingToKitchen, 0.6))
		c, _ := learner.GetCoefficient(livingToKitchen)
		assert.Equal(t, i, c.ValidationCycles)
	}
	assert.Equal(t, ValidationSuccess, learner.CheckValidation(livingToKitchen, 0.6))

	c, _ := learner.GetCoefficient(livingToKitchen)
	assert.False(t, c.IsValidating())
	assert.InDelta(t, 0.2, c.Value, 1e-9)
}

func TestValidation_RequiresLearnedCoefficient(t *testing.T) {
	// GIVEN
	learner := NewLearner(map[Pair]float64{livingToKitchen: 0.1})

	// WHEN
	armed := learner.RecordBaselineOvershoot(livingToKitchen, 0.5)

	// THEN
	assert.False(t, armed)
	assert.Equal(t, ValidationPending, learner.CheckValidation(livingToKitchen, 2))
}

func TestFeedforward(t *testing.T) {
	// GIVEN
	learner := NewLearner(map[Pair]float64{
		{Source: bedroom, Target: kitchen}: 0.1,
	})
	for i := 0; i < 20; i++ {
		learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	}
	c, _ := learner.GetCoefficient(livingToKitchen)
	require.Equal(t, 1.0, GraduatedConfidence(c))

	// WHEN
	result := learner.Feedforward(kitchen, map[string]float64{
		living:  2.0,
		bedroom: 1.0,
		kitchen: 3.0,
		office:  1.0,
	}, 10, 100)

	// THEN
	assert.InDelta(t, 0.2*2.0*10, result, 1e-9)

	// WHEN
	capped := learner.Feedforward(kitchen, map[string]float64{living: 2.0}, 10, 1.5)

	// THEN
	assert.Equal(t, 1.5, capped)
}

func TestTopologySeeds(t *testing.T) {
	// GIVEN
	topology := Topology{
		Floors: map[string]int{
			living:  0,
			kitchen: 0,
			bedroom: 1,
			office:  1,
		},
		OpenGroups: [][]string{{living, kitchen}},
		Stairwell:  []string{living, bedroom},
	}

	// WHEN
	seeds := topology.Seeds()

	// THEN
	assert.Equal(t, map[Pair]float64{
		{Source: living, Target: kitchen}:  SeedOpenPlan,
		{Source: kitchen, Target: living}:  SeedOpenPlan,
		{Source: living, Target: bedroom}:  SeedStairwellUp,
		{Source: bedroom, Target: living}:  SeedStairwellDown,
		{Source: living, Target: office}:   SeedFloorAbove,
		{Source: kitchen, Target: bedroom}: SeedFloorAbove,
		{Source: kitchen, Target: office}:  SeedFloorAbove,
	}, seeds)
}

func TestToMapFromMap(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	learner.RecordObservation(createObservation(livingToKitchen, 0.25))
	learner.RecordObservation(createObservation(Pair{Source: kitchen, Target: living}, 0.1))
	learner.RecordBaselineOvershoot(livingToKitchen, 0.4)
	learner.CheckValidation(livingToKitchen, 0.4)

	data, err := json.Marshal(learner.ToMap())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := NewLearner(nil)

	// WHEN
	restored.FromMap(decoded)

	// THEN
	assert.Equal(t, learner.Coefficients(), normalizeTimes(restored.Coefficients()))
	assert.Equal(t, 2, restored.ObservationCount(livingToKitchen))
	assert.Equal(t, 1, restored.ObservationCount(Pair{Source: kitchen, Target: living}))
}

func TestFromMap_SkipsMalformedRecords(t *testing.T) {
	// GIVEN
	learner := NewLearner(nil)
	learner.RecordObservation(createObservation(livingToKitchen, 0.2))
	data := learner.ToMap()

	observations := data["observations"].(map[string]interface{})
	entries := observations[livingToKitchen.String()].([]interface{})
	observations[livingToKitchen.String()] = append(entries,
		map[string]interface{}{"source_start": "garbage"},
		map[string]interface{}{"duration_seconds": -5},
		"not a map",
	)
	observations["invalid pair"] = []interface{}{}
	coefficients := data["coefficients"].(map[string]interface{})
	coefficients["kitchen->living"] = map[string]interface{}{"value": "garbage"}
	coefficients["bedroom->office"] = map[string]interface{}{"value": math.NaN()}
	coefficients["nonsense"] = map[string]interface{}{"value": 0.1}

	restored := NewLearner(nil)

	// WHEN
	restored.FromMap(data)

	// THEN
	assert.Equal(t, 1, restored.ObservationCount(livingToKitchen))
	coefficientsAfter := restored.Coefficients()
	require.Len(t, coefficientsAfter, 1)
	assert.Equal(t, livingToKitchen, coefficientsAfter[0].Pair)
}

func TestLearner_ConcurrentAccess(t *testing.T) {
	// GIVEN
	learner := NewLearner(Topology{OpenGroups: [][]string{{living, kitchen, bedroom, office}}}.Seeds())
	zones := []string{living, kitchen, bedroom, office}
	var wg sync.WaitGroup

	// WHEN
	for _, zone := range zones {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				now := observationTime.Add(time.Duration(j) * time.Hour)
				temps := map[string]float64{living: 19, kitchen: 18, bedroom: 17, office: 16}
				learner.StartObservation(source, temps, 5, now)
				end := map[string]float64{living: 20, kitchen: 18.2, bedroom: 17.2, office: 16.2}
				end[source] = temps[source] + 1
				for _, o := range learner.EndObservation(source, end, 5, zones, now.Add(time.Hour)) {
					learner.RecordObservation(o)
				}
				learner.Feedforward(source, map[string]float64{living: 1}, 1, 10)
				learner.ToMap()
			}
		}(zone)
	}
	wg.Wait()

	// THEN
	assert.NotEmpty(t, learner.Coefficients())
}

// normalizeTimes converts all timestamps to UTC without monotonic clock readings
func normalizeTimes(coefficients []Coefficient) []Coefficient {
	for i := range coefficients {
		coefficients[i].LastUpdated = coefficients[i].LastUpdated.UTC()
	}
	return coefficients
}
