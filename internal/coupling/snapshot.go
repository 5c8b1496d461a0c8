package coupling

import (
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

type observationState struct {
	SourceStart     float64   `mapstructure:"source_start"`
	SourceEnd       float64   `mapstructure:"source_end"`
	TargetStart     float64   `mapstructure:"target_start"`
	TargetEnd       float64   `mapstructure:"target_end"`
	OutdoorStart    float64   `mapstructure:"outdoor_start"`
	OutdoorEnd      float64   `mapstructure:"outdoor_end"`
	DurationSeconds float64   `mapstructure:"duration_seconds"`
	Timestamp       time.Time `mapstructure:"timestamp"`
}

type coefficientState struct {
	Value             float64   `mapstructure:"value"`
	Confidence        float64   `mapstructure:"confidence"`
	ObservationCount  int       `mapstructure:"observation_count"`
	Seeded            bool      `mapstructure:"seeded"`
	LastUpdated       time.Time `mapstructure:"last_updated"`
	BaselineOvershoot *float64  `mapstructure:"baseline_overshoot"`
	ValidationCycles  int       `mapstructure:"validation_cycles"`
}

func observationToMap(o Observation) map[string]interface{} {
	return map[string]interface{}{
		"source_start":     o.SourceStart,
		"source_end":       o.SourceEnd,
		"target_start":     o.TargetStart,
		"target_end":       o.TargetEnd,
		"outdoor_start":    o.OutdoorStart,
		"outdoor_end":      o.OutdoorEnd,
		"duration_seconds": o.Duration.Seconds(),
		"timestamp":        util.FormatTime(o.Timestamp),
	}
}

func coefficientToMap(c *Coefficient) map[string]interface{} {
	result := map[string]interface{}{
		"value":              c.Value,
		"confidence":         c.Confidence,
		"observation_count":  c.ObservationCount,
		"seeded":             c.Seeded,
		"last_updated":       util.FormatTime(c.LastUpdated),
		"baseline_overshoot": nil,
		"validation_cycles":  c.ValidationCycles,
	}
	if c.BaselineOvershoot != nil {
		result["baseline_overshoot"] = *c.BaselineOvershoot
	}
	return result
}

// ToMap serializes all observations and coefficients. Pending observations
// and seeds are not part of the snapshot.
func (l *Learner) ToMap() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	observations := map[string]interface{}{}
	for pair, list := range l.observations {
		var entries []interface{}
		for _, o := range list {
			entries = append(entries, observationToMap(o))
		}
		observations[pair.String()] = entries
	}

	coefficients := map[string]interface{}{}
	for pair, c := range l.coefficients {
		coefficients[pair.String()] = coefficientToMap(c)
	}

	return map[string]interface{}{
		"observations": observations,
		"coefficients": coefficients,
	}
}

// FromMap restores a snapshot created by ToMap. Malformed records are skipped
// with a warning, everything else is restored.
func (l *Learner) FromMap(data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.observations = map[Pair][]Observation{}
	l.coefficients = map[Pair]*Coefficient{}

	if observations, ok := data["observations"].(map[string]interface{}); ok {
		for key, value := range observations {
			pair, err := ParsePair(key)
			if err != nil {
				ui.Warning("Skipping coupling observations: %v", err)
				continue
			}
			entries, ok := value.([]interface{})
			if !ok {
				ui.Warning("Skipping malformed coupling observations of %s", key)
				continue
			}
			for _, entry := range entries {
				o, err := decodeObservation(pair, entry)
				if err != nil {
					ui.Warning("Skipping malformed coupling observation of %s: %v", key, err)
					continue
				}
				l.addObservation(o)
			}
		}
	}

	if coefficients, ok := data["coefficients"].(map[string]interface{}); ok {
		for key, value := range coefficients {
			pair, err := ParsePair(key)
			if err != nil {
				ui.Warning("Skipping coupling coefficient: %v", err)
				continue
			}
			c, err := decodeCoefficient(pair, value)
			if err != nil {
				ui.Warning("Skipping malformed coupling coefficient %s: %v", key, err)
				continue
			}
			l.coefficients[pair] = c
		}
	}
}

func decodeObservation(pair Pair, input interface{}) (Observation, error) {
	var state observationState
	if err := util.DecodeMap(input, &state); err != nil {
		return Observation{}, err
	}
	o := Observation{
		Pair:         pair,
		SourceStart:  state.SourceStart,
		SourceEnd:    state.SourceEnd,
		TargetStart:  state.TargetStart,
		TargetEnd:    state.TargetEnd,
		OutdoorStart: state.OutdoorStart,
		OutdoorEnd:   state.OutdoorEnd,
		Duration:     time.Duration(state.DurationSeconds * float64(time.Second)),
		Timestamp:    state.Timestamp,
	}
	if !o.isFinite() || !util.IsFinite(state.DurationSeconds) || state.DurationSeconds <= 0 {
		return Observation{}, errInvalidRecord
	}
	return o, nil
}

func decodeCoefficient(pair Pair, input interface{}) (*Coefficient, error) {
	var state coefficientState
	if err := util.DecodeMap(input, &state); err != nil {
		return nil, err
	}
	if !util.AllFinite(state.Value, state.Confidence) || state.Value < 0 || state.ObservationCount < 0 {
		return nil, errInvalidRecord
	}
	c := &Coefficient{
		Pair:             pair,
		Value:            util.Coerce(state.Value, 0, MaxCoefficient),
		Confidence:       util.Coerce(state.Confidence, 0, ConfidenceMax),
		ObservationCount: state.ObservationCount,
		Seeded:           state.Seeded,
		LastUpdated:      state.LastUpdated,
		ValidationCycles: state.ValidationCycles,
	}
	if state.BaselineOvershoot != nil && util.IsFinite(*state.BaselineOvershoot) {
		baseline := *state.BaselineOvershoot
		c.BaselineOvershoot = &baseline
	}
	return c, nil
}
