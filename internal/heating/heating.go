package heating

import (
	"fmt"
	"strings"
	"time"

	"github.com/markusressel/heat2go/internal/ui"
)

// Type identifies the kind of heat emitter of a zone. It selects the
// threshold tables of the learning components and the decay behavior
// of the controller.
type Type string

const (
	FloorHydronic Type = "floor_hydronic"
	Radiator      Type = "radiator"
	Convector     Type = "convector"
	ForcedAir     Type = "forced_air"

	// DefaultType is used whenever an unknown heating type is encountered
	DefaultType = Radiator
)

var Types = []Type{FloorHydronic, Radiator, Convector, ForcedAir}

// Profile holds all heating type specific constants
type Profile struct {
	// rise time (hours) above which a cycle is considered slow
	SlowRiseHours float64
	// settling time (hours) above which a cycle is considered slow to settle
	SlowSettlingHours float64

	// continuous time below target that warrants a Ki increase
	UndershootTime time.Duration
	// accumulated thermal debt (°C·h) that warrants a Ki increase
	UndershootDebt float64
	// multiplier applied to Ki per undershoot adjustment
	UndershootKiStep float64
	// minimum time between two undershoot adjustments
	UndershootCooldown time.Duration

	// exponent of the progressive safety-net integral decay
	SafetyNetExponent float64

	// margin applied to heating time estimates
	ColdSoakMargin float64
}

var profiles = map[Type]Profile{
	FloorHydronic: {
		SlowRiseHours:      3.0,
		SlowSettlingHours:  6.0,
		UndershootTime:     3 * time.Hour,
		UndershootDebt:     2.0,
		UndershootKiStep:   1.15,
		UndershootCooldown: 24 * time.Hour,
		SafetyNetExponent:  2.0,
		ColdSoakMargin:     1.5,
	},
	Radiator: {
		SlowRiseHours:      1.5,
		SlowSettlingHours:  3.0,
		UndershootTime:     2 * time.Hour,
		UndershootDebt:     1.5,
		UndershootKiStep:   1.20,
		UndershootCooldown: 8 * time.Hour,
		SafetyNetExponent:  1.5,
		ColdSoakMargin:     1.3,
	},
	Convector: {
		SlowRiseHours:      1.0,
		SlowSettlingHours:  2.0,
		UndershootTime:     90 * time.Minute,
		UndershootDebt:     1.0,
		UndershootKiStep:   1.25,
		UndershootCooldown: 4 * time.Hour,
		SafetyNetExponent:  1.0,
		ColdSoakMargin:     1.2,
	},
	ForcedAir: {
		SlowRiseHours:      0.5,
		SlowSettlingHours:  1.0,
		UndershootTime:     1 * time.Hour,
		UndershootDebt:     0.75,
		UndershootKiStep:   1.30,
		UndershootCooldown: 2 * time.Hour,
		SafetyNetExponent:  0.5,
		ColdSoakMargin:     1.1,
	},
}

// ParseType parses the given string into a heating Type
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	if !t.IsValid() {
		return DefaultType, fmt.Errorf("unknown heating type '%s', use one of: %s", value, typeNames())
	}
	return t, nil
}

func (t Type) IsValid() bool {
	_, ok := profiles[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// GetProfile returns the Profile of the given heating type.
// Unknown types fall back to the profile of DefaultType.
func GetProfile(t Type) Profile {
	profile, ok := profiles[t]
	if !ok {
		ui.Warning("Unknown heating type '%s', falling back to '%s'", t, DefaultType)
		return profiles[DefaultType]
	}
	return profile
}

func typeNames() string {
	names := make([]string, 0, len(Types))
	for _, t := range Types {
		names = append(names, string(t))
	}
	return strings.Join(names, " | ")
}
