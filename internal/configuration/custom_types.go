package configuration

import (
	"reflect"
	"strings"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/mitchellh/mapstructure"
)

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		HeatingTypeHookFunc(),
		lowerCaseHookFunc(),
	)
}

// HeatingTypeHookFunc returns a mapstructure decode hook that normalizes heating type names,
// e.g. "Floor_Hydronic" and " radiator " are accepted. Unknown names are left for validation.
func HeatingTypeHookFunc() mapstructure.DecodeHookFuncType {
	heatingType := reflect.TypeOf(heating.Type(""))

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {

		if t != heatingType {
			return data, nil
		}

		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return heating.Type(strings.ToLower(strings.TrimSpace(value))), nil
	}
}

// lowerCaseHookFunc normalizes the enum like string fields of a zone
func lowerCaseHookFunc() mapstructure.DecodeHookFuncType {
	zoneType := reflect.TypeOf(ZoneConfig{})
	functionType := reflect.TypeOf(FunctionSensorConfig{})

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {

		if t != zoneType && t != functionType {
			return data, nil
		}

		fields, ok := data.(map[string]interface{})
		if !ok {
			return data, nil
		}
		for key, value := range fields {
			switch strings.ToLower(key) {
			case "mode", "direction", "type":
				if text, ok := value.(string); ok {
					fields[key] = strings.ToLower(strings.TrimSpace(text))
				}
			}
		}
		return fields, nil
	}
}
