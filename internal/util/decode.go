package util

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeMap decodes a snapshot map, as created by the various ToMap functions,
// into the given struct pointer. Timestamps are expected as RFC3339 strings.
func DecodeMap(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// FormatTime formats a timestamp for use in a snapshot map
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
