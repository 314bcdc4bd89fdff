package capability

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Decode binds the task to out, a pointer to a request struct.
//
// Field names come from json tags so the same struct serves HTTP bodies and
// workflow inputs. Numeric strings and JSON floats are coerced to the target
// field type.
func (t Task) Decode(out any) error {
	_, err := t.DecodeUnused(out)
	return err
}

// DecodeUnused is Decode that also returns the task keys no field of out
// consumed, sorted.
func (t Task) DecodeUnused(out any) ([]string, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Metadata:         &md,
		Result:           out,
	})
	if err != nil {
		return nil, fmt.Errorf("creating task decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(t)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}
