package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration decodes a JSON timeout written either as a duration string
// ("30s", "2m") or as integer nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var parsed time.Duration
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", x, err)
		}
		parsed = p
	case float64:
		parsed = time.Duration(x)
	default:
		return fmt.Errorf("invalid timeout %s", data)
	}
	if parsed < 0 {
		return fmt.Errorf("timeout cannot be negative: %s", data)
	}
	*d = jsonDuration(parsed)
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// decodeStrict unmarshals data into out rejecting unknown fields, so the
// strictness of the outer decoder carries into custom unmarshalers.
func decodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

type (
	plainStep       Step
	plainDefinition Definition
)

func (s *Step) UnmarshalJSON(data []byte) error {
	aux := struct {
		*plainStep
		Timeout jsonDuration `json:"timeout,omitempty"`
	}{plainStep: (*plainStep)(s)}
	if err := decodeStrict(data, &aux); err != nil {
		return err
	}
	s.Timeout = time.Duration(aux.Timeout)
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	p := plainStep(s)
	return json.Marshal(struct {
		*plainStep
		Timeout jsonDuration `json:"timeout,omitempty"`
	}{plainStep: &p, Timeout: jsonDuration(s.Timeout)})
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	aux := struct {
		*plainDefinition
		Timeout jsonDuration `json:"timeout,omitempty"`
	}{plainDefinition: (*plainDefinition)(d)}
	if err := decodeStrict(data, &aux); err != nil {
		return err
	}
	d.Timeout = time.Duration(aux.Timeout)
	return nil
}

func (d Definition) MarshalJSON() ([]byte, error) {
	p := plainDefinition(d)
	return json.Marshal(struct {
		*plainDefinition
		Timeout jsonDuration `json:"timeout,omitempty"`
	}{plainDefinition: &p, Timeout: jsonDuration(d.Timeout)})
}
