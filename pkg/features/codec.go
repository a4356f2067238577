package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrPlaceholder is returned by [Decode] for the `{"placeholder": true}`
// marker that catalog imports store for words whose features have not been
// computed yet.
var ErrPlaceholder = errors.New("features: placeholder bundle")

// Decode parses a JSON-encoded Bundle and validates it. Formants may use
// either the nested form ({"f1": {"mean": ...}}) or the flat legacy keys
// (f1_mean, f1_std, f1_values).
func Decode(data []byte) (*Bundle, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrPlaceholder
	}

	var marker struct {
		Placeholder bool `json:"placeholder"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("features: decode: %w", err)
	}
	if marker.Placeholder {
		return nil, ErrPlaceholder
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("features: decode: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Encode validates b and returns its JSON encoding. Empty sequences are
// written as [] rather than null.
func Encode(b *Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	out := b.Clone()
	for _, v := range []*[]float64{
		&out.Pitch.Values,
		&out.Intensity.Values,
		&out.Formants.F1.Values,
		&out.Formants.F2.Values,
		&out.Formants.F3.Values,
	} {
		if *v == nil {
			*v = []float64{}
		}
	}
	return json.Marshal(out)
}

// formantsWire accepts both the nested and the flat formant layouts.
type formantsWire struct {
	F1 *Formant `json:"f1" yaml:"f1"`
	F2 *Formant `json:"f2" yaml:"f2"`
	F3 *Formant `json:"f3" yaml:"f3"`

	F1Mean   float64   `json:"f1_mean" yaml:"f1_mean"`
	F1Std    float64   `json:"f1_std" yaml:"f1_std"`
	F1Values []float64 `json:"f1_values" yaml:"f1_values"`
	F2Mean   float64   `json:"f2_mean" yaml:"f2_mean"`
	F2Std    float64   `json:"f2_std" yaml:"f2_std"`
	F2Values []float64 `json:"f2_values" yaml:"f2_values"`
	F3Mean   float64   `json:"f3_mean" yaml:"f3_mean"`
	F3Std    float64   `json:"f3_std" yaml:"f3_std"`
	F3Values []float64 `json:"f3_values" yaml:"f3_values"`
}

func (w formantsWire) resolve() Formants {
	pick := func(nested *Formant, mean, std float64, values []float64) Formant {
		if nested != nil {
			return *nested
		}
		return Formant{Mean: mean, Std: std, Values: values}
	}
	return Formants{
		F1: pick(w.F1, w.F1Mean, w.F1Std, w.F1Values),
		F2: pick(w.F2, w.F2Mean, w.F2Std, w.F2Values),
		F3: pick(w.F3, w.F3Mean, w.F3Std, w.F3Values),
	}
}

// UnmarshalJSON implements [json.Unmarshaler].
func (f *Formants) UnmarshalJSON(data []byte) error {
	var w formantsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = w.resolve()
	return nil
}

// UnmarshalYAML implements [yaml.Unmarshaler]. Unknown keys are rejected.
func (f *Formants) UnmarshalYAML(value *yaml.Node) error {
	var w formantsWire
	if err := decodeYAMLStrict(value, &w); err != nil {
		return err
	}
	*f = w.resolve()
	return nil
}

// DecodeYAML decodes a bundle from a YAML node, rejecting unknown keys at
// every level. The result is not validated.
func DecodeYAML(n *yaml.Node) (*Bundle, error) {
	var b Bundle
	if err := decodeYAMLStrict(n, &b); err != nil {
		return nil, fmt.Errorf("features: decode: %w", err)
	}
	return &b, nil
}

// decodeYAMLStrict decodes n into v with KnownFields enabled. Node.Decode
// does not inherit the setting from the decoder that produced n, so the node
// is re-encoded and decoded afresh.
func decodeYAMLStrict(n *yaml.Node, v any) error {
	raw, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(v)
}
