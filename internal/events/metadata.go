package events

import (
	"encoding/json"
	"fmt"
)

// Metadata carries the interaction attributes the engine understands as
// typed fields. Anything else a producer sends is kept in Extra.
type Metadata struct {
	Step         string
	Personalized bool
	Variant      string
	Source       string
	Extra        map[string]any
}

const (
	keyStep         = "step"
	keyPersonalized = "personalized"
	keyVariant      = "variant"
	keySource       = "source"
)

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Step != "" {
		out[keyStep] = m.Step
	}
	if m.Personalized {
		out[keyPersonalized] = true
	}
	if m.Variant != "" {
		out[keyVariant] = m.Variant
	}
	if m.Source != "" {
		out[keySource] = m.Source
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any object. Known keys with an unexpected type are
// left in Extra instead of failing the whole record.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metadata{}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}

	var md Metadata
	for k, v := range raw {
		switch k {
		case keyStep:
			if s, ok := v.(string); ok {
				md.Step = s
				continue
			}
		case keyPersonalized:
			if b, ok := v.(bool); ok {
				md.Personalized = b
				continue
			}
		case keyVariant:
			if s, ok := v.(string); ok {
				md.Variant = s
				continue
			}
		case keySource:
			if s, ok := v.(string); ok {
				md.Source = s
				continue
			}
		}
		if md.Extra == nil {
			md.Extra = make(map[string]any)
		}
		md.Extra[k] = v
	}

	*m = md
	return nil
}
