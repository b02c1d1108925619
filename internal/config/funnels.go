package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

var ErrInvalidFunnel = errors.New("invalid funnel definition")

type funnelsFile struct {
	Funnels []engine.FunnelDefinition `yaml:"funnels"`
}

// LoadFunnels reads named funnel definitions from a YAML file:
//
//	funnels:
//	  - id: checkout
//	    steps: [cart, shipping, payment]
func LoadFunnels(path string) ([]engine.FunnelDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read funnels file: %w", err)
	}
	return ParseFunnels(data)
}

func ParseFunnels(data []byte) ([]engine.FunnelDefinition, error) {
	var f funnelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse funnels: %w", err)
	}

	seen := make(map[string]bool, len(f.Funnels))
	for i, def := range f.Funnels {
		if def.ID == "" {
			return nil, fmt.Errorf("%w: funnel %d has no id", ErrInvalidFunnel, i)
		}
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("%w: funnel %q has no steps", ErrInvalidFunnel, def.ID)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: duplicate funnel id %q", ErrInvalidFunnel, def.ID)
		}
		seen[def.ID] = true
	}

	return f.Funnels, nil
}
