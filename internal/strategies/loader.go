package strategies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// presetFile is the top-level YAML structure, grounded on the teacher's
// config_loader.go ConfigFile shape.
type presetFile struct {
	Strategies []presetEntry `yaml:"strategies"`
}

type presetEntry struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Type       string             `yaml:"type"`
	Symbol     string             `yaml:"symbol"`
	Parameters map[string]float64 `yaml:"parameters"`
	IsActive   bool               `yaml:"is_active"`
}

// LoadPresets reads named strategy presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy presets: %w", err)
	}

	out := make([]Preset, 0, len(file.Strategies))
	for _, e := range file.Strategies {
		out = append(out, Preset{
			ID:         e.ID,
			Name:       e.Name,
			Type:       Kind(e.Type),
			Symbol:     e.Symbol,
			Parameters: e.Parameters,
			IsActive:   e.IsActive,
		})
	}
	return out, nil
}

// Build constructs the Generator a preset describes.
func Build(p Preset) (Generator, error) {
	switch p.Type {
	case KindMACross:
		return MACrossGenerator{
			FastPeriod: int(p.Parameters["fast_period"]),
			SlowPeriod: int(p.Parameters["slow_period"]),
		}, nil
	case KindRSI:
		return RSIGenerator{
			Period:              int(p.Parameters["period"]),
			OversoldThreshold:   p.Parameters["oversold"],
			OverboughtThreshold: p.Parameters["overbought"],
		}, nil
	case KindBollinger:
		return BollingerGenerator{
			Period:    int(p.Parameters["period"]),
			NumStdDev: p.Parameters["num_std_dev"],
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy preset type %q", p.Type)
	}
}
