// Weight configuration for the composite scoring engine: defaults match
// the spec's fixed table exactly, with a YAML file layer underneath for
// deployments that want to tune them, following the teacher's
// WeightManager/WeightPreset idiom (internal/regime/weights.go) minus the
// regime-switching machinery this engine's fixed weights don't need.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights holds the six composite-scoring component weights. They must
// sum to 1.0.
type Weights struct {
	Technical   float64 `yaml:"technical"`
	Patterns    float64 `yaml:"patterns"`
	Cycle       float64 `yaml:"cycle"`
	Derivatives float64 `yaml:"derivatives"`
	FearGreed   float64 `yaml:"fear_greed"`
	Onchain     float64 `yaml:"onchain"`
}

// DefaultWeights returns the spec's fixed component weights.
func DefaultWeights() Weights {
	return Weights{
		Technical:   0.30,
		Patterns:    0.20,
		Cycle:       0.15,
		Derivatives: 0.15,
		FearGreed:   0.10,
		Onchain:     0.10,
	}
}

// Sum returns the total of all six weights.
func (w Weights) Sum() float64 {
	return w.Technical + w.Patterns + w.Cycle + w.Derivatives + w.FearGreed + w.Onchain
}

// LoadWeightsFile reads a YAML weight table from path, falling back to
// DefaultWeights for any unset field. Returns an error if the result
// doesn't sum to ~1.0.
func LoadWeightsFile(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return Weights{}, fmt.Errorf("config: read weights file: %w", err)
	}

	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("config: parse weights file: %w", err)
	}

	if sum := w.Sum(); sum < 0.99 || sum > 1.01 {
		return Weights{}, fmt.Errorf("config: weights sum to %.3f, expected 1.0", sum)
	}
	return w, nil
}
