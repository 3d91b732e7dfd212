package adapter

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	m "github.com/hwsec-lab/trojanforge/internal/model"
)

// LinearModel is a trained scoring model loaded from a YAML weights file.
// It maps a net's feature vector to a suitability score through a logistic
// over a weighted sum, and satisfies the domain's ScoringModel boundary as
// a pure function with no side effects.
//
// Weight keys match the feature table field names: fan_in, fan_out,
// logic_depth, cc0, cc1, co, testability_score.
type LinearModel struct {
	ModelName string             `yaml:"name"`
	Bias      float64            `yaml:"bias"`
	Weights   map[string]float64 `yaml:"weights"`
}

// LoadLinearModel reads and validates a model weights file.
func LoadLinearModel(path m.Path) (*LinearModel, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var lm LinearModel
	if err := yaml.Unmarshal(data, &lm); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(lm.Weights) == 0 {
		return nil, fmt.Errorf("model %s: no weights", path)
	}
	if lm.ModelName == "" {
		lm.ModelName = string(path)
	}
	return &lm, nil
}

// Name implements the scoring model boundary.
func (lm *LinearModel) Name() string { return lm.ModelName }

// ScoreNets implements the scoring model boundary.
func (lm *LinearModel) ScoreNets(table *m.FeatureTable) (map[string]float64, error) {
	scores := make(map[string]float64, len(table.Nets))
	for _, rec := range table.Nets {
		x := lm.Bias
		for key, w := range lm.Weights {
			x += w * featureValue(rec, key)
		}
		scores[rec.NetName] = 1 / (1 + math.Exp(-x))
	}
	return scores, nil
}

func featureValue(rec m.FeatureRecord, key string) float64 {
	switch key {
	case "fan_in":
		return float64(rec.FanIn)
	case "fan_out":
		return float64(rec.FanOut)
	case "logic_depth":
		return float64(rec.LogicDepth)
	case "cc0":
		return rec.CC0
	case "cc1":
		return rec.CC1
	case "co":
		return rec.CO
	case "testability_score":
		return rec.TestabilityScore
	default:
		return 0
	}
}
