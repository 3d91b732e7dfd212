package domain

import (
	"fmt"
	"sort"

	"github.com/hwsec-lab/trojanforge/internal/model"
)

// ScoringModel is the boundary to the scoring collaborator: a pure
// function from the feature table to a per-net score. A trained model
// supplied from disk and the local heuristic both implement it.
type ScoringModel interface {
	// Name identifies the model in logs and summaries.
	Name() string
	// ScoreNets returns a vulnerability score for every candidate net in
	// the table. Missing nets default to score 0.
	ScoreNets(table *model.FeatureTable) (map[string]float64, error)
}

// Scorer turns a feature table into a deterministic vulnerability ranking.
type Scorer struct {
	model ScoringModel
}

// NewScorer creates a Scorer delegating to the given model.
func NewScorer(m ScoringModel) *Scorer {
	return &Scorer{model: m}
}

// Rank scores all internal nets and returns the top K by vulnerability
// score descending, ties broken by net name ascending. K <= 0 means all
// candidates. K greater than the candidate count is an
// InsufficientNetsError.
func (s *Scorer) Rank(table *model.FeatureTable, topK int) (*model.Ranking, error) {
	if s.model == nil {
		return nil, model.ErrScoringUnavailable
	}
	scores, err := s.model.ScoreNets(table)
	if err != nil {
		return nil, fmt.Errorf("scoring model %s: %w", s.model.Name(), err)
	}

	var ranked []model.RankedNet
	for _, rec := range table.Nets {
		// Boundary nets are not insertion candidates.
		if rec.IsInput || rec.IsOutput {
			continue
		}
		ranked = append(ranked, model.RankedNet{Name: rec.NetName, Score: scores[rec.NetName]})
	}

	if topK > len(ranked) {
		return nil, &model.InsufficientNetsError{Requested: topK, Available: len(ranked)}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})

	if topK > 0 {
		ranked = ranked[:topK]
	}
	return &model.Ranking{NumNets: len(ranked), TargetNets: ranked}, nil
}

// HeuristicModel is the local fallback scorer used when no trained model
// is supplied. The formula favors the classic insertion sites: hard to
// test, rarely fanned out, fed by little logic, deep in the design.
//
//	score = 0.45*testabilityNorm + 0.25*(1-fanOutNorm)
//	      + 0.20*(1-fanInNorm) + 0.10*depthNorm
//
// where each *Norm is the value scaled by the table-wide maximum.
type HeuristicModel struct{}

// Name implements ScoringModel.
func (HeuristicModel) Name() string { return "heuristic" }

// ScoreNets implements ScoringModel.
func (HeuristicModel) ScoreNets(table *model.FeatureTable) (map[string]float64, error) {
	var maxTest, maxFanIn, maxFanOut, maxDepth float64
	for _, rec := range table.Nets {
		maxTest = maxF(maxTest, rec.TestabilityScore)
		maxFanIn = maxF(maxFanIn, float64(rec.FanIn))
		maxFanOut = maxF(maxFanOut, float64(rec.FanOut))
		maxDepth = maxF(maxDepth, float64(rec.LogicDepth))
	}

	scores := make(map[string]float64, len(table.Nets))
	for _, rec := range table.Nets {
		scores[rec.NetName] = 0.45*ratio(rec.TestabilityScore, maxTest) +
			0.25*(1-ratio(float64(rec.FanOut), maxFanOut)) +
			0.20*(1-ratio(float64(rec.FanIn), maxFanIn)) +
			0.10*ratio(float64(rec.LogicDepth), maxDepth)
	}
	return scores, nil
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func ratio(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}
