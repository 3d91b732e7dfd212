package model

// FeatureRecord holds the per-net structural and testability features.
// Records are keyed by net name and never mutated after the analyzer
// produces them.
//
// TestabilityScore is the normalized combination
//
//	(cc0/100 + cc1/100)/2 + co/100
//
// with each raw SCOAP value capped at 100 before normalization. Higher
// means harder to test, which is what makes a net attractive as an
// insertion site.
type FeatureRecord struct {
	NetName          string  `json:"net_name"`
	FanIn            int     `json:"fan_in"`
	FanOut           int     `json:"fan_out"`
	LogicDepth       int     `json:"logic_depth"`
	CC0              float64 `json:"cc0"`
	CC1              float64 `json:"cc1"`
	CO               float64 `json:"co"`
	IsInput          bool    `json:"is_input"`
	IsOutput         bool    `json:"is_output"`
	TestabilityScore float64 `json:"testability_score"`
	// VulnerabilityScore is filled in by the scorer, either from the
	// external model or the local heuristic.
	VulnerabilityScore float64 `json:"vulnerability_score"`
}

// FeatureTable is the persisted analyzer output for one design.
type FeatureTable struct {
	Design      string          `json:"design"`
	GeneratedAt string          `json:"generated_at"`
	Nets        []FeatureRecord `json:"nets"`
}

// ByName returns a lookup map over the table's records.
func (t *FeatureTable) ByName() map[string]FeatureRecord {
	idx := make(map[string]FeatureRecord, len(t.Nets))
	for _, rec := range t.Nets {
		idx[rec.NetName] = rec
	}
	return idx
}

// RankedNet is one (net, score) entry of the scorer output.
type RankedNet struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Ranking is the persisted scorer output, ordered by score descending
// with ties broken by net name ascending.
type Ranking struct {
	NumNets    int         `json:"num_nets"`
	TargetNets []RankedNet `json:"target_nets"`
}
