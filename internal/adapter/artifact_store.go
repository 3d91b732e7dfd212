package adapter

import (
	"encoding/json"
	"fmt"
	"os"

	m "github.com/hwsec-lab/trojanforge/internal/model"
)

// ArtifactStore persists the pipeline's structured artifacts: the feature
// table, the ranked net list, the insertion metadata and the run summary.
// All artifacts are JSON so downstream tooling can consume them directly.
type ArtifactStore interface {
	SaveFeatures(path m.Path, table *m.FeatureTable) error
	LoadFeatures(path m.Path) (*m.FeatureTable, error)
	SaveRanking(path m.Path, ranking *m.Ranking) error
	LoadRanking(path m.Path) (*m.Ranking, error)
	SaveMetadata(path m.Path, meta *m.InsertionMetadata) error
	LoadMetadata(path m.Path) (*m.InsertionMetadata, error)
	SaveSummary(path m.Path, summary *m.RunSummary) error
}

// JSONArtifactStore is the disk-backed ArtifactStore.
type JSONArtifactStore struct{}

// NewJSONArtifactStore constructs a JSONArtifactStore.
func NewJSONArtifactStore() *JSONArtifactStore {
	return &JSONArtifactStore{}
}

func saveJSON(path m.Path, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(string(path), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadJSON(path m.Path, v any) error {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// SaveFeatures implements ArtifactStore.
func (s *JSONArtifactStore) SaveFeatures(path m.Path, table *m.FeatureTable) error {
	return saveJSON(path, table)
}

// LoadFeatures implements ArtifactStore.
func (s *JSONArtifactStore) LoadFeatures(path m.Path) (*m.FeatureTable, error) {
	var table m.FeatureTable
	if err := loadJSON(path, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

// SaveRanking implements ArtifactStore.
func (s *JSONArtifactStore) SaveRanking(path m.Path, ranking *m.Ranking) error {
	return saveJSON(path, ranking)
}

// LoadRanking implements ArtifactStore.
func (s *JSONArtifactStore) LoadRanking(path m.Path) (*m.Ranking, error) {
	var ranking m.Ranking
	if err := loadJSON(path, &ranking); err != nil {
		return nil, err
	}
	return &ranking, nil
}

// SaveMetadata implements ArtifactStore.
func (s *JSONArtifactStore) SaveMetadata(path m.Path, meta *m.InsertionMetadata) error {
	return saveJSON(path, meta)
}

// LoadMetadata implements ArtifactStore.
func (s *JSONArtifactStore) LoadMetadata(path m.Path) (*m.InsertionMetadata, error) {
	var meta m.InsertionMetadata
	if err := loadJSON(path, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveSummary implements ArtifactStore.
func (s *JSONArtifactStore) SaveSummary(path m.Path, summary *m.RunSummary) error {
	return saveJSON(path, summary)
}
