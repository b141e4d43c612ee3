// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extract-engine/pkg/types"
)

// RunReport aggregates per-document results for one extraction run.
type RunReport struct {
	Cached    bool             `json:"cached" yaml:"cached"`
	Documents []DocumentResult `json:"documents" yaml:"documents"`

	TotalDocuments int         `json:"total_documents" yaml:"total_documents"`
	FastPathDocs   int         `json:"fast_path_docs" yaml:"fast_path_docs"`
	CacheHits      int         `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses    int         `json:"cache_misses" yaml:"cache_misses"`
	RulesAdded     int         `json:"rules_added" yaml:"rules_added"`
	ExtractorCalls int         `json:"extractor_calls" yaml:"extractor_calls"`
	GeneratorCalls int         `json:"generator_calls" yaml:"generator_calls"`
	Usage          types.Usage `json:"usage" yaml:"usage"`

	// scoredDocs counts documents carrying ground truth; MeanAccuracy
	// averages over those only.
	scoredDocs   int
	accuracySum  float64
	MeanAccuracy float64 `json:"mean_accuracy" yaml:"mean_accuracy"`
}

// NewRunReport returns an empty report for the given mode.
func NewRunReport(cached bool) *RunReport {
	return &RunReport{Cached: cached}
}

// Record folds one document result into the aggregates.
func (r *RunReport) Record(res DocumentResult) {
	r.Documents = append(r.Documents, res)
	r.TotalDocuments++
	if res.FastPath {
		r.FastPathDocs++
	}
	r.CacheHits += len(res.CacheHits)
	r.CacheMisses += len(res.CacheMisses)
	r.RulesAdded += res.RulesAdded
	r.ExtractorCalls += res.ExtractorCalls
	r.GeneratorCalls += res.GeneratorCalls
	r.Usage.Add(res.Usage)

	if res.Scored {
		r.scoredDocs++
		r.accuracySum += res.Accuracy
		r.MeanAccuracy = r.accuracySum / float64(r.scoredDocs)
	}
}

// WriteYAML saves the report to path.
func (r *RunReport) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing run report %s: %w", path, err)
	}
	return nil
}
