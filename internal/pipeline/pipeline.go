// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives per-document extraction: cache fast path, batched
// LLM fallback for misses, and rule learning for newly extracted values.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/pdiddy/extract-engine/internal/dataset"
	"github.com/pdiddy/extract-engine/internal/learner"
	"github.com/pdiddy/extract-engine/internal/rulecache"
	"github.com/pdiddy/extract-engine/pkg/types"
)

// Extractor abstracts the structured-extraction model so tests can supply a
// mock. One call resolves a batch of fields from raw text; fields the model
// cannot resolve are absent from the result.
type Extractor interface {
	Extract(ctx context.Context, text string, schema types.Schema) (types.Extraction, error)
}

// Pipeline orchestrates extraction for a run. When the cache is disabled it
// degrades to the extractor-only baseline: identical extractor inputs and
// outputs, no rule reads, writes, or learning.
type Pipeline struct {
	extractor Extractor
	learner   *learner.Learner
	store     *rulecache.Store
	cachePath string
	cached    bool
}

// Options configures a Pipeline.
type Options struct {
	Extractor Extractor
	Learner   *learner.Learner
	Store     *rulecache.Store
	CachePath string

	// CacheEnabled selects cached mode. When false, Store and Learner are
	// never touched.
	CacheEnabled bool
}

// New assembles a pipeline. Store and Learner may be nil when the cache is
// disabled.
func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil {
		return nil, fmt.Errorf("pipeline requires an extractor")
	}
	if opts.CacheEnabled {
		if opts.Store == nil || opts.Learner == nil {
			return nil, fmt.Errorf("cached mode requires a rule store and a learner")
		}
		if opts.CachePath == "" {
			return nil, fmt.Errorf("cached mode requires a cache snapshot path")
		}
	}
	return &Pipeline{
		extractor: opts.Extractor,
		learner:   opts.Learner,
		store:     opts.Store,
		cachePath: opts.CachePath,
		cached:    opts.CacheEnabled,
	}, nil
}

// DocumentResult records the outcome of one document.
type DocumentResult struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`

	// Values holds the resolved field values; a field absent from the map
	// stayed null.
	Values map[string]string `json:"values" yaml:"values"`

	// CacheHits and CacheMisses record the fast-path outcome per field.
	// Both stay empty in baseline mode, where no lookup happens.
	CacheHits   []string `json:"cache_hits,omitempty" yaml:"cache_hits,omitempty"`
	CacheMisses []string `json:"cache_misses,omitempty" yaml:"cache_misses,omitempty"`

	// FastPath is true when every field resolved from cache and no external
	// call was made.
	FastPath bool `json:"fast_path" yaml:"fast_path"`

	RulesAdded int      `json:"rules_added" yaml:"rules_added"`
	Exhausted  []string `json:"exhausted,omitempty" yaml:"exhausted,omitempty"`

	// FieldErrors records per-field collaborator failures that did not abort
	// the document.
	FieldErrors []string `json:"field_errors,omitempty" yaml:"field_errors,omitempty"`

	ExtractorCalls int         `json:"extractor_calls" yaml:"extractor_calls"`
	GeneratorCalls int         `json:"generator_calls" yaml:"generator_calls"`
	Usage          types.Usage `json:"usage" yaml:"usage"`

	// Scored is true when the document carried ground truth; Expected holds
	// the normalized ground-truth values, FieldsCorrect counts fields
	// matching them and Accuracy is the percentage over expected fields.
	Scored        bool              `json:"scored" yaml:"scored"`
	Expected      map[string]string `json:"expected,omitempty" yaml:"expected,omitempty"`
	FieldsCorrect int               `json:"fields_correct" yaml:"fields_correct"`
	Accuracy      float64           `json:"accuracy" yaml:"accuracy"`

	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// ProcessDocument runs the fast path, the batched extractor fallback, and
// rule learning for one document. Collaborator failures for individual fields
// are recorded in the result and never abort the document; a cache snapshot
// write failure is returned as an error since later learned rules would not
// be durable.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc types.Document) (DocumentResult, error) {
	start := time.Now()
	res := DocumentResult{
		Name:   doc.Name,
		Label:  doc.Label,
		Values: make(map[string]string),
	}

	fields := make([]string, 0, len(doc.Schema))
	for f := range doc.Schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	// Fast path: cached rules, highest weight first.
	var missed []string
	for _, field := range fields {
		if !p.cached {
			missed = append(missed, field)
			continue
		}
		value, ok := p.store.TryExtract(doc.Label, field, doc.Text)
		if ok {
			res.Values[field] = value
			res.CacheHits = append(res.CacheHits, field)
			continue
		}
		missed = append(missed, field)
	}
	// In baseline mode nothing was looked up, so nothing "missed".
	if p.cached {
		res.CacheMisses = missed
	}

	if len(missed) == 0 {
		res.FastPath = true
		p.score(doc, &res)
		res.Elapsed = time.Since(start)
		return res, nil
	}

	// Slow path: one batched call for exactly the missed fields.
	missedSchema := make(types.Schema, len(missed))
	for _, field := range missed {
		missedSchema[field] = doc.Schema[field]
	}

	extraction, err := p.extractor.Extract(ctx, doc.Text, missedSchema)
	res.ExtractorCalls++
	if err != nil {
		// The document keeps its cache hits; the missed fields stay null.
		slog.Warn("extractor call failed", "doc", doc.Name, "fields", len(missed), "err", err)
		res.FieldErrors = append(res.FieldErrors, fmt.Sprintf("extractor: %v", err))
		p.score(doc, &res)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	res.Usage.Add(extraction.Usage)

	for _, field := range missed {
		value, ok := extraction.Fields[field]
		if !ok {
			continue // null stays null, no rule is attempted
		}
		value = dataset.Normalize(value)
		if value == "" {
			continue
		}
		res.Values[field] = value
	}

	if p.cached {
		if err := p.learnRules(ctx, doc, missed, &res); err != nil {
			return res, err
		}
	}

	p.score(doc, &res)
	res.Elapsed = time.Since(start)
	return res, nil
}

// learnRules runs the feedback loop for every missed field the extractor
// resolved, caching and persisting each accepted rule immediately so a crash
// mid-run loses at most the in-flight document.
func (p *Pipeline) learnRules(ctx context.Context, doc types.Document, missed []string, res *DocumentResult) error {
	for _, field := range missed {
		value, ok := res.Values[field]
		if !ok {
			continue
		}

		out, err := p.learner.Learn(ctx, learner.Input{
			Text:        doc.Text,
			Field:       field,
			Description: doc.Schema[field],
			Value:       value,
			Foreign:     p.foreignStrings(doc, field, res.Values),
		})
		res.GeneratorCalls += out.Attempts
		res.Usage.Add(out.Usage)
		if err != nil {
			// Generator failure for one field: the value obtained from the
			// extractor is still used, only caching is skipped.
			slog.Warn("rule generation failed", "doc", doc.Name, "field", field, "err", err)
			res.FieldErrors = append(res.FieldErrors, fmt.Sprintf("field %s: %v", field, err))
			continue
		}

		if out.Outcome == learner.Exhausted {
			res.Exhausted = append(res.Exhausted, field)
			continue
		}

		if p.store.Add(doc.Label, field, out.Rule) {
			res.RulesAdded++
			if err := p.store.Save(p.cachePath); err != nil {
				return fmt.Errorf("persisting cache after learning %s/%s: %w", doc.Label, field, err)
			}
		}
	}
	return nil
}

// foreignStrings collects, for every field other than target, its resolved
// value and identifying keywords for the contamination check.
func (p *Pipeline) foreignStrings(doc types.Document, target string, values map[string]string) map[string][]string {
	foreign := make(map[string][]string, len(doc.Schema)-1)
	for field := range doc.Schema {
		if field == target {
			continue
		}
		strs := []string{field}
		if v, ok := values[field]; ok && v != "" {
			strs = append(strs, v)
		}
		foreign[field] = strs
	}
	return foreign
}

// score fills accuracy accounting from ground truth, when present.
func (p *Pipeline) score(doc types.Document, res *DocumentResult) {
	if len(doc.Expected) == 0 {
		return
	}
	res.Scored = true
	res.Expected = make(map[string]string, len(doc.Expected))
	correct := 0
	for field, want := range doc.Expected {
		want = dataset.Normalize(want)
		res.Expected[field] = want
		if got, ok := res.Values[field]; ok && got == want {
			correct++
		}
	}
	res.FieldsCorrect = correct
	res.Accuracy = 100 * float64(correct) / float64(len(doc.Expected))
}

// flush persists the cache snapshot. Accepted rules are saved at insertion
// time, but fast-path hits promote rule weights in memory only, so a run
// must flush before returning or a hits-only run would leave the snapshot
// with stale priorities.
func (p *Pipeline) flush() error {
	if !p.cached {
		return nil
	}
	if err := p.store.Save(p.cachePath); err != nil {
		return fmt.Errorf("persisting cache snapshot: %w", err)
	}
	return nil
}

// Run processes documents sequentially in input order, writing progress to w.
func (p *Pipeline) Run(ctx context.Context, docs []types.Document, w io.Writer) (*RunReport, error) {
	report := NewRunReport(p.cached)

	for i, doc := range docs {
		fmt.Fprintf(w, "processing %s (%s)\n", doc.Name, doc.Label)

		res, err := p.ProcessDocument(ctx, doc)
		if err != nil {
			// Rules and promotions from earlier documents still get flushed.
			if ferr := p.flush(); ferr != nil {
				slog.Warn("cache flush after document failure", "err", ferr)
			}
			return report, fmt.Errorf("document %d (%s): %w", i, doc.Name, err)
		}

		switch {
		case res.FastPath:
			fmt.Fprintf(w, "  fast path: %d/%d fields from cache\n", len(res.CacheHits), len(doc.Schema))
		case p.cached:
			fmt.Fprintf(w, "  cache %d hit(s), %d miss(es), %d rule(s) learned\n",
				len(res.CacheHits), len(res.CacheMisses), res.RulesAdded)
		default:
			fmt.Fprintf(w, "  %d field(s) from extractor\n", len(res.Values))
		}
		if len(doc.Expected) > 0 {
			fmt.Fprintf(w, "  accuracy: %.1f%%\n", res.Accuracy)
		}

		report.Record(res)
	}

	if err := p.flush(); err != nil {
		return report, err
	}
	return report, nil
}
