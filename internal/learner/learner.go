// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package learner runs the bounded generate->test->feedback loop that turns
// LLM-proposed rule candidates into validated cache rules.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/extract-engine/internal/rulecache"
	"github.com/pdiddy/extract-engine/pkg/types"
)

// Candidate is an unvalidated rule proposal from the generator.
type Candidate struct {
	ExtractionPattern string
	ValidationPattern string
}

// Request carries the inputs for one rule proposal. Value is the known-good
// value the rule must reproduce and Exclude lists the other fields' keywords
// the rule must not capture. Feedback holds every failure explanation
// accumulated so far in this learning sequence, oldest first, so each retry
// is informed by all prior failures.
type Request struct {
	Text        string
	Field       string
	Description string
	Value       string
	Exclude     []string
	Feedback    []string
}

// Generator proposes candidate rules. Implementations call the external
// rule-generation model; tests supply scripted fakes.
type Generator interface {
	Propose(ctx context.Context, req Request) (Candidate, types.Usage, error)
}

// Outcome is the terminal state of a learning sequence.
type Outcome int

const (
	// Accepted means a candidate passed every check and became a rule.
	Accepted Outcome = iota
	// Exhausted means MaxAttempts proposals failed. This is a normal,
	// reportable outcome, not an error: the field's value is already known,
	// only caching is skipped.
	Exhausted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "exhausted"
}

// Input describes one (document, field) learning task.
type Input struct {
	// Text is the document text the rule must work against.
	Text string

	// Field is the target field identifier.
	Field string

	// Description is the field's schema description.
	Description string

	// Value is the value the external extractor produced for this field,
	// treated as ground truth for this document.
	Value string

	// Foreign maps every other field in the document's schema to its known
	// value and descriptive keywords, used for contamination checks.
	Foreign map[string][]string
}

// Result reports how a learning sequence ended.
type Result struct {
	Outcome  Outcome
	Rule     *rulecache.Rule // nil unless Accepted
	Attempts int             // proposal calls issued
	Feedback []string        // accumulated failure explanations
	Usage    types.Usage
}

// Learner drives the per-field rule-learning loop.
type Learner struct {
	gen         Generator
	maxAttempts int
}

// New returns a learner bounded by maxAttempts proposals per field
// (default 3).
func New(gen Generator, maxAttempts int) *Learner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Learner{gen: gen, maxAttempts: maxAttempts}
}

// Learn runs the proposing/checking loop for one field until a candidate is
// accepted or attempts are exhausted. A generator error aborts the sequence
// and is returned as-is; the loop itself never retries collaborator failures.
func (l *Learner) Learn(ctx context.Context, in Input) (Result, error) {
	expected := rulecache.NormalizeValue(in.Value)
	if expected == "" {
		return Result{}, fmt.Errorf("field %s: no value to learn a rule from", in.Field)
	}

	res := Result{Outcome: Exhausted}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		candidate, usage, err := l.gen.Propose(ctx, Request{
			Text:        in.Text,
			Field:       in.Field,
			Description: in.Description,
			Value:       expected,
			Exclude:     excludeKeywords(in.Foreign),
			Feedback:    res.Feedback,
		})
		res.Usage.Add(usage)
		res.Attempts = attempt
		if err != nil {
			return res, fmt.Errorf("proposing rule for field %s (attempt %d): %w", in.Field, attempt, err)
		}

		rule, feedback := check(candidate, in.Text, expected, in.Foreign)
		if rule != nil {
			slog.Debug("rule accepted", "field", in.Field, "attempt", attempt)
			res.Outcome = Accepted
			res.Rule = rule
			return res, nil
		}

		// Retrying: keep the explanation so the next proposal can avoid
		// this failure mode too, not just the last one.
		slog.Debug("candidate rejected", "field", in.Field, "attempt", attempt, "reason", feedback)
		res.Feedback = append(res.Feedback, fmt.Sprintf("attempt %d: %s", attempt, feedback))
	}

	slog.Debug("learning exhausted", "field", in.Field, "attempts", res.Attempts)
	return res, nil
}

// check validates a candidate, cheapest test first. It returns the compiled
// rule on success, or a failure explanation for the feedback log.
func check(c Candidate, text, expected string, foreign map[string][]string) (*rulecache.Rule, string) {
	// Syntax: compilation and capture-group arity, caught at construction so
	// accepted rules never fail per-call.
	rule, err := rulecache.NewRule(c.ExtractionPattern, c.ValidationPattern)
	if err != nil {
		return nil, err.Error()
	}

	// Correctness: the rule must reproduce the known value exactly.
	value, ok := rule.Extract(text)
	if !ok {
		return nil, fmt.Sprintf("extraction pattern %q did not match the document text", c.ExtractionPattern)
	}
	if value != expected {
		return nil, fmt.Sprintf("extraction pattern captured %q but the expected value is %q", value, expected)
	}

	// The validation pattern must accept the very value it is meant to
	// validate.
	if !rule.Validate(expected) {
		return nil, fmt.Sprintf("validation pattern %q rejects the expected value %q", c.ValidationPattern, expected)
	}

	// Contamination: the captured value must not include content belonging
	// to a different field.
	if field, hit := contaminated(value, foreign); hit != "" {
		return nil, fmt.Sprintf("extracted value %q contains %q, which belongs to field %q", value, hit, field)
	}

	return rule, ""
}

// excludeKeywords flattens the foreign-field strings into a sorted list for
// the rule-generation prompt.
func excludeKeywords(foreign map[string][]string) []string {
	var out []string
	for _, strs := range foreign {
		for _, s := range strs {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// contaminated reports the first foreign field whose value or keyword appears
// in value as a case-insensitive substring. Fields are scanned in sorted
// order so feedback is deterministic.
func contaminated(value string, foreign map[string][]string) (field, match string) {
	lower := strings.ToLower(value)

	names := make([]string, 0, len(foreign))
	for name := range foreign {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, s := range foreign[name] {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(s)) {
				return name, s
			}
		}
	}
	return "", ""
}
