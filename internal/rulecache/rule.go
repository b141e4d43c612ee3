// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rulecache implements the adaptive extraction-rule cache: compiled
// extraction/validation rules, per-field weighted rule lists with
// promotion-on-hit ordering, and the persisted store keyed by document type.
package rulecache

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs an extraction pattern with a validation pattern. Patterns are
// immutable and compiled once at construction; only the usage weight mutates,
// and only through the RuleList that owns the rule.
type Rule struct {
	extraction string
	validation string

	extractRE  *regexp.Regexp
	validateRE *regexp.Regexp

	weight int
}

// NewRule compiles both patterns and returns a rule at weight 1. The
// extraction pattern must contain exactly one capture group; the validation
// pattern is anchored so it must match a candidate value in full.
func NewRule(extraction, validation string) (*Rule, error) {
	return newRuleWithWeight(extraction, validation, 1)
}

func newRuleWithWeight(extraction, validation string, weight int) (*Rule, error) {
	if weight < 1 {
		return nil, fmt.Errorf("rule weight must be >= 1, got %d", weight)
	}

	extractRE, err := regexp.Compile(extraction)
	if err != nil {
		return nil, fmt.Errorf("extraction pattern does not compile: %w", err)
	}
	if n := extractRE.NumSubexp(); n != 1 {
		return nil, fmt.Errorf("extraction pattern must have exactly one capture group, got %d", n)
	}

	validateRE, err := regexp.Compile(`\A(?:` + validation + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("validation pattern does not compile: %w", err)
	}

	return &Rule{
		extraction: extraction,
		validation: validation,
		extractRE:  extractRE,
		validateRE: validateRE,
		weight:     weight,
	}, nil
}

// ExtractionPattern returns the raw extraction pattern.
func (r *Rule) ExtractionPattern() string { return r.extraction }

// ValidationPattern returns the raw validation pattern.
func (r *Rule) ValidationPattern() string { return r.validation }

// Weight returns the current usage weight.
func (r *Rule) Weight() int { return r.weight }

// Extract applies the extraction pattern to text and returns the NormalizeValue'd
// capture group. The second return is false when the pattern does not match.
func (r *Rule) Extract(text string) (string, bool) {
	m := r.extractRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return NormalizeValue(m[1]), true
}

// Validate reports whether the validation pattern matches the entire value.
func (r *Rule) Validate(value string) bool {
	return r.validateRE.MatchString(value)
}

// Hit reports whether the rule successfully extracts a value from text: the
// extraction pattern matches, the normalized capture is non-empty, and the
// validation pattern accepts it. The extracted value is returned on success.
func (r *Rule) Hit(text string) (string, bool) {
	value, ok := r.Extract(text)
	if !ok || value == "" {
		return "", false
	}
	if !r.Validate(value) {
		return "", false
	}
	return value, true
}

// NormalizeValue trims leading/trailing whitespace and collapses internal
// whitespace runs to a single space. Extracted and expected values are always
// compared in this form.
func NormalizeValue(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
