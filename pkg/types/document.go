// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data structures shared across pipeline stages.
package types

// Schema maps field identifiers to their human-readable descriptions. The
// descriptions guide both the structured extractor and rule generation.
type Schema map[string]string

// Document is one OCR'd document to process.
type Document struct {
	// Label identifies the document type (e.g. "oab_card"). Rules are cached
	// per label.
	Label string `json:"label" yaml:"label"`

	// Name is an optional identifier for reporting (filename or index).
	Name string `json:"filename,omitempty" yaml:"filename,omitempty"`

	// Text is the normalized OCR text payload.
	Text string `json:"pdf_text" yaml:"pdf_text"`

	// Schema lists the required fields with their descriptions.
	Schema Schema `json:"extraction_schema" yaml:"extraction_schema"`

	// Expected holds optional ground-truth values keyed by field. Used only
	// for accuracy accounting, never for extraction.
	Expected map[string]string `json:"expected_answer,omitempty" yaml:"expected_answer,omitempty"`
}

// Usage accumulates token counts across AI calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Extraction is the result of one structured-extraction call. Fields holds
// only the values the extractor resolved; a field absent from the map was
// returned null.
type Extraction struct {
	Fields map[string]string
	Usage  Usage
}
