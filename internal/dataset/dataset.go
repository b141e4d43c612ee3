// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset loads document corpora and normalizes noisy OCR text.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/extract-engine/pkg/types"
)

// OCR output frequently glues tokens together ("Seccional101943",
// "GOKUInscrição"). These patterns re-insert the missing boundaries before
// whitespace collapsing.
var (
	letterDigit = regexp.MustCompile(`(\p{L})(\d)`)
	digitLetter = regexp.MustCompile(`(\d)(\p{L})`)
	lowerUpper  = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	upperWord   = regexp.MustCompile(`(\p{Lu})(\p{Lu}\p{Ll})`)
)

// Normalize cleans OCR text: conjoined letter/digit and word runs are split,
// then all whitespace (including newlines) collapses to single spaces and the
// result is trimmed. Applied to document text at load and to extractor output
// before comparison or rule learning.
func Normalize(text string) string {
	text = letterDigit.ReplaceAllString(text, "$1 $2")
	text = digitLetter.ReplaceAllString(text, "$1 $2")
	text = lowerUpper.ReplaceAllString(text, "$1 $2")
	text = upperWord.ReplaceAllString(text, "$1 $2")
	return strings.Join(strings.Fields(text), " ")
}

// Load reads a dataset JSON file: an array of documents carrying a label,
// OCR text, an extraction schema and optional expected answers. Document text
// is normalized on ingestion.
func Load(path string) ([]types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	for i := range docs {
		doc := &docs[i]
		if doc.Label == "" {
			return nil, fmt.Errorf("dataset %s: document %d has no label", path, i)
		}
		if len(doc.Schema) == 0 {
			return nil, fmt.Errorf("dataset %s: document %d (%s) has no extraction schema", path, i, doc.Label)
		}
		if doc.Name == "" {
			doc.Name = fmt.Sprintf("doc_%d", i)
		}
		doc.Text = Normalize(doc.Text)
	}

	return docs, nil
}
