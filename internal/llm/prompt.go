// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/extract-engine/internal/learner"
	"github.com/pdiddy/extract-engine/pkg/types"
)

// extractionPromptTmpl is the prompt sent to the extraction model for one
// document. It instructs the model to extract every schema field verbatim
// and to return null rather than guess.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a text extraction robot. Extract information from the input text according to the extraction schema.

Input text:
{{.Text}}

Extraction schema (field name to description of the expected value):
{{.Schema}}

Instructions:
- Extract text exactly as it appears in the input. Preserve original casing and punctuation. Do not paraphrase.
- Each field's description defines its expected format. If the text near an anchor does not match the description, the field is null.
- If a value is missing or invalid, assign null. Never infer or guess from nearby text.

Respond with a single JSON object mapping every schema field name to its extracted string value, or null when the value is absent. Do not include any text outside the JSON object.

Example response:
{"nome": "JOÃO DA SILVA", "categoria": null}
`))

// ruleGenPromptTmpl is the prompt sent to the rule-generation model for one
// field. The model proposes one extraction regex with a single capture group
// plus one validation regex, anchored on stable keywords rather than layout.
var ruleGenPromptTmpl = template.Must(template.New("rulegen").Parse(`You are an expert automation engineer specializing in robust text extraction from semi-structured documents. Generate a single extraction rule for one data field.

Requirements:
- The extraction regex must use RE2 syntax (no lookahead, no backreferences) and contain exactly one capture group, capturing the value and nothing else.
- Anchor the regex on stable textual keywords near the value (labels like "Inscrição" or "Nome"), never on visual layout, line position, or the order of other fields.
- The regex must work on future documents of the same type, so avoid hardcoding values specific to this document.
- Use Unicode classes such as \p{L} for letters; plain \w does not match accented characters.
- The validation regex describes the format of the extracted value alone and must reject text belonging to other fields.

Document text:
{{.Text}}

Field name: {{.Field}}
Field description: {{.Description}}
Known correct value for this document: {{.Value}}

The extraction regex applied to the document text must capture exactly the known correct value.
{{if .Exclude}}
The captured value must not contain any of these strings, which belong to other fields:
{{.Exclude}}
{{end}}{{if .Feedback}}
Earlier proposals for this field failed. Do not repeat these mistakes:
{{range .Feedback}}- {{.}}
{{end}}{{end}}
Respond with a single JSON object and no other text:
{"extraction_pattern": "regex with one capture group", "validation_pattern": "regex for the value format"}
`))

// renderExtractionPrompt fills the extraction template for one document. The
// schema is embedded as JSON so field descriptions survive untouched.
func renderExtractionPrompt(text string, schema types.Schema) (string, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	var buf bytes.Buffer
	err = extractionPromptTmpl.Execute(&buf, struct {
		Text   string
		Schema string
	}{Text: text, Schema: string(schemaJSON)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderRuleGenPrompt fills the rule-generation template for one field.
func renderRuleGenPrompt(req learner.Request) (string, error) {
	var exclude string
	if len(req.Exclude) > 0 {
		b, err := json.Marshal(req.Exclude)
		if err != nil {
			return "", fmt.Errorf("marshaling exclude keywords: %w", err)
		}
		exclude = string(b)
	}
	var buf bytes.Buffer
	err := ruleGenPromptTmpl.Execute(&buf, struct {
		Text        string
		Field       string
		Description string
		Value       string
		Exclude     string
		Feedback    []string
	}{
		Text:        req.Text,
		Field:       req.Field,
		Description: req.Description,
		Value:       req.Value,
		Exclude:     exclude,
		Feedback:    req.Feedback,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
