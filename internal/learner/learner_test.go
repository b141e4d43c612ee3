// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package learner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/extract-engine/pkg/types"
)

// scriptedGenerator returns canned candidates in order and records every
// request it receives.
type scriptedGenerator struct {
	candidates []Candidate
	err        error
	requests   []Request
}

func (g *scriptedGenerator) Propose(_ context.Context, req Request) (Candidate, types.Usage, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return Candidate{}, types.Usage{}, g.err
	}
	i := len(g.requests) - 1
	if i >= len(g.candidates) {
		i = len(g.candidates) - 1
	}
	return g.candidates[i], types.Usage{PromptTokens: 100, CompletionTokens: 20}, nil
}

const cardText = "Nome: João Silva Inscrição 101943 Seccional OAB-SP"

func testInput() Input {
	return Input{
		Text:        cardText,
		Field:       "nome",
		Description: "Nome completo do profissional",
		Value:       "João Silva",
		Foreign: map[string][]string{
			"inscricao": {"101943", "Inscrição"},
			"seccional": {"OAB-SP", "Seccional"},
		},
	}
}

func TestLearnAcceptsOnFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{candidates: []Candidate{{
		ExtractionPattern: `Nome:\s*(\p{L}+\s\p{L}+)`,
		ValidationPattern: `[A-Z][a-zà-ÿ]+(?:\s[A-Z][a-zà-ÿ]+)+`,
	}}}

	res, err := New(gen, 3).Learn(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Feedback)
	require.NotNil(t, res.Rule)
	assert.Equal(t, 1, res.Rule.Weight())

	value, ok := res.Rule.Hit(cardText)
	require.True(t, ok)
	assert.Equal(t, "João Silva", value)

	// The proposal request carries the target value and the foreign
	// keywords to exclude.
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "João Silva", gen.requests[0].Value)
	assert.Equal(t, []string{"101943", "Inscrição", "OAB-SP", "Seccional"}, gen.requests[0].Exclude)
}

func TestLearnRetriesOnBadSyntax(t *testing.T) {
	gen := &scriptedGenerator{candidates: []Candidate{
		{ExtractionPattern: `Nome:\s*([`, ValidationPattern: `.+`},
		{ExtractionPattern: `Nome:\s*\w+\s\w+`, ValidationPattern: `.+`},
		{ExtractionPattern: `Nome:\s*(\p{L}+\s\p{L}+)`, ValidationPattern: `.+`},
	}}

	res, err := New(gen, 3).Learn(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, res.Feedback, 2)
	assert.Contains(t, res.Feedback[0], "does not compile")
	assert.Contains(t, res.Feedback[1], "capture group")
}

func TestLearnFeedbackAccumulatesAcrossAttempts(t *testing.T) {
	gen := &scriptedGenerator{candidates: []Candidate{
		{ExtractionPattern: `Sem:\s*(\w+)`, ValidationPattern: `.+`},
		{ExtractionPattern: `Nome:\s*(\w+)`, ValidationPattern: `.+`},
		{ExtractionPattern: `Nome:\s*(\p{L}+\s\p{L}+)`, ValidationPattern: `.+`},
	}}

	res, err := New(gen, 3).Learn(context.Background(), testInput())
	require.NoError(t, err)
	require.Equal(t, Accepted, res.Outcome)

	// Attempt 1 sees no feedback; attempt 3 sees both prior failures.
	require.Len(t, gen.requests, 3)
	assert.Empty(t, gen.requests[0].Feedback)
	assert.Len(t, gen.requests[1].Feedback, 1)
	assert.Len(t, gen.requests[2].Feedback, 2)
	assert.Contains(t, gen.requests[2].Feedback[0], "did not match")
	assert.Contains(t, gen.requests[2].Feedback[1], `expected value is "João Silva"`)
}

func TestLearnMismatchFeedbackNamesBothValues(t *testing.T) {
	gen := &scriptedGenerator{candidates: []Candidate{{
		ExtractionPattern: `Nome:\s*(\p{L}+)`, // captures only "João"
		ValidationPattern: `.+`,
	}}}

	res, err := New(gen, 1).Learn(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, Exhausted, res.Outcome)
	require.Len(t, res.Feedback, 1)
	assert.Contains(t, res.Feedback[0], `"João"`)
	assert.Contains(t, res.Feedback[0], `"João Silva"`)
}

func TestLearnValidationRejectingExpectedValueRetries(t *testing.T) {
	// The rule extracts the right value but its own validation pattern
	// rejects it.
	gen := &scriptedGenerator{candidates: []Candidate{{
		ExtractionPattern: `Nome:\s*(\p{L}+\s\p{L}+)`,
		ValidationPattern: `\d+`,
	}}}

	res, err := New(gen, 2).Learn(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, Exhausted, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Feedback[0], "validation pattern")
	assert.Contains(t, res.Feedback[0], `rejects the expected value "João Silva"`)
}

func TestLearnContaminationRejected(t *testing.T) {
	in := testInput()
	// The extractor resolved a value that swallows the neighbouring field.
	in.Value = "João Silva Inscrição 101943"

	gen := &scriptedGenerator{candidates: []Candidate{{
		ExtractionPattern: `Nome:\s*(.+?)\s*Seccional`,
		ValidationPattern: `.+`,
	}}}

	res, err := New(gen, 1).Learn(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, Exhausted, res.Outcome)
	require.Len(t, res.Feedback, 1)
	assert.Contains(t, res.Feedback[0], `belongs to field "inscricao"`)
}

func TestLearnContaminationIsCaseInsensitive(t *testing.T) {
	in := testInput()
	in.Value = "João Silva oab-sp"
	in.Foreign = map[string][]string{"seccional": {"OAB-SP"}}

	gen := &scriptedGenerator{candidates: []Candidate{{
		ExtractionPattern: `Nome:\s*(\p{L}+\s\p{L}+ oab-sp)`,
		ValidationPattern: `.+`,
	}}}

	// Exercise the check directly: the candidate reproduces the (already
	// contaminated) value, so only step 5 can reject it.
	in.Text = "Nome: João Silva oab-sp"
	res, err := New(gen, 1).Learn(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, Exhausted, res.Outcome)
	assert.Contains(t, res.Feedback[0], `"seccional"`)
}

func TestLearnNeverExceedsMaxAttempts(t *testing.T) {
	bad := Candidate{ExtractionPattern: `Nunca:\s*(\w+)`, ValidationPattern: `.+`}
	gen := &scriptedGenerator{candidates: []Candidate{bad}}

	res, err := New(gen, 4).Learn(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, Exhausted, res.Outcome)
	assert.Nil(t, res.Rule)
	assert.Equal(t, 4, res.Attempts)
	assert.Len(t, gen.requests, 4, "exactly max_attempts proposal calls")
	assert.Len(t, res.Feedback, 4)
}

func TestLearnGeneratorFailurePropagates(t *testing.T) {
	genErr := errors.New("rule generator unavailable")
	gen := &scriptedGenerator{err: genErr}

	_, err := New(gen, 3).Learn(context.Background(), testInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, genErr)
	assert.Len(t, gen.requests, 1, "collaborator failures are not retried here")
}

func TestLearnEmptyValueRejected(t *testing.T) {
	in := testInput()
	in.Value = "   "

	gen := &scriptedGenerator{candidates: []Candidate{{ExtractionPattern: `(\w+)`, ValidationPattern: `.+`}}}
	_, err := New(gen, 3).Learn(context.Background(), in)
	require.Error(t, err)
	assert.Empty(t, gen.requests)
}

func TestLearnUsageAccumulates(t *testing.T) {
	bad := Candidate{ExtractionPattern: `Nunca:\s*(\w+)`, ValidationPattern: `.+`}
	gen := &scriptedGenerator{candidates: []Candidate{bad}}

	res, err := New(gen, 3).Learn(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, types.Usage{PromptTokens: 300, CompletionTokens: 60}, res.Usage)
}
