// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "conjoined letters and digits",
			in:   "Seccional101943",
			want: "Seccional 101943",
		},
		{
			name: "digit then letter",
			in:   "101943Seccional",
			want: "101943 Seccional",
		},
		{
			name: "conjoined words",
			in:   "GOKUInscrição",
			want: "GOKU Inscrição",
		},
		{
			name: "lower then upper",
			in:   "silvaInscrição",
			want: "silva Inscrição",
		},
		{
			name: "whitespace collapse",
			in:   "Nome:   João \t Silva\n\n\nInscrição",
			want: "Nome: João Silva Inscrição",
		},
		{
			name: "trim",
			in:   "  texto  ",
			want: "texto",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	content := `[
		{
			"label": "oab_card",
			"filename": "card-001.pdf",
			"pdf_text": "Nome:João  Silva\nInscrição101943",
			"extraction_schema": {
				"nome": "Nome completo do profissional",
				"inscricao": "Número de inscrição, 6 dígitos"
			},
			"expected_answer": {"nome": "João Silva", "inscricao": "101943"}
		},
		{
			"label": "oab_card",
			"pdf_text": "Nome: Maria Souza",
			"extraction_schema": {"nome": "Nome completo"}
		}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	docs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "oab_card", docs[0].Label)
	assert.Equal(t, "card-001.pdf", docs[0].Name)
	assert.Equal(t, "Nome:João Silva Inscrição 101943", docs[0].Text, "text is normalized on load")
	assert.Equal(t, "101943", docs[0].Expected["inscricao"])

	assert.Equal(t, "doc_1", docs[1].Name, "unnamed documents get an index name")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("]["), 0o644))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing label", func(t *testing.T) {
		path := filepath.Join(dir, "nolabel.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"pdf_text":"x","extraction_schema":{"f":"d"}}]`), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no label")
	})

	t.Run("missing schema", func(t *testing.T) {
		path := filepath.Join(dir, "noschema.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"label":"x","pdf_text":"x"}]`), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no extraction schema")
	})
}
