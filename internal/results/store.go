// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package results persists extraction run reports in a SQLite database so
// runs can be compared over time (cached vs. baseline, accuracy drift).
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/extract-engine/internal/pipeline"
	"github.com/pdiddy/extract-engine/pkg/types"
)

const dbFile = "results.db"

// Store manages the run-results SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the results database at dir/results.db,
// creating the schema if it does not exist.
func NewStore(cfg types.ResultsConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			cached INTEGER NOT NULL,
			total_documents INTEGER NOT NULL,
			fast_path_docs INTEGER NOT NULL,
			cache_hits INTEGER NOT NULL,
			cache_misses INTEGER NOT NULL,
			rules_added INTEGER NOT NULL,
			extractor_calls INTEGER NOT NULL,
			generator_calls INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			mean_accuracy REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			label TEXT NOT NULL,
			fast_path INTEGER NOT NULL,
			rules_added INTEGER NOT NULL,
			scored INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			field_values TEXT,
			expected_values TEXT,
			field_errors TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_documents_run_id ON run_documents(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID             string      `json:"id" yaml:"id"`
	StartedAt      time.Time   `json:"started_at" yaml:"started_at"`
	Cached         bool        `json:"cached" yaml:"cached"`
	TotalDocuments int         `json:"total_documents" yaml:"total_documents"`
	FastPathDocs   int         `json:"fast_path_docs" yaml:"fast_path_docs"`
	CacheHits      int         `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses    int         `json:"cache_misses" yaml:"cache_misses"`
	RulesAdded     int         `json:"rules_added" yaml:"rules_added"`
	ExtractorCalls int         `json:"extractor_calls" yaml:"extractor_calls"`
	GeneratorCalls int         `json:"generator_calls" yaml:"generator_calls"`
	Usage          types.Usage `json:"usage" yaml:"usage"`
	MeanAccuracy   float64     `json:"mean_accuracy" yaml:"mean_accuracy"`
}

// SaveRun stores a run report with its per-document rows and returns the
// new run's identifier.
func (s *Store) SaveRun(ctx context.Context, startedAt time.Time, report *pipeline.RunReport) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, cached, total_documents, fast_path_docs,
			cache_hits, cache_misses, rules_added, extractor_calls, generator_calls,
			prompt_tokens, completion_tokens, mean_accuracy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339Nano), report.Cached,
		report.TotalDocuments, report.FastPathDocs,
		report.CacheHits, report.CacheMisses, report.RulesAdded,
		report.ExtractorCalls, report.GeneratorCalls,
		report.Usage.PromptTokens, report.Usage.CompletionTokens,
		report.MeanAccuracy)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for _, doc := range report.Documents {
		valuesJSON, err := json.Marshal(doc.Values)
		if err != nil {
			return "", fmt.Errorf("marshaling values for %s: %w", doc.Name, err)
		}
		expectedJSON, err := json.Marshal(doc.Expected)
		if err != nil {
			return "", fmt.Errorf("marshaling expected values for %s: %w", doc.Name, err)
		}
		errorsJSON, err := json.Marshal(doc.FieldErrors)
		if err != nil {
			return "", fmt.Errorf("marshaling field errors for %s: %w", doc.Name, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_documents (run_id, name, label, fast_path, rules_added,
				scored, accuracy, elapsed_ms, field_values, expected_values, field_errors)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, doc.Name, doc.Label, doc.FastPath, doc.RulesAdded,
			doc.Scored, doc.Accuracy, doc.Elapsed.Milliseconds(),
			string(valuesJSON), string(expectedJSON), string(errorsJSON))
		if err != nil {
			return "", fmt.Errorf("inserting document %s: %w", doc.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// ListRuns returns all stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, cached, total_documents, fast_path_docs,
			cache_hits, cache_misses, rules_added, extractor_calls, generator_calls,
			prompt_tokens, completion_tokens, mean_accuracy
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run by identifier.
func (s *Store) GetRun(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, cached, total_documents, fast_path_docs,
			cache_hits, cache_misses, rules_added, extractor_calls, generator_calls,
			prompt_tokens, completion_tokens, mean_accuracy
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunSummary{}, fmt.Errorf("run %s not found", id)
	}
	return r, err
}

// DocumentRow is one per-document row of a stored run.
type DocumentRow struct {
	Name        string            `json:"name" yaml:"name"`
	Label       string            `json:"label" yaml:"label"`
	FastPath    bool              `json:"fast_path" yaml:"fast_path"`
	RulesAdded  int               `json:"rules_added" yaml:"rules_added"`
	Scored      bool              `json:"scored" yaml:"scored"`
	Accuracy    float64           `json:"accuracy" yaml:"accuracy"`
	ElapsedMS   int64             `json:"elapsed_ms" yaml:"elapsed_ms"`
	Values      map[string]string `json:"values" yaml:"values"`
	Expected    map[string]string `json:"expected,omitempty" yaml:"expected,omitempty"`
	FieldErrors []string          `json:"field_errors,omitempty" yaml:"field_errors,omitempty"`
}

// GetRunDocuments returns the per-document rows of one run in insertion order.
func (s *Store) GetRunDocuments(ctx context.Context, runID string) ([]DocumentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, label, fast_path, rules_added, scored, accuracy, elapsed_ms,
			field_values, expected_values, field_errors
		 FROM run_documents WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		var valuesJSON, expectedJSON, errorsJSON string
		if err := rows.Scan(&d.Name, &d.Label, &d.FastPath, &d.RulesAdded,
			&d.Scored, &d.Accuracy, &d.ElapsedMS, &valuesJSON, &expectedJSON, &errorsJSON); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if err := json.Unmarshal([]byte(valuesJSON), &d.Values); err != nil {
			return nil, fmt.Errorf("parsing values for %s: %w", d.Name, err)
		}
		if err := json.Unmarshal([]byte(expectedJSON), &d.Expected); err != nil {
			return nil, fmt.Errorf("parsing expected values for %s: %w", d.Name, err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &d.FieldErrors); err != nil {
			return nil, fmt.Errorf("parsing field errors for %s: %w", d.Name, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var r RunSummary
	var startedAt string
	err := row.Scan(&r.ID, &startedAt, &r.Cached, &r.TotalDocuments, &r.FastPathDocs,
		&r.CacheHits, &r.CacheMisses, &r.RulesAdded, &r.ExtractorCalls, &r.GeneratorCalls,
		&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &r.MeanAccuracy)
	if err != nil {
		return RunSummary{}, err
	}
	r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("parsing run timestamp: %w", err)
	}
	return r, nil
}
