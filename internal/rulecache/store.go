// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rulecache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store maps document types to per-field rule lists. It is process-wide
// shared mutable state with an explicit lifecycle: construct (empty or from a
// snapshot), mutate during the run, save after each accepted rule and at
// shutdown. All access is serialized by a single mutex, which keeps the
// weight-increment-and-reposition sequence atomic with respect to other
// readers and writers.
type Store struct {
	mu    sync.Mutex
	types map[string]map[string]*RuleList
}

// RuleRecord is the persisted and inspectable form of one rule. Record order
// within a field's array is the list order and is significant.
type RuleRecord struct {
	ExtractionPattern string `json:"extraction_pattern" yaml:"extraction_pattern"`
	ValidationPattern string `json:"validation_pattern" yaml:"validation_pattern"`
	Weight            int    `json:"weight" yaml:"weight"`
}

// Snapshot is the serialized form of the whole store:
// document type -> field -> ordered rule records.
type Snapshot map[string]map[string][]RuleRecord

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{types: make(map[string]map[string]*RuleList)}
}

// Load reads a snapshot from path and reconstructs the store, trusting the
// persisted list order. A missing file yields an explicit empty store; an
// unreadable or malformed snapshot is an error, since proceeding from a
// half-known cache state could silently drop learned rules.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no cache snapshot, starting empty", "path", path)
			return NewStore(), nil
		}
		return nil, fmt.Errorf("reading cache snapshot %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing cache snapshot %s: %w", path, err)
	}

	s := NewStore()
	for label, fields := range snap {
		for field, records := range fields {
			list := &RuleList{}
			for i, rec := range records {
				rule, err := newRuleWithWeight(rec.ExtractionPattern, rec.ValidationPattern, rec.Weight)
				if err != nil {
					return nil, fmt.Errorf("cache snapshot %s: %s/%s rule %d: %w", path, label, field, i, err)
				}
				list.rules = append(list.rules, rule)
			}
			s.setList(label, field, list)
		}
	}

	slog.Debug("cache snapshot loaded", "path", path, "types", len(s.types))
	return s, nil
}

// Save writes the store as a JSON snapshot to path. The file is written to a
// temporary name in the same directory and atomically renamed, so a reader
// never observes a partial snapshot and a failed save never corrupts the
// previous one.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache snapshot %s: %w", path, err)
	}

	return nil
}

// TryExtract attempts the fast path for one field of a document type. It
// never materializes a rule list for an unknown field.
func (s *Store) TryExtract(label, field, text string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.types[label]
	if !ok {
		return "", false
	}
	list, ok := fields[field]
	if !ok {
		return "", false
	}
	return list.TryExtract(text)
}

// Add inserts an accepted rule for (label, field), creating the rule list on
// first insertion. Returns false when an identical extraction pattern is
// already cached.
func (s *Store) Add(label, field string, rule *Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.types[label]
	if !ok {
		fields = make(map[string]*RuleList)
		s.types[label] = fields
	}
	list, ok := fields[field]
	if !ok {
		list = &RuleList{}
		fields[field] = list
	}

	added := list.Add(rule)
	if added {
		slog.Debug("rule cached", "label", label, "field", field, "rules", list.Len())
	}
	return added
}

// RuleCount returns the total number of rules across all types and fields.
func (s *Store) RuleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, fields := range s.types {
		for _, list := range fields {
			total += list.Len()
		}
	}
	return total
}

// Snapshot returns the serializable view of the store with rule records in
// priority order. Used by Save and by cache inspection.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(Snapshot, len(s.types))
	for label, fields := range s.types {
		fm := make(map[string][]RuleRecord, len(fields))
		for field, list := range fields {
			records := make([]RuleRecord, 0, list.Len())
			for _, r := range list.rules {
				records = append(records, RuleRecord{
					ExtractionPattern: r.extraction,
					ValidationPattern: r.validation,
					Weight:            r.weight,
				})
			}
			fm[field] = records
		}
		snap[label] = fm
	}
	return snap
}

func (s *Store) setList(label, field string, list *RuleList) {
	fields, ok := s.types[label]
	if !ok {
		fields = make(map[string]*RuleList)
		s.types[label] = fields
	}
	fields[field] = list
}
