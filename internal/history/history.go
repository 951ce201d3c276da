// Package history persists a minimal append-only ledger of completed runs
// as newline-delimited JSON, queried by the "history" command tree.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/juniormartinxo/council/internal/paths"
)

// Status is the terminal outcome of one run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// RunRecord is one row in HistoryStore, appended once at run completion and
// never mutated afterward.
type RunRecord struct {
	ID               string `json:"id"`
	Status           Status `json:"status"`
	StartedAtUTC     string `json:"started_at_utc"`
	DurationMs       int64  `json:"duration_ms"`
	ExecutedSteps    int    `json:"executed_steps"`
	SuccessfulSteps  int    `json:"successful_steps"`
	FlowConfigSource string `json:"flow_config_source"`
}

// NewRunRecord fills in an id and start timestamp, leaving the caller to
// set the outcome fields once the run finishes.
func NewRunRecord(flowConfigSource string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:               uuid.NewString(),
		StartedAtUTC:     startedAt.UTC().Format(time.RFC3339),
		FlowConfigSource: flowConfigSource,
	}
}

// Store is the append-only JSONL run ledger under <COUNCIL_HOME>/db. mu
// serializes Append and Clear the same way AuditLog serializes Emit.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open resolves the ledger path and ensures its parent directory exists
// with owner-only permissions.
func Open() (*Store, error) {
	path, err := paths.HistoryLedgerPath(true)
	if err != nil {
		return nil, fmt.Errorf("resolving history ledger path: %w", err)
	}
	return &Store{path: path}, nil
}

// Append writes one record as a single JSON line, creating the file with
// owner-only permissions if absent.
func (s *Store) Append(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Chmod(0o600); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Runs returns up to limit most-recent records, newest first. limit <= 0
// means unlimited.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Clear deletes the ledger file; a ledger that does not exist yet is not an
// error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
