// Package archive keeps an on-disk history of routing decisions and
// coordinator runs so past behavior can be inspected and compared against
// config changes.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/logging"
)

// Record kinds.
const (
	KindRoute   = "route"
	KindProcess = "process"
)

// Record is one archived routing event.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Kind          string    `json:"kind"`
	Task          string    `json:"task"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	EstimatedCost float64   `json:"estimated_cost,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	Subtasks      int       `json:"subtasks,omitempty"`
}

// Store appends records to a JSON-lines history file. Appends are
// best-effort from the caller's perspective; a failed append must never
// block routing.
type Store struct {
	path string
	log  zerolog.Logger
}

// NewStore creates a history store at path. An empty path defaults to
// ~/.taskgate/history.jsonl.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".taskgate", "history.jsonl")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Store{path: path, log: logging.New("archive")}, nil
}

// Append writes one record. The record's ID and Timestamp are filled in
// when empty.
func (s *Store) Append(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// Recent returns the last n records, newest first. A missing history file
// yields an empty slice.
func (s *Store) Recent(n int) ([]Record, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// One corrupt line does not invalidate the history.
			s.log.Warn().Err(err).Msg("skipping corrupt history record")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}
