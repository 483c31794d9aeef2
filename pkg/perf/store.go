// Package perf tracks observed per-model performance and ranks candidate
// models for the router.
package perf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/registry"
)

// ModelPerfData holds running statistics for one model. All rate and score
// fields are in [0,1]; AvgResponseTime is milliseconds.
type ModelPerfData struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	ContextWindow   int       `json:"context_window,omitempty"`
	SuccessRate     float64   `json:"success_rate"`
	QualityScore    float64   `json:"quality_score"`
	AvgResponseTime float64   `json:"avg_response_time"`
	ComplexityScore float64   `json:"complexity_score"`
	LastBenchmarked time.Time `json:"last_benchmarked"`
	BenchmarkCount  int       `json:"benchmark_count"`
	IsFree          bool      `json:"is_free"`
}

// Observation is one benchmark or production sample for a model.
type Observation struct {
	Success        bool
	QualityScore   float64
	ResponseTimeMS float64
	Complexity     float64
}

// Query filters and bounds a ranked candidate lookup.
type Query struct {
	LocalOnly         bool
	ResourceEfficient bool
	MaxResults        int
}

type document struct {
	Models      map[string]ModelPerfData `json:"models"`
	LastUpdated time.Time                `json:"lastUpdated"`
}

// Store owns all ModelPerfData. Reads return copies; writes go through the
// weighted-average update rule.
type Store struct {
	mu     sync.RWMutex
	models map[string]ModelPerfData
	path   string // empty = memory only
	log    zerolog.Logger
}

// NewStore creates an in-memory store.
func NewStore() *Store {
	return &Store{
		models: make(map[string]ModelPerfData),
		log:    logging.New("perf"),
	}
}

// Open loads a store persisted at path. A missing file is not an error; an
// empty store is created and the file written on first update.
func Open(path string) (*Store, error) {
	s := NewStore()
	s.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read performance store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse performance store %s: %w", path, err)
	}
	if doc.Models != nil {
		s.models = doc.Models
	}
	return s, nil
}

// Seed registers a model with neutral statistics if it is not already
// tracked. Existing entries are left untouched.
func (s *Store) Seed(m registry.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[m.ID]; ok {
		return
	}
	s.models[m.ID] = ModelPerfData{
		ID:            m.ID,
		Provider:      m.Provider,
		ContextWindow: m.ContextWindow,
		SuccessRate:   0.5,
		QualityScore:  0.5,
		IsFree:        m.IsFree(),
	}
}

// Get returns a copy of the tracked data for a model id.
func (s *Store) Get(id string) (ModelPerfData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.models[id]
	return d, ok
}

// RecordObservation folds one sample into a model's running statistics using
// the weighted-average rule new = (old*count + sample)/(count+1).
func (s *Store) RecordObservation(id string, obs Observation) error {
	s.mu.Lock()

	d, ok := s.models[id]
	if !ok {
		d = ModelPerfData{ID: id}
	}

	count := float64(d.BenchmarkCount)
	success := 0.0
	if obs.Success {
		success = 1.0
	}
	d.SuccessRate = (d.SuccessRate*count + success) / (count + 1)
	d.QualityScore = (d.QualityScore*count + obs.QualityScore) / (count + 1)
	d.AvgResponseTime = (d.AvgResponseTime*count + obs.ResponseTimeMS) / (count + 1)
	d.ComplexityScore = (d.ComplexityScore*count + obs.Complexity) / (count + 1)
	d.BenchmarkCount++
	d.LastBenchmarked = time.Now()
	s.models[id] = d

	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.log.Warn().Err(err).Str("model", id).Msg("failed to persist performance store")
		return err
	}
	return nil
}

// RankedCandidates returns up to q.MaxResults models ordered best first by a
// composite performance score, honoring the query filters.
func (s *Store) RankedCandidates(q Query) []ModelPerfData {
	s.mu.RLock()
	candidates := make([]ModelPerfData, 0, len(s.models))
	for _, d := range s.models {
		if q.LocalOnly && d.Provider != registry.ProviderLocal {
			continue
		}
		candidates = append(candidates, d)
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		si := s.score(candidates[i], q.ResourceEfficient)
		sj := s.score(candidates[j], q.ResourceEfficient)
		if si == sj {
			return candidates[i].ID < candidates[j].ID
		}
		return si > sj
	})

	if q.MaxResults > 0 && len(candidates) > q.MaxResults {
		candidates = candidates[:q.MaxResults]
	}
	return candidates
}

// score collapses a model's statistics into a single ranking value. Under
// resource efficiency, response time and quantized/small ids weigh more.
func (s *Store) score(d ModelPerfData, resourceEfficient bool) float64 {
	speed := 1.0
	if d.AvgResponseTime > 0 {
		speed = 1.0 / (1.0 + d.AvgResponseTime/1000.0)
	}

	score := 0.45*d.SuccessRate + 0.35*d.QualityScore + 0.2*speed
	if resourceEfficient {
		score = 0.3*d.SuccessRate + 0.2*d.QualityScore + 0.4*speed
		if hasQuantizationMarker(d.ID) {
			score += 0.1
		}
	}
	return score
}

// hasQuantizationMarker reports whether a model id names a quantized build.
func hasQuantizationMarker(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range []string{"q4", "q5", "q8"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// save rewrites the persisted document. Memory-only stores skip it.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	doc := document{
		Models:      make(map[string]ModelPerfData, len(s.models)),
		LastUpdated: time.Now(),
	}
	for id, d := range s.models {
		doc.Models[id] = d
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
