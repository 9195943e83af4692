package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"estrainer/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.Run
	generations map[string][]model.GenerationRecord
	episodes    map[string][]model.EpisodeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.Run)
	s.generations = make(map[string][]model.GenerationRecord)
	s.episodes = make(map[string][]model.EpisodeRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRunsNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// AppendGeneration stores record, replacing an earlier record for the same
// generation.
func (s *MemoryStore) AppendGeneration(_ context.Context, record model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	records := s.generations[record.RunID]
	idx := sort.Search(len(records), func(i int) bool { return records[i].Generation >= record.Generation })
	if idx < len(records) && records[idx].Generation == record.Generation {
		records[idx] = record
	} else {
		records = append(records, model.GenerationRecord{})
		copy(records[idx+1:], records[idx:])
		records[idx] = record
	}
	s.generations[record.RunID] = records
	return nil
}

func (s *MemoryStore) GetGenerations(_ context.Context, runID string) ([]model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.generations[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func (s *MemoryStore) AppendEpisode(_ context.Context, record model.EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	records := s.episodes[record.RunID]
	idx := sort.Search(len(records), func(i int) bool { return records[i].Episode >= record.Episode })
	if idx < len(records) && records[idx].Episode == record.Episode {
		records[idx] = record
	} else {
		records = append(records, model.EpisodeRecord{})
		copy(records[idx+1:], records[idx:])
		records[idx] = record
	}
	s.episodes[record.RunID] = records
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EpisodeRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func sortRunsNewestFirst(runs []model.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
