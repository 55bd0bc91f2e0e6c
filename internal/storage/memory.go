package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"neurocomp/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	reports     map[string]model.CompileRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.reports = make(map[string]model.CompileRecord)
	return nil
}

func (s *MemoryStore) SaveReport(_ context.Context, record model.CompileRecord) error {
	if record.ID == "" {
		return errors.New("report id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.reports[record.ID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (model.CompileRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.reports[id]
	if !ok {
		return model.CompileRecord{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (s *MemoryStore) ListReports(_ context.Context, filter model.ReportFilter) ([]model.CompileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CompileRecord, 0, len(s.reports))
	for _, record := range s.reports {
		if filter.Matches(record) {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteReport(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return false, nil
	}
	delete(s.reports, id)
	return true, nil
}

func cloneRecord(r model.CompileRecord) model.CompileRecord {
	r.Passes = append([]string(nil), r.Passes...)
	r.Timings = append([]model.PassTiming(nil), r.Timings...)
	r.Attributes = append([]byte(nil), r.Attributes...)
	return r
}
