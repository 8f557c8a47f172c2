package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// RecordStore persists execution records. Implementations store copies;
// callers never share a record with the store.
type RecordStore interface {
	Save(ctx context.Context, record *ExecutionRecord) error
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*ExecutionRecord, error)
	ListByStatus(ctx context.Context, status ExecutionStatus) ([]*ExecutionRecord, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryRecordStore keeps records in process memory
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*ExecutionRecord
	maxSize int
	order   []string
}

// NewMemoryRecordStore creates a store that keeps at most maxSize records
// (oldest evicted first); zero means unbounded.
func NewMemoryRecordStore(maxSize int) *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]*ExecutionRecord),
		maxSize: maxSize,
	}
}

// Save implements RecordStore
func (s *MemoryRecordStore) Save(_ context.Context, record *ExecutionRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record must have an id")
	}
	cp := record.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[cp.ID]; !exists {
		s.order = append(s.order, cp.ID)
	}
	s.records[cp.ID] = cp
	for s.maxSize > 0 && len(s.order) > s.maxSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}
	return nil
}

// Get implements RecordStore
func (s *MemoryRecordStore) Get(_ context.Context, id string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return rec.Clone(), nil
}

// ListByWorkflow implements RecordStore
func (s *MemoryRecordStore) ListByWorkflow(_ context.Context, workflowID string) ([]*ExecutionRecord, error) {
	return s.filter(func(r *ExecutionRecord) bool { return r.WorkflowID == workflowID }), nil
}

// ListByStatus implements RecordStore
func (s *MemoryRecordStore) ListByStatus(_ context.Context, status ExecutionStatus) ([]*ExecutionRecord, error) {
	return s.filter(func(r *ExecutionRecord) bool { return r.Status == status }), nil
}

func (s *MemoryRecordStore) filter(match func(*ExecutionRecord) bool) []*ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExecutionRecord, 0)
	for _, id := range s.order {
		if rec := s.records[id]; match(rec) {
			out = append(out, rec.Clone())
		}
	}
	SortRecords(out)
	return out
}

// Delete implements RecordStore
func (s *MemoryRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping implements RecordStore
func (s *MemoryRecordStore) Ping(context.Context) error { return nil }

// Close implements RecordStore
func (s *MemoryRecordStore) Close() error { return nil }

// Len returns the number of stored records
func (s *MemoryRecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SortRecords orders records by start time, newest first
func SortRecords(records []*ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
}
