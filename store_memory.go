package payflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryCheckpointStore is an in-memory CheckpointStore. Records are held in
// serialized form so that every Save/Get pair performs the same full JSON
// round-trip a durable store would, and so callers never share memory with
// stored records.
type MemoryCheckpointStore struct {
	mutex   sync.RWMutex
	records map[string][]byte
}

// NewMemoryCheckpointStore returns an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{records: map[string][]byte{}}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, record *CheckpointRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return WrapPersistenceError(err, "failed to marshal checkpoint")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[record.CheckpointID]; exists {
		return NewPipelineError(ErrorTypePersistence, "checkpoint already exists: "+record.CheckpointID)
	}
	s.records[record.CheckpointID] = data
	return nil
}

func (s *MemoryCheckpointStore) Get(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	s.mutex.RLock()
	data, ok := s.records[checkpointID]
	s.mutex.RUnlock()

	if !ok {
		return nil, NewPipelineError(ErrorTypeNotFound, "checkpoint not found: "+checkpointID)
	}
	var record CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, WrapPersistenceError(err, "failed to unmarshal checkpoint")
	}
	return &record, nil
}

func (s *MemoryCheckpointStore) RecordDecision(ctx context.Context, checkpointID string, decision ReviewDecision, reviewerID, notes string) (*CheckpointRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, ok := s.records[checkpointID]
	if !ok {
		return nil, NewPipelineError(ErrorTypeNotFound, "checkpoint not found: "+checkpointID)
	}
	var record CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, WrapPersistenceError(err, "failed to unmarshal checkpoint")
	}
	if record.Status != CheckpointStatusPending {
		return nil, NewPipelineError(ErrorTypeAlreadyDecided, "checkpoint already decided: "+checkpointID)
	}

	record.Status = CheckpointStatusDecided
	record.Decision = decision
	record.ReviewerID = reviewerID
	record.DecisionNotes = notes
	record.DecidedAt = now()

	updated, err := json.Marshal(&record)
	if err != nil {
		return nil, WrapPersistenceError(err, "failed to marshal checkpoint")
	}
	s.records[checkpointID] = updated
	return &record, nil
}

func (s *MemoryCheckpointStore) ListPending(ctx context.Context) ([]*PendingReview, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var pending []*PendingReview
	for _, data := range s.records {
		var record CheckpointRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, WrapPersistenceError(err, "failed to unmarshal checkpoint")
		}
		if record.Status == CheckpointStatusPending {
			pending = append(pending, record.Summary())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.records, checkpointID)
	return nil
}
