// Package journal records automation task executions so operators can see
// what ran, when, and how it ended. The memory store backs tests and local
// runs; the postgres subpackage persists across restarts.
package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one task execution.
type Record struct {
	ID         string        `db:"id" json:"id"`
	TaskID     string        `db:"task_id" json:"task_id"`
	StartedAt  time.Time     `db:"started_at" json:"started_at"`
	FinishedAt time.Time     `db:"finished_at" json:"finished_at"`
	Duration   time.Duration `db:"-" json:"duration_ns"`
	Success    bool          `db:"success" json:"success"`
	Error      string        `db:"error" json:"error,omitempty"`
}

// Store persists execution records.
type Store interface {
	RecordExecution(ctx context.Context, rec Record) (Record, error)
	ListExecutions(ctx context.Context, taskID string, limit int) ([]Record, error)
	LastRun(ctx context.Context, taskID string) (Record, bool, error)
}

// MemoryStore keeps records in process memory, newest first per task.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordExecution(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Duration == 0 {
		rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, taskID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if taskID == "" || rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LastRun(ctx context.Context, taskID string) (Record, bool, error) {
	recs, err := s.ListExecutions(ctx, taskID, 1)
	if err != nil || len(recs) == 0 {
		return Record{}, false, err
	}
	return recs[0], true, nil
}
