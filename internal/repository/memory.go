package repository

import (
	"context"
	"sync"

	"mobilemech/internal/models"
)

type MemoryRunRepository struct {
	mu    sync.RWMutex
	runs  []*models.RunRecord
	limit int
}

func NewMemoryRunRepository(limit int) *MemoryRunRepository {
	if limit <= 0 {
		limit = models.DefaultRunHistorySize
	}
	return &MemoryRunRepository{limit: limit}
}

func (r *MemoryRunRepository) SaveRun(_ context.Context, run *models.RunRecord) error {
	cp := *run
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append([]*models.RunRecord{&cp}, r.runs...)
	if len(r.runs) > r.limit {
		r.runs = r.runs[:r.limit]
	}
	return nil
}

func (r *MemoryRunRepository) RecentRuns(_ context.Context, limit int) ([]*models.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.runs) {
		limit = len(r.runs)
	}
	out := make([]*models.RunRecord, limit)
	copy(out, r.runs[:limit])
	return out, nil
}
