package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mobilemech/internal/domain"
	"mobilemech/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverRunRepository writes to primary until it errors, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverRunRepository struct {
	primary   domain.RunRepository
	fallback  domain.RunRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverRunRepository(primary, fallback domain.RunRepository, logger *zerolog.Logger) *FailoverRunRepository {
	return &FailoverRunRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverRunRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary run repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

// shouldProbe reports whether a downed primary is due for another attempt.
func (r *FailoverRunRepository) shouldProbe() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverRunRepository) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if r.shouldProbe() {
		err := r.primary.SaveRun(ctx, run)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary run repository recovered")
			}
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SaveRun(ctx, run)
}

func (r *FailoverRunRepository) RecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if r.shouldProbe() {
		runs, err := r.primary.RecentRuns(ctx, limit)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary run repository recovered")
			}
			return runs, nil
		}
		r.markDown(err)
	}

	return r.fallback.RecentRuns(ctx, limit)
}
