package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"medkit-service/ddd/domain/entity"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/vo"
)

// MemoryJobRepository keeps job records in process, used when no database is configured.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]entity.JobSnapshot
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]entity.JobSnapshot)}
}

func (r *MemoryJobRepository) CreateJob(_ context.Context, job *entity.JobEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID()] = job.Snapshot()
	return nil
}

func (r *MemoryJobRepository) GetJob(_ context.Context, jobID string) (*entity.JobEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.jobs[jobID]
	if !ok {
		return nil, repo.ErrJobNotFound
	}
	return entity.RestoreJobEntity(s), nil
}

func (r *MemoryJobRepository) SaveJobIfStatus(_ context.Context, job *entity.JobEntity, expected vo.JobStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[job.JobID()]
	if !ok || cur.Status != expected {
		return false, nil
	}
	r.jobs[job.JobID()] = job.Snapshot()
	return true, nil
}

func (r *MemoryJobRepository) UpdateJobProgress(_ context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jobs[jobID]
	if !ok || s.Status != vo.JobStatusProcessing || progress <= s.Progress {
		return nil
	}
	s.Progress = progress
	s.UpdatedAt = time.Now()
	r.jobs[jobID] = s
	return nil
}

func (r *MemoryJobRepository) QueryJobsByStatus(_ context.Context, status vo.JobStatus, limit int) ([]*entity.JobEntity, error) {
	return r.collect(limit, func(s entity.JobSnapshot) bool { return s.Status == status },
		func(a, b entity.JobSnapshot) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

func (r *MemoryJobRepository) ListExpiredJobs(_ context.Context, before time.Time, limit int) ([]*entity.JobEntity, error) {
	return r.collect(limit, func(s entity.JobSnapshot) bool { return s.Status.IsTerminal() && s.ExpiresAt.Before(before) },
		func(a, b entity.JobSnapshot) bool { return a.ExpiresAt.Before(b.ExpiresAt) }), nil
}

func (r *MemoryJobRepository) DeleteJob(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
	return nil
}

func (r *MemoryJobRepository) collect(limit int, match func(entity.JobSnapshot) bool, less func(a, b entity.JobSnapshot) bool) []*entity.JobEntity {
	r.mu.RLock()
	picked := make([]entity.JobSnapshot, 0)
	for _, s := range r.jobs {
		if match(s) {
			picked = append(picked, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(picked, func(i, j int) bool { return less(picked[i], picked[j]) })
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}
	out := make([]*entity.JobEntity, 0, len(picked))
	for _, s := range picked {
		out = append(out, entity.RestoreJobEntity(s))
	}
	return out
}

var _ repo.JobRepository = (*MemoryJobRepository)(nil)
