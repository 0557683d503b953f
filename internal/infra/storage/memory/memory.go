package memory

import (
	"context"
	"sync"

	"github.com/vietddude/fetcher/internal/core/domain"
)

// MemoryStorage keeps fetch history in memory. Used when no database is
// configured; history is lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	history []*domain.FetchRecord
	failed  map[string]*domain.FailedFetch
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		failed: make(map[string]*domain.FailedFetch),
	}
}

// FetchRepo implements storage.FetchHistoryRepository in memory.
type FetchRepo struct {
	store *MemoryStorage
}

func NewFetchRepo(store *MemoryStorage) *FetchRepo {
	return &FetchRepo{store: store}
}

func (r *FetchRepo) Record(_ context.Context, rec *domain.FetchRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.history = append(r.store.history, rec)
	return nil
}

func (r *FetchRepo) Recent(_ context.Context, limit int) ([]*domain.FetchRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n := len(r.store.history)
	if limit > n {
		limit = n
	}
	out := make([]*domain.FetchRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.store.history[i])
	}
	return out, nil
}

func (r *FetchRepo) CountByOutcome(_ context.Context, outcome domain.FetchOutcome) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	for _, rec := range r.store.history {
		if rec.Outcome == outcome {
			count++
		}
	}
	return count, nil
}

// FailedRepo implements storage.FailedFetchRepository in memory.
type FailedRepo struct {
	store *MemoryStorage
}

func NewFailedRepo(store *MemoryStorage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(_ context.Context, ff *domain.FailedFetch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ff.Status == "" {
		ff.Status = domain.FailedFetchStatusPending
	}
	r.store.failed[ff.ID] = ff
	return nil
}

func (r *FailedRepo) Pending(_ context.Context, limit int) ([]*domain.FailedFetch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.FailedFetch, 0, limit)
	for _, ff := range r.store.failed {
		if ff.Status != domain.FailedFetchStatusPending {
			continue
		}
		out = append(out, ff)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *FailedRepo) UpdateStatus(_ context.Context, id string, status domain.FailedFetchStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ff, ok := r.store.failed[id]; ok {
		ff.Status = status
	}
	return nil
}
