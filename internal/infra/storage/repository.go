package storage

import (
	"context"

	"github.com/vietddude/fetcher/internal/core/domain"
)

// FetchHistoryRepository records completed fetch sessions.
type FetchHistoryRepository interface {
	Record(ctx context.Context, rec *domain.FetchRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.FetchRecord, error)
	CountByOutcome(ctx context.Context, outcome domain.FetchOutcome) (int64, error)
}

// FailedFetchRepository persists fetches that exhausted their replay budget.
type FailedFetchRepository interface {
	Add(ctx context.Context, ff *domain.FailedFetch) error
	Pending(ctx context.Context, limit int) ([]*domain.FailedFetch, error)
	UpdateStatus(ctx context.Context, id string, status domain.FailedFetchStatus) error
}
