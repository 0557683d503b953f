package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/fetcher/internal/core/domain"
)

// FailedFetchRepo implements storage.FailedFetchRepository using PostgreSQL.
// It holds fetches that exhausted the replay queue so an operator can requeue
// or ignore them later.
type FailedFetchRepo struct {
	db *DB
}

// NewFailedFetchRepo creates a new PostgreSQL failed fetch repository.
func NewFailedFetchRepo(db *DB) *FailedFetchRepo {
	return &FailedFetchRepo{db: db}
}

// Add adds a failed fetch.
func (r *FailedFetchRepo) Add(ctx context.Context, ff *domain.FailedFetch) error {
	query := `
		INSERT INTO failed_fetches (id, source, url, failure_type, error_msg, retry_count, status, last_attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET retry_count = EXCLUDED.retry_count,
		    error_msg = EXCLUDED.error_msg,
		    status = EXCLUDED.status,
		    last_attempt = NOW()
	`
	status := string(ff.Status)
	if status == "" {
		status = string(domain.FailedFetchStatusPending)
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		ff.ID,
		ff.Source,
		ff.URL,
		ff.FailureType,
		ff.Error,
		ff.RetryCount,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to add failed fetch: %w", err)
	}
	return nil
}

// Pending returns failed fetches waiting for operator action.
func (r *FailedFetchRepo) Pending(ctx context.Context, limit int) ([]*domain.FailedFetch, error) {
	query := `
		SELECT id, source, url, failure_type, error_msg, retry_count, status, last_attempt
		FROM failed_fetches
		WHERE status = 'pending'
		ORDER BY last_attempt ASC
		LIMIT $1
	`

	var rows []struct {
		ID          string    `db:"id"`
		Source      string    `db:"source"`
		URL         string    `db:"url"`
		FailureType string    `db:"failure_type"`
		ErrorMsg    string    `db:"error_msg"`
		RetryCount  int       `db:"retry_count"`
		Status      string    `db:"status"`
		LastAttempt time.Time `db:"last_attempt"`
	}

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list failed fetches: %w", err)
	}

	fetches := make([]*domain.FailedFetch, 0, len(rows))
	for _, row := range rows {
		fetches = append(fetches, &domain.FailedFetch{
			ID:          row.ID,
			Source:      domain.SourceKind(row.Source),
			URL:         row.URL,
			FailureType: domain.FailureType(row.FailureType),
			Error:       row.ErrorMsg,
			RetryCount:  row.RetryCount,
			Status:      domain.FailedFetchStatus(row.Status),
			LastAttempt: row.LastAttempt.Unix(),
		})
	}
	return fetches, nil
}

// UpdateStatus marks a failed fetch resolved or ignored.
func (r *FailedFetchRepo) UpdateStatus(ctx context.Context, id string, status domain.FailedFetchStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE failed_fetches SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update failed fetch status: %w", err)
	}
	return nil
}
