package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/fetcher/internal/core/domain"
)

// FetchRepo implements storage.FetchHistoryRepository using PostgreSQL.
type FetchRepo struct {
	db *DB
}

// NewFetchRepo creates a new PostgreSQL fetch history repository.
func NewFetchRepo(db *DB) *FetchRepo {
	return &FetchRepo{db: db}
}

// Record inserts one completed fetch session.
func (r *FetchRepo) Record(ctx context.Context, rec *domain.FetchRecord) error {
	query := `
		INSERT INTO fetch_history (id, job_id, source, url, bytes, attempts, retries, outcome, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.JobID,
		rec.Source,
		rec.URL,
		rec.Bytes,
		rec.Attempts,
		rec.Retries,
		rec.Outcome,
		rec.Error,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// Recent returns the most recent fetch records.
func (r *FetchRepo) Recent(ctx context.Context, limit int) ([]*domain.FetchRecord, error) {
	query := `
		SELECT id, job_id, source, url, bytes, attempts, retries, outcome, error_msg, started_at, finished_at
		FROM fetch_history
		ORDER BY finished_at DESC
		LIMIT $1
	`

	var rows []struct {
		ID         string    `db:"id"`
		JobID      string    `db:"job_id"`
		Source     string    `db:"source"`
		URL        string    `db:"url"`
		Bytes      int64     `db:"bytes"`
		Attempts   int       `db:"attempts"`
		Retries    int       `db:"retries"`
		Outcome    string    `db:"outcome"`
		ErrorMsg   string    `db:"error_msg"`
		StartedAt  time.Time `db:"started_at"`
		FinishedAt time.Time `db:"finished_at"`
	}

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list fetch history: %w", err)
	}

	records := make([]*domain.FetchRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &domain.FetchRecord{
			ID:         row.ID,
			JobID:      row.JobID,
			Source:     domain.SourceKind(row.Source),
			URL:        row.URL,
			Bytes:      row.Bytes,
			Attempts:   row.Attempts,
			Retries:    row.Retries,
			Outcome:    domain.FetchOutcome(row.Outcome),
			Error:      row.ErrorMsg,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
		})
	}
	return records, nil
}

// CountByOutcome returns how many sessions finished with the given outcome.
func (r *FetchRepo) CountByOutcome(ctx context.Context, outcome domain.FetchOutcome) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM fetch_history WHERE outcome = $1`, string(outcome))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count fetch history: %w", err)
	}
	return count, nil
}
