package domain

import "time"

// FetchOutcome is the terminal state of one fetch session.
type FetchOutcome string

const (
	FetchOutcomeSuccess FetchOutcome = "success"
	FetchOutcomeFailed  FetchOutcome = "failed"
)

// FetchRecord is one row of fetch history.
type FetchRecord struct {
	ID         string       `json:"id"          db:"id"`
	JobID      string       `json:"job_id"      db:"job_id"`
	Source     SourceKind   `json:"source"      db:"source"`
	URL        string       `json:"url"         db:"url"`
	Bytes      int64        `json:"bytes"       db:"bytes"`
	Attempts   int          `json:"attempts"    db:"attempts"`
	Retries    int          `json:"retries"     db:"retries"`
	Outcome    FetchOutcome `json:"outcome"     db:"outcome"`
	Error      string       `json:"error_msg"   db:"error_msg"`
	StartedAt  time.Time    `json:"started_at"  db:"started_at"`
	FinishedAt time.Time    `json:"finished_at" db:"finished_at"`
}

// FailedFetch represents a fetch that failed and is queued for replay.
type FailedFetch struct {
	ID          string            `json:"id"`
	Source      SourceKind        `json:"source"`
	URL         string            `json:"url"`
	FailureType FailureType       `json:"failure_type"`
	Error       string            `json:"error_msg"`
	RetryCount  int               `json:"retry_count"`
	Status      FailedFetchStatus `json:"status"`
	LastAttempt int64             `json:"last_attempt"`
	CreatedAt   int64             `json:"created_at"`
}

type FailedFetchStatus string

const (
	FailedFetchStatusPending  FailedFetchStatus = "pending"
	FailedFetchStatusResolved FailedFetchStatus = "resolved"
	FailedFetchStatusIgnored  FailedFetchStatus = "ignored"
)

type FailureType string

const (
	FailureTypeNetwork   FailureType = "network"
	FailureTypeOutcome   FailureType = "outcome"
	FailureTypeVCS       FailureType = "vcs"
	FailureTypePermanent FailureType = "permanent"
)
