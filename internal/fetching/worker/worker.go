package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/fetcher/internal/core/config"
	"github.com/vietddude/fetcher/internal/core/domain"
	"github.com/vietddude/fetcher/internal/fetching/metrics"
	"github.com/vietddude/fetcher/internal/infra/netretry"
	"github.com/vietddude/fetcher/internal/infra/storage"
	"github.com/vietddude/fetcher/internal/infra/transport"
	"github.com/vietddude/fetcher/internal/infra/vcs"
)

// Queue is the replay queue the worker drains.
type Queue interface {
	Next(ctx context.Context) (*domain.FailedFetch, error)
	Requeue(ctx context.Context, ff *domain.FailedFetch) error
	Remove(ctx context.Context, id string) error
	Len(ctx context.Context) (int64, error)
}

// Worker replays queued failed fetches. Every attempt goes through the
// netretry session so transient failures inside one replay are absorbed
// before the job goes back to the queue.
type Worker struct {
	cfg         *config.AppConfig
	queue       Queue
	history     storage.FetchHistoryRepository
	deadLetter  storage.FailedFetchRepository
	client      *transport.Client
	vcsFetcher  *vcs.Fetcher
	mirrors     map[string]*transport.MirrorClient
	downloadDir string
	log         *slog.Logger
}

// New creates a fetch worker.
func New(
	cfg *config.AppConfig,
	queue Queue,
	history storage.FetchHistoryRepository,
	deadLetter storage.FailedFetchRepository,
	client *transport.Client,
	vcsFetcher *vcs.Fetcher,
	mirrors map[string]*transport.MirrorClient,
	downloadDir string,
	log *slog.Logger,
) *Worker {
	return &Worker{
		cfg:         cfg,
		queue:       queue,
		history:     history,
		deadLetter:  deadLetter,
		client:      client,
		vcsFetcher:  vcsFetcher,
		mirrors:     mirrors,
		downloadDir: downloadDir,
		log:         log,
	}
}

// Start runs the replay loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		ff, err := w.queue.Next(ctx)
		if err != nil {
			w.log.Error("Failed to read replay queue", "error", err)
			return
		}
		if ff == nil {
			return
		}

		w.Process(ctx, ff)

		if depth, err := w.queue.Len(ctx); err == nil {
			metrics.FailedFetchQueueDepth.Set(float64(depth))
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Process replays one failed fetch.
func (w *Worker) Process(ctx context.Context, ff *domain.FailedFetch) {
	started := time.Now()
	shell := &countingShell{log: w.log, source: string(ff.Source)}

	bytes, err := w.execute(ctx, shell, ff)
	finished := time.Now()

	source := string(ff.Source)
	metrics.FetchLatency.WithLabelValues(source).Observe(finished.Sub(started).Seconds())

	rec := &domain.FetchRecord{
		ID:         uuid.NewString(),
		JobID:      ff.ID,
		Source:     ff.Source,
		URL:        ff.URL,
		Bytes:      bytes,
		Attempts:   shell.warns + 1,
		Retries:    shell.warns,
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err == nil {
		rec.Outcome = domain.FetchOutcomeSuccess
		metrics.FetchesTotal.WithLabelValues(source, string(domain.FetchOutcomeSuccess)).Inc()
		metrics.BytesFetched.WithLabelValues(source).Add(float64(bytes))

		if rerr := w.queue.Remove(ctx, ff.ID); rerr != nil {
			w.log.Error("Failed to remove replayed fetch", "id", ff.ID, "error", rerr)
		}
		w.log.Info("Replayed fetch", "id", ff.ID, "url", ff.URL, "retries", shell.warns)
	} else {
		rec.Outcome = domain.FetchOutcomeFailed
		rec.Error = err.Error()
		metrics.FetchesTotal.WithLabelValues(source, string(domain.FetchOutcomeFailed)).Inc()
		metrics.TransportErrorsTotal.WithLabelValues(source, errorKind(err)).Inc()

		w.handleFailure(ctx, ff, err)
	}

	if herr := w.history.Record(ctx, rec); herr != nil {
		w.log.Error("Failed to record fetch history", "id", ff.ID, "error", herr)
	}
}

// execute runs the transport operation matching the job's source under a
// retry session.
func (w *Worker) execute(ctx context.Context, shell netretry.Shell, ff *domain.FailedFetch) (int64, error) {
	switch ff.Source {
	case domain.SourceGit:
		_, err := netretry.Do(w.cfg, shell, func() ([]vcs.Ref, error) {
			return w.vcsFetcher.DiscoverRefs(ctx, ff.URL)
		})
		return 0, err

	case domain.SourceMirror:
		mirror, ok := w.mirrors[ff.URL]
		if !ok {
			return 0, fmt.Errorf("unknown mirror %q", ff.URL)
		}
		_, err := netretry.Do(w.cfg, shell, func() (struct{}, error) {
			return struct{}{}, mirror.Ping(ctx)
		})
		return 0, err

	default:
		info, err := netretry.Do(w.cfg, shell, func() (*transport.DownloadInfo, error) {
			return w.download(ctx, ff.URL)
		})
		if err != nil {
			return 0, err
		}
		return info.Bytes, nil
	}
}

// download streams one artifact into the download directory. Partial files
// are removed so a replay starts clean.
func (w *Worker) download(ctx context.Context, rawURL string) (*transport.DownloadInfo, error) {
	name := path.Base(rawURL)
	if name == "." || name == "/" {
		name = uuid.NewString()
	}
	dst := filepath.Join(w.downloadDir, name)

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	info, err := w.client.Download(ctx, rawURL, f)
	cerr := f.Close()
	if err != nil {
		os.Remove(dst)
		return nil, err
	}
	if cerr != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("failed to close %s: %w", dst, cerr)
	}
	return info, nil
}

// handleFailure requeues the fetch or moves it to the dead letter table once
// it has been requeued too often.
func (w *Worker) handleFailure(ctx context.Context, ff *domain.FailedFetch, err error) {
	ff.Error = err.Error()
	ff.FailureType = failureType(err)

	if ff.RetryCount+1 >= w.cfg.Worker.MaxRequeues {
		w.log.Warn("Fetch exhausted requeues, moving to dead letter",
			"id", ff.ID, "url", ff.URL, "error", err)

		if w.deadLetter != nil {
			ff.Status = domain.FailedFetchStatusPending
			if derr := w.deadLetter.Add(ctx, ff); derr != nil {
				w.log.Error("Failed to record dead letter", "id", ff.ID, "error", derr)
			}
		}
		if rerr := w.queue.Remove(ctx, ff.ID); rerr != nil {
			w.log.Error("Failed to drop exhausted fetch", "id", ff.ID, "error", rerr)
		}
		return
	}

	if rerr := w.queue.Requeue(ctx, ff); rerr != nil {
		w.log.Error("Failed to requeue fetch", "id", ff.ID, "error", rerr)
	}
}

// failureType buckets a terminal error for the dead letter table.
func failureType(err error) domain.FailureType {
	var te *vcs.TransportError
	var fe *vcs.FetchError
	if errors.As(err, &te) || errors.As(err, &fe) {
		return domain.FailureTypeVCS
	}
	var ce *transport.ClientError
	var me *transport.MirrorError
	if errors.As(err, &ce) || errors.As(err, &me) {
		return domain.FailureTypeNetwork
	}
	var ns *transport.NotSuccessful
	if errors.As(err, &ns) {
		return domain.FailureTypeOutcome
	}
	return domain.FailureTypePermanent
}

// errorKind labels a terminal fetch failure for the transport error metric.
func errorKind(err error) string {
	var ce *transport.ClientError
	if errors.As(err, &ce) {
		return ce.Kind.String()
	}
	var ns *transport.NotSuccessful
	if errors.As(err, &ns) {
		return fmt.Sprintf("http_%d", ns.StatusCode)
	}
	var te *vcs.TransportError
	if errors.As(err, &te) {
		return te.Class.String() + "/" + te.Code.String()
	}
	var me *transport.MirrorError
	if errors.As(err, &me) {
		return "mirror/" + me.Code.String()
	}
	return "other"
}

// countingShell forwards retry warnings to slog and counts them so the
// session's retries end up in the fetch record and metrics.
type countingShell struct {
	log    *slog.Logger
	source string
	warns  int
}

func (s *countingShell) Warn(msg string) error {
	s.warns++
	metrics.NetRetriesTotal.WithLabelValues(s.source).Inc()
	s.log.Warn(msg)
	return nil
}
