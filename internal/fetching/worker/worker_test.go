package worker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/vietddude/fetcher/internal/core/config"
	"github.com/vietddude/fetcher/internal/core/domain"
	"github.com/vietddude/fetcher/internal/infra/storage/memory"
	"github.com/vietddude/fetcher/internal/infra/transport"
)

type fakeQueue struct {
	items    []*domain.FailedFetch
	requeued []*domain.FailedFetch
	removed  []string
}

func (q *fakeQueue) Next(context.Context) (*domain.FailedFetch, error) {
	if len(q.items) == 0 {
		return nil, nil
	}
	ff := q.items[0]
	q.items = q.items[1:]
	return ff, nil
}

func (q *fakeQueue) Requeue(_ context.Context, ff *domain.FailedFetch) error {
	ff.RetryCount++
	q.requeued = append(q.requeued, ff)
	return nil
}

func (q *fakeQueue) Remove(_ context.Context, id string) error {
	q.removed = append(q.removed, id)
	return nil
}

func (q *fakeQueue) Len(context.Context) (int64, error) {
	return int64(len(q.items)), nil
}

func testWorker(t *testing.T, queue Queue, maxRequeues int) (*Worker, *memory.MemoryStorage) {
	t.Helper()

	retry := 2
	cfg := &config.AppConfig{
		Net: config.NetConfig{
			Retry:   &retry,
			Timeout: 5 * time.Second,
		},
		Worker: config.WorkerConfig{
			PollInterval: time.Second,
			MaxRequeues:  maxRequeues,
		},
	}

	store := memory.NewMemoryStorage()
	client := transport.NewClient("test", 5*time.Second, transport.Capabilities{})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := New(cfg, queue, memory.NewFetchRepo(store), memory.NewFailedRepo(store),
		client, nil, nil, t.TempDir(), log)
	return w, store
}

func TestProcessReplaysAfterSpuriousFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("artifact payload"))
	}))
	defer srv.Close()

	queue := &fakeQueue{}
	w, store := testWorker(t, queue, 3)

	ff := &domain.FailedFetch{
		ID:     "ff-1",
		Source: domain.SourceHTTP,
		URL:    srv.URL + "/pkg-1.0.0.crate",
	}
	w.Process(context.Background(), ff)

	if calls != 2 {
		t.Fatalf("server saw %d requests, want 2", calls)
	}
	if len(queue.removed) != 1 || queue.removed[0] != "ff-1" {
		t.Fatalf("removed = %v, want [ff-1]", queue.removed)
	}
	if len(queue.requeued) != 0 {
		t.Fatalf("requeued = %v, want none", queue.requeued)
	}

	recs, err := memory.NewFetchRepo(store).Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d history records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Outcome != domain.FetchOutcomeSuccess {
		t.Fatalf("outcome = %q, want success", rec.Outcome)
	}
	if rec.Retries != 1 || rec.Attempts != 2 {
		t.Fatalf("retries = %d, attempts = %d, want 1 and 2", rec.Retries, rec.Attempts)
	}
	if rec.Bytes != int64(len("artifact payload")) {
		t.Fatalf("bytes = %d, want %d", rec.Bytes, len("artifact payload"))
	}
}

func TestProcessRequeuesFatalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	queue := &fakeQueue{}
	w, _ := testWorker(t, queue, 3)

	ff := &domain.FailedFetch{
		ID:     "ff-2",
		Source: domain.SourceHTTP,
		URL:    srv.URL + "/gone.crate",
	}
	w.Process(context.Background(), ff)

	if len(queue.requeued) != 1 {
		t.Fatalf("requeued = %v, want one entry", queue.requeued)
	}
	if queue.requeued[0].RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", queue.requeued[0].RetryCount)
	}
	if len(queue.removed) != 0 {
		t.Fatalf("removed = %v, want none", queue.removed)
	}
}

func TestProcessDeadLettersExhaustedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	queue := &fakeQueue{}
	w, store := testWorker(t, queue, 3)

	ff := &domain.FailedFetch{
		ID:         "ff-3",
		Source:     domain.SourceHTTP,
		URL:        srv.URL + "/gone.crate",
		RetryCount: 2,
	}
	w.Process(context.Background(), ff)

	if len(queue.requeued) != 0 {
		t.Fatalf("requeued = %v, want none", queue.requeued)
	}
	if len(queue.removed) != 1 || queue.removed[0] != "ff-3" {
		t.Fatalf("removed = %v, want [ff-3]", queue.removed)
	}

	pending, err := memory.NewFailedRepo(store).Pending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "ff-3" {
		t.Fatalf("dead letters = %v, want ff-3", pending)
	}
}

func TestDownloadCleansUpPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	w, _ := testWorker(t, &fakeQueue{}, 3)

	if _, err := w.download(context.Background(), srv.URL+"/partial.crate"); err == nil {
		t.Fatal("expected error for truncated download")
	}

	entries, err := os.ReadDir(w.downloadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("download dir has %d leftover files, want 0", len(entries))
	}
}
