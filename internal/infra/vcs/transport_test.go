package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const advertisementType = "application/x-git-upload-pack-advertisement"

func pkt(line string) string {
	return fmt.Sprintf("%04x%s", len(line)+4, line)
}

func advertise(refs ...string) string {
	var b strings.Builder
	b.WriteString(pkt("# service=git-upload-pack\n"))
	b.WriteString("0000")
	for i, ref := range refs {
		if i == 0 {
			// First line carries capabilities after a NUL
			b.WriteString(pkt(ref + "\x00multi_ack side-band-64k\n"))
		} else {
			b.WriteString(pkt(ref + "\n"))
		}
	}
	b.WriteString("0000")
	return b.String()
}

const (
	headHash = "4f3d9b1a2c8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a"
	mainHash = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
)

func refServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/info/refs") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("service") != uploadPackService {
			http.Error(w, "dumb protocol not supported", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", advertisementType)
		w.Write([]byte(advertise(
			headHash+" HEAD",
			mainHash+" refs/heads/main",
		)))
	}))
}

func TestTransport_LsRemote(t *testing.T) {
	server := refServer(t)
	defer server.Close()

	refs, err := NewTransport(5*time.Second).LsRemote(context.Background(), server.URL+"/repo.git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if refs[0].Name != "HEAD" || refs[0].Hash != headHash {
		t.Errorf("first ref = %+v, want HEAD", refs[0])
	}
	if refs[1].Name != "refs/heads/main" || refs[1].Hash != mainHash {
		t.Errorf("second ref = %+v, want refs/heads/main", refs[1])
	}
}

func TestTransport_LsRemoteNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewTransport(5*time.Second).LsRemote(context.Background(), server.URL+"/missing.git")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if te.Class != ClassHTTP || te.Code != CodeNotFound {
		t.Errorf("class/code = %v/%v, want http/not_found", te.Class, te.Code)
	}
}

func TestTransport_LsRemoteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewTransport(5*time.Second).LsRemote(context.Background(), server.URL+"/repo.git")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if te.Class != ClassHTTP || te.Code != CodeGeneric {
		t.Errorf("class/code = %v/%v, want http/generic", te.Class, te.Code)
	}
}

func TestTransport_LsRemoteTruncatedAdvertisement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", advertisementType)
		// Claim a long payload and stop early
		w.Write([]byte("0040" + "incomplete"))
	}))
	defer server.Close()

	_, err := NewTransport(5*time.Second).LsRemote(context.Background(), server.URL+"/repo.git")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if te.Class != ClassNet || te.Code != CodeEOF {
		t.Errorf("class/code = %v/%v, want net/eof", te.Class, te.Code)
	}
}

func TestTransport_LsRemoteWrongContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not a git server</html>"))
	}))
	defer server.Close()

	_, err := NewTransport(5*time.Second).LsRemote(context.Background(), server.URL+"/repo.git")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if te.Class != ClassHTTP {
		t.Errorf("class = %v, want http", te.Class)
	}
}

func TestFetcher_Resolve(t *testing.T) {
	server := refServer(t)
	defer server.Close()

	fetcher := NewFetcher(NewTransport(5 * time.Second))

	hash, err := fetcher.Resolve(context.Background(), server.URL+"/repo.git", "refs/heads/main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != mainHash {
		t.Errorf("hash = %s, want %s", hash, mainHash)
	}
}

func TestFetcher_ResolveMissingRefIsFatal(t *testing.T) {
	server := refServer(t)
	defer server.Close()

	fetcher := NewFetcher(NewTransport(5 * time.Second))

	_, err := fetcher.Resolve(context.Background(), server.URL+"/repo.git", "refs/heads/nope")

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, want *FetchError", err)
	}
	if fe.Spurious() {
		t.Error("missing ref must not be spurious")
	}
}

func TestFetcher_ResolveDroppedConnectionIsSpurious(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", advertisementType)
		w.Write([]byte("0040trunc"))
	}))
	defer server.Close()

	fetcher := NewFetcher(NewTransport(5 * time.Second))

	_, err := fetcher.Resolve(context.Background(), server.URL+"/repo.git", "HEAD")

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, want *FetchError", err)
	}
	if !fe.Spurious() {
		t.Error("dropped connection should be spurious")
	}
}
