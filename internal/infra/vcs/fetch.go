package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Fetcher resolves source dependencies through the git transport.
type Fetcher struct {
	transport *Transport
}

// NewFetcher creates a fetcher on top of a transport.
func NewFetcher(transport *Transport) *Fetcher {
	return &Fetcher{transport: transport}
}

// DiscoverRefs lists the refs advertised by repoURL.
func (f *Fetcher) DiscoverRefs(ctx context.Context, repoURL string) ([]Ref, error) {
	return f.transport.LsRemote(ctx, repoURL)
}

// Resolve finds the hash advertised for refName. A missing ref is a hard
// failure; a dropped connection during discovery is flagged spurious so the
// retry layer replays the whole discovery.
func (f *Fetcher) Resolve(ctx context.Context, repoURL, refName string) (string, error) {
	refs, err := f.transport.LsRemote(ctx, repoURL)
	if err != nil {
		return "", NewFetchError("resolve "+refName, err, isConnectionDrop(err))
	}

	for _, ref := range refs {
		if ref.Name == refName {
			return ref.Hash, nil
		}
	}

	return "", NewFetchError("resolve "+refName,
		fmt.Errorf("ref %q not advertised by %s", refName, repoURL), false)
}

// isConnectionDrop reports whether the transport failure looks like the
// remote hung up mid-exchange.
func isConnectionDrop(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code == CodeEOF
	}
	return false
}
