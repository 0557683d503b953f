package netretry

import (
	"errors"

	"google.golang.org/grpc/codes"

	"github.com/vietddude/fetcher/internal/infra/transport"
	"github.com/vietddude/fetcher/internal/infra/vcs"
)

// maybeSpurious reports whether err looks like a transient network failure
// worth retrying. It matches the error chain against the known transport
// error types, so a root cause wrapped in any number of context layers still
// classifies. Anything not recognized is not retried.
func maybeSpurious(err error) bool {
	var te *vcs.TransportError
	if errors.As(err, &te) {
		switch te.Class {
		case vcs.ClassNet, vcs.ClassOS, vcs.ClassZlib, vcs.ClassHTTP:
			// Certificate failures are trust decisions, retrying cannot
			// change them.
			return te.Code != vcs.CodeCertificate
		}
	}

	var ce *transport.ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case transport.KindCouldntConnect,
			transport.KindCouldntResolveProxy,
			transport.KindCouldntResolveHost,
			transport.KindOperationTimedOut,
			transport.KindRecv,
			transport.KindSend,
			transport.KindHTTP2,
			transport.KindHTTP2Stream,
			transport.KindSSLConnect,
			transport.KindPartialFile:
			return true
		}
	}

	var ns *transport.NotSuccessful
	if errors.As(err, &ns) {
		if 500 <= ns.StatusCode && ns.StatusCode < 600 {
			return true
		}
	}

	var me *transport.MirrorError
	if errors.As(err, &me) {
		switch me.Code {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}

	var fe *vcs.FetchError
	if errors.As(err, &fe) {
		if fe.Spurious() {
			return true
		}
	}

	return false
}

// RootCause returns the innermost error of the wrap chain. Warnings show the
// root cause instead of the full context stack.
func RootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
