package vcs

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const uploadPackService = "git-upload-pack"

// Ref is one advertised reference.
type Ref struct {
	Name string
	Hash string
}

// Transport performs git smart-HTTP protocol exchanges. All failures surface
// as *TransportError with a class/code pair.
type Transport struct {
	httpClient *http.Client
}

// NewTransport creates a git smart-HTTP transport.
func NewTransport(timeout time.Duration) *Transport {
	return &Transport{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LsRemote performs ref discovery against repoURL.
func (t *Transport) LsRemote(ctx context.Context, repoURL string) ([]Ref, error) {
	discoveryURL := strings.TrimSuffix(repoURL, "/") + "/info/refs?service=" + uploadPackService

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &TransportError{Class: ClassNet, Code: CodeGeneric, Msg: "building discovery request", Err: err}
	}
	req.Header.Set("Git-Protocol", "version=1")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, &TransportError{Class: ClassHTTP, Code: CodeNotFound,
			Msg: fmt.Sprintf("repository not found at %s", repoURL)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &TransportError{Class: ClassHTTP, Code: CodeAuth,
			Msg: fmt.Sprintf("authentication required for %s", repoURL)}
	default:
		return nil, &TransportError{Class: ClassHTTP, Code: CodeGeneric,
			Msg: fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, discoveryURL)}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-git-upload-pack-advertisement" {
		return nil, &TransportError{Class: ClassHTTP, Code: CodeGeneric,
			Msg: fmt.Sprintf("remote did not speak smart HTTP (content-type %q)", ct)}
	}

	lines, err := parsePktLines(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseRefAdvertisement(lines)
}

// parsePktLines reads git pkt-line framing until EOF. Flush packets are
// dropped.
func parsePktLines(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var lines []string

	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(br, hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return nil, classifyReadError("pkt-line header", err)
		}

		n, err := strconv.ParseUint(string(hdr), 16, 16)
		if err != nil {
			return nil, &TransportError{Class: ClassNet, Code: CodeGeneric,
				Msg: fmt.Sprintf("invalid pkt-line length %q", hdr), Err: err}
		}
		if n == 0 {
			continue // flush-pkt
		}
		if n < 4 {
			return nil, &TransportError{Class: ClassNet, Code: CodeGeneric,
				Msg: fmt.Sprintf("pkt-line length %d out of range", n)}
		}

		payload := make([]byte, n-4)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, classifyReadError("pkt-line payload", err)
		}
		lines = append(lines, strings.TrimRight(string(payload), "\n"))
	}
}

// parseRefAdvertisement extracts refs from upload-pack discovery lines.
func parseRefAdvertisement(lines []string) ([]Ref, error) {
	var refs []Ref
	for _, line := range lines {
		if strings.HasPrefix(line, "# service=") {
			continue
		}
		// First ref line carries capabilities after a NUL
		if i := strings.IndexByte(line, 0); i >= 0 {
			line = line[:i]
		}
		hash, name, ok := strings.Cut(line, " ")
		if !ok || len(hash) < 40 {
			continue
		}
		refs = append(refs, Ref{Name: name, Hash: hash})
	}
	if len(refs) == 0 {
		return nil, &TransportError{Class: ClassNet, Code: CodeEOF,
			Msg: "remote sent an empty ref advertisement"}
	}
	return refs, nil
}

// classifyExchangeError maps a failed HTTP exchange onto a transport
// class/code pair.
func classifyExchangeError(err error) *TransportError {
	var (
		certErr *tls.CertificateVerificationError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		sysErr  *os.SyscallError
		netErr  net.Error
	)

	switch {
	case errors.As(err, &certErr), errors.As(err, &authErr), errors.As(err, &hostErr):
		// Trust failure, surfaced with the HTTP class like the rest of the
		// smart-HTTP path but with the certificate code.
		return &TransportError{Class: ClassHTTP, Code: CodeCertificate, Msg: "server certificate rejected", Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Class: ClassNet, Code: CodeTimeout, Msg: "exchange timed out", Err: err}
	case errors.As(err, &sysErr):
		return &TransportError{Class: ClassOS, Code: CodeGeneric, Msg: "system error during exchange", Err: err}
	default:
		return &TransportError{Class: ClassNet, Code: CodeGeneric, Msg: "exchange failed", Err: err}
	}
}

// classifyReadError maps a failure while reading the advertisement stream.
func classifyReadError(what string, err error) *TransportError {
	var flateErr flate.CorruptInputError
	switch {
	case errors.Is(err, gzip.ErrHeader), errors.Is(err, gzip.ErrChecksum), errors.As(err, &flateErr):
		return &TransportError{Class: ClassZlib, Code: CodeGeneric,
			Msg: fmt.Sprintf("corrupt compressed stream reading %s", what), Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return &TransportError{Class: ClassNet, Code: CodeEOF,
			Msg: fmt.Sprintf("connection closed reading %s", what), Err: err}
	default:
		return &TransportError{Class: ClassNet, Code: CodeGeneric,
			Msg: fmt.Sprintf("read failed on %s", what), Err: err}
	}
}
