package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// maxErrBody caps how much of an error response body is kept for diagnostics.
const maxErrBody = 8 * 1024

// Client downloads registry artifacts over HTTP(S). Failures surface as
// *ClientError or *NotSuccessful so the retry layer can classify them.
type Client struct {
	name       string
	httpClient *http.Client
	caps       Capabilities

	Monitor *Monitor
}

// NewClient creates a new download client.
func NewClient(name string, timeout time.Duration, caps Capabilities) *Client {
	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   caps.HTTP2,
	}
	if caps.Proxy {
		tr.Proxy = http.ProxyFromEnvironment
	}
	if !caps.HTTP2 {
		// Empty map disables the bundled h2 upgrade
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &Client{
		name: name,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		caps:    caps,
		Monitor: NewMonitor(),
	}
}

// Name returns the client's name.
func (c *Client) Name() string {
	return c.name
}

// DownloadInfo summarizes a completed download.
type DownloadInfo struct {
	URL        string
	StatusCode int
	Bytes      int64
	Latency    time.Duration
}

// Download fetches rawURL and streams the body into w.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (*DownloadInfo, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.Monitor.RecordFailure()
		return nil, &ClientError{Kind: KindSend, URL: rawURL, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Monitor.RecordFailure()
		return nil, classifyRequestError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		c.Monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Monitor.RecordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, &NotSuccessful{
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			Body:       body,
		}
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		c.Monitor.RecordFailure()
		return nil, classifyBodyError(rawURL, err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		c.Monitor.RecordFailure()
		return nil, &ClientError{Kind: KindPartialFile, URL: rawURL, Err: io.ErrUnexpectedEOF}
	}

	latency := time.Since(start)
	c.Monitor.RecordSuccess(latency)

	return &DownloadInfo{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Bytes:      written,
		Latency:    latency,
	}, nil
}

// classifyRequestError maps a failed exchange onto a ClientError kind. Typed
// checks first, message sniffing only as a last resort.
func classifyRequestError(url string, err error) *ClientError {
	kind := KindUnknown

	var (
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		recordErr tls.RecordHeaderError
		x509Err   x509.UnknownAuthorityError
		goAway    http2.GoAwayError
		streamErr http2.StreamError
		opErr     *net.OpError
		netErr    net.Error
	)

	switch {
	case errors.As(err, &dnsErr):
		kind = KindCouldntResolveHost
	case errors.As(err, &certErr), errors.As(err, &recordErr), errors.As(err, &x509Err):
		kind = KindSSLConnect
	case errors.As(err, &streamErr):
		kind = KindHTTP2Stream
	case errors.As(err, &goAway):
		kind = KindHTTP2
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindOperationTimedOut
	case errors.As(err, &opErr):
		switch opErr.Op {
		case "dial":
			kind = KindCouldntConnect
		case "read":
			kind = KindRecv
		case "write":
			kind = KindSend
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindOperationTimedOut
	case strings.Contains(strings.ToLower(err.Error()), "proxy"):
		kind = KindCouldntResolveProxy
	}

	return &ClientError{Kind: kind, URL: url, Err: err}
}

// classifyBodyError maps a failure while streaming the response body.
func classifyBodyError(url string, err error) *ClientError {
	kind := KindRecv
	if errors.Is(err, io.ErrUnexpectedEOF) {
		kind = KindPartialFile
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindOperationTimedOut
	}
	return &ClientError{Kind: kind, URL: url, Err: err}
}
