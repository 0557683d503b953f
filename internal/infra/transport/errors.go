package transport

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// ErrKind identifies a low-level HTTP/TLS client failure. Each kind maps one
// failure mode observed while talking to a registry endpoint; the retry layer
// matches on these instead of inspecting stdlib error types itself.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindCouldntConnect
	KindCouldntResolveProxy
	KindCouldntResolveHost
	KindOperationTimedOut
	KindRecv
	KindSend
	KindHTTP2
	KindHTTP2Stream
	KindSSLConnect
	KindPartialFile
)

var errKindNames = map[ErrKind]string{
	KindUnknown:             "unknown",
	KindCouldntConnect:      "couldnt_connect",
	KindCouldntResolveProxy: "couldnt_resolve_proxy",
	KindCouldntResolveHost:  "couldnt_resolve_host",
	KindOperationTimedOut:   "operation_timedout",
	KindRecv:                "recv_error",
	KindSend:                "send_error",
	KindHTTP2:               "http2_error",
	KindHTTP2Stream:         "http2_stream_error",
	KindSSLConnect:          "ssl_connect_error",
	KindPartialFile:         "partial_file",
}

func (k ErrKind) String() string {
	if name, ok := errKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ClientError is a failed HTTP/TLS exchange, before any response completed.
type ClientError struct {
	Kind ErrKind
	URL  string
	Err  error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NotSuccessful is a completed HTTP exchange with a non-2xx status.
type NotSuccessful struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *NotSuccessful) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("failed to get successful HTTP response from `%s` (%d), got:\n%s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to get successful HTTP response from `%s` (%d)", e.URL, e.StatusCode)
}

// MirrorError is a failed call to a gRPC registry mirror. Code carries the
// grpc status so the retry layer can separate transient mirror outages from
// hard failures.
type MirrorError struct {
	Code     codes.Code
	Endpoint string
	Err      error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %s: %v", e.Endpoint, e.Code, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}
