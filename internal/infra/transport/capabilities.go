package transport

import (
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/net/http2"
)

// Capabilities describes what the HTTP stack supports in this process. It is
// probed once at startup and injected into every client instead of branching
// at call sites.
type Capabilities struct {
	HTTP2 bool
	Proxy bool
}

// DetectCapabilities probes the local HTTP stack. A failed HTTP/2 setup is
// downgraded to HTTP/1.1 with a warning rather than failing startup.
func DetectCapabilities(log *slog.Logger) Capabilities {
	caps := Capabilities{Proxy: true}

	probe := &http.Transport{}
	if _, err := http2.ConfigureTransports(probe); err != nil {
		log.Warn("HTTP/2 unavailable, falling back to HTTP/1.1", "error", err)
	} else {
		caps.HTTP2 = true
	}

	if os.Getenv("FETCHER_NO_PROXY") != "" {
		caps.Proxy = false
	}

	return caps
}
