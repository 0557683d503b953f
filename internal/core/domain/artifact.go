package domain

// SourceKind identifies which transport serves a fetch job.
type SourceKind string

const (
	SourceHTTP   SourceKind = "http"   // direct artifact download
	SourceGit    SourceKind = "git"    // git smart-HTTP ref discovery / fetch
	SourceMirror SourceKind = "mirror" // gRPC registry mirror
)

// Artifact describes a downloadable registry artifact.
type Artifact struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
}

// FetchJob is a unit of work for the fetch worker.
type FetchJob struct {
	ID     string     `json:"id"`
	Source SourceKind `json:"source"`
	URL    string     `json:"url"`
}
