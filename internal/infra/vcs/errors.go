package vcs

import "fmt"

// ErrorClass groups git transport failures by subsystem.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassNet
	ClassOS
	ClassZlib
	ClassHTTP
	ClassRepository
	ClassReference
	ClassSSL
)

var classNames = map[ErrorClass]string{
	ClassNone:       "none",
	ClassNet:        "net",
	ClassOS:         "os",
	ClassZlib:       "zlib",
	ClassHTTP:       "http",
	ClassRepository: "repository",
	ClassReference:  "reference",
	ClassSSL:        "ssl",
}

func (c ErrorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "none"
}

// ErrorCode identifies a specific git transport failure inside a class.
type ErrorCode int

const (
	CodeGeneric ErrorCode = iota
	CodeNotFound
	CodeAuth
	// CodeCertificate marks a failed server certificate check. Retrying
	// cannot change a trust decision, so it is never treated as spurious
	// whatever the class says.
	CodeCertificate
	CodeEOF
	CodeTimeout
)

var codeNames = map[ErrorCode]string{
	CodeGeneric:     "generic",
	CodeNotFound:    "not_found",
	CodeAuth:        "auth",
	CodeCertificate: "certificate",
	CodeEOF:         "eof",
	CodeTimeout:     "timeout",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "generic"
}

// TransportError is a failure raised by the git smart-HTTP transport.
type TransportError struct {
	Class ErrorClass
	Code  ErrorCode
	Msg   string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("git transport [%s/%s]: %s: %v", e.Class, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("git transport [%s/%s]: %s", e.Class, e.Code, e.Msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FetchError is raised by the fetch pipeline above the raw transport. It
// knows on its own whether the failure is likely transient; the retry layer
// defers to that verbatim.
type FetchError struct {
	Op       string
	Err      error
	spurious bool
}

// NewFetchError marks a fetch failure, flagging whether it is worth retrying.
func NewFetchError(op string, err error, spurious bool) *FetchError {
	return &FetchError{Op: op, Err: err, spurious: spurious}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Spurious reports whether the failure is likely transient.
func (e *FetchError) Spurious() bool {
	return e.spurious
}
