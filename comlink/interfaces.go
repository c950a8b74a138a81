// Package comlink is the public, in-process API: Client, Profile,
// UseCase. It wires together variables, comlinkerr, mapast, sandbox,
// httpengine, interpreter, events, failurepolicy, metrics,
// registryclient, and profilecache into the use-case perform pipeline
// described by §4.5/§6. Named collaborators the core consumes but does
// not implement live here as small interfaces, mirroring the teacher's
// own injected HTTPClient/Logger pattern (crawler.go) generalized to the
// full external-interfaces surface.
package comlink

import (
	"context"
	"time"
)

// FileSystem is the injected document-storage collaborator: read/write/
// mkdir/exists/path-resolve/dirname over the document cache.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
	Exists(path string) bool
	Resolve(parts ...string) string
	Dirname(path string) string
}

// FetchResponse is the shape Fetch.Do returns.
type FetchResponse struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Meta       map[string]any // hookable metadata slot; the HTTP engine does not read it (digest/auth state lives in httpengine.AuthCache)
}

// FetchOptions configures one Fetch.Do call.
type FetchOptions struct {
	Method    string
	Headers   map[string]string
	Body      []byte
	TimeoutMs int
}

// Fetch is the injected low-level HTTP collaborator.
type Fetch interface {
	Do(ctx context.Context, url string, opts FetchOptions) (FetchResponse, error)
}

// Crypto is the injected hashing/encoding/randomness collaborator. No
// package in this module consumes it: Digest auth and the cache-key hash
// call the standard crypto packages directly.
type Crypto interface {
	MD5(data []byte) []byte
	SHA256(data []byte) []byte
	Base64Encode(data []byte) string
	Random(n int) ([]byte, error)
}

// Timers is the injected time-source collaborator. metrics.Reporter does
// not take one: its debounce windows run on time.AfterFunc and the wall
// clock.
type Timers interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func())
}

// Logger is the injected debug-only logging collaborator. Mirrors the
// teacher's Logger interface in crawler.go (Debug/Info/Warning/Error),
// generalized with a namespace so each subsystem's messages can be
// filtered independently.
type Logger interface {
	Debug(namespace, msg string, args ...any)
	Info(namespace, msg string, args ...any)
	Warning(namespace, msg string, args ...any)
	Error(namespace, msg string, args ...any)
}
