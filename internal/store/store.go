// Package store holds the client-side state managers: session, directory
// and task collections, each sourced preferentially from the remote service
// with the durable local cache as fallback.
//
// Store operations are designed for a single logical caller, mirroring the
// original single-threaded client: mutations are never interleaved against
// the same collection, so the stores carry no locks. Callers that need
// concurrent access must serialize externally.
package store

import (
	"log/slog"
	"time"
)

// State is a store's load lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Source names the effective source of truth for a collection or mutation.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// ApplyResult reports where a mutation took effect. Callers see success
// either way; the source is kept for observability.
type ApplyResult struct {
	Source Source `json:"source"`
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func nowFunc(f func() time.Time) time.Time {
	if f != nil {
		return f()
	}
	return time.Now()
}
