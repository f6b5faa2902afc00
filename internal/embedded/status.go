// Package embedded is the in-process cache library driven by the subsystem services: a single
// member cache manager, its caches backed by the sharded data container, counters, server tasks,
// cross-site administration and the event log.
package embedded

import (
	"errors"
)

// Version is reported by the version metrics.
const Version = "9.4.0.Final"

// Status is the lifecycle state of a cache or cache manager.
type Status string

const (
	StatusInstantiated Status = "INSTANTIATED"
	StatusInitializing Status = "INITIALIZING"
	StatusRunning      Status = "RUNNING"
	StatusStopping     Status = "STOPPING"
	StatusTerminated   Status = "TERMINATED"
	StatusFailed       Status = "FAILED"
)

func (s Status) AllowInvocations() bool { return s == StatusRunning }

var (
	ErrNotRunning         = errors.New("not running")
	ErrUndefinedCache     = errors.New("no configuration defined for cache")
	ErrCacheRunning       = errors.New("cache is running")
	ErrNotTransactional   = errors.New("cache is not transactional")
	ErrTransactionUnknown = errors.New("no such transaction")
	ErrUnknownSite        = errors.New("no such backup site")
)
