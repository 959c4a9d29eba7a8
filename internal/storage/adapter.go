// Package storage implements the storage adapter: the single façade through
// which callers create, query, export and import engine data. Writes append
// an event to the log and project it into the query cache in the same
// synchronous path; reads are served from the query cache after the
// reconciler has applied pending events.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/eventlog"
	"github.com/weft-labs/weft/internal/model"
	"github.com/weft-labs/weft/internal/querycache"
	"github.com/weft-labs/weft/internal/reconcile"
)

// Invalidator receives mutation notifications so a caching layer can drop
// stale entries. Every create/update/delete invalidates the touched entity
// and each ancestor whose derived-child list may have changed.
type Invalidator interface {
	InvalidateWorkspace(id string)
	InvalidateSession(id string)
	InvalidateState(id string)
}

// Options configures an Adapter.
type Options struct {
	LogDir         string
	CachePath      string
	CheckpointPath string
	DeviceID       string

	// DefaultWorkspaceID is the workspace used when a session is created
	// without one. Owned by the engine instance, never a global.
	DefaultWorkspaceID string

	WatchEnabled  bool
	WatchInterval time.Duration

	// FsyncAppends makes every log append fsync before acknowledging.
	FsyncAppends bool
}

// Adapter is the storage façade. It owns the event log, the query cache and
// the reconciler, plus the change watcher over log segments.
type Adapter struct {
	opts    Options
	log     *eventlog.Log
	cache   *querycache.Cache
	rec     *reconcile.Reconciler
	watcher *eventlog.Watcher

	// msgMu serializes message appends so per-conversation sequence numbers
	// stay gapless under concurrent adds.
	msgMu sync.Mutex

	mu          sync.Mutex
	invalidator Invalidator
	initialized bool
	closed      bool
}

// New creates an Adapter. Call Initialize before use.
func New(opts Options) *Adapter {
	if opts.DeviceID == "" {
		opts.DeviceID = "device-" + uuid.NewString()
	}
	if opts.DefaultWorkspaceID == "" {
		opts.DefaultWorkspaceID = "workspace-default"
	}
	if opts.CheckpointPath == "" {
		opts.CheckpointPath = filepath.Join(filepath.Dir(opts.CachePath), "checkpoints.json")
	}
	return &Adapter{opts: opts}
}

// Initialize opens the log and cache, loads checkpoints, runs an initial
// sync, and starts the change watcher on log segments.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	log, err := eventlog.New(a.opts.LogDir)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if a.opts.FsyncAppends {
		log.EnableFsync()
	}
	cache, err := querycache.Open(a.opts.CachePath)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	a.log = log
	a.cache = cache
	a.rec = reconcile.New(log, cache, a.opts.CheckpointPath, a.opts.DeviceID)

	if _, err := a.rec.Sync(ctx); err != nil {
		cache.Close()
		return fmt.Errorf("initial sync: %w", err)
	}

	if a.opts.WatchEnabled {
		a.watcher = eventlog.NewWatcher(log, a.opts.WatchInterval, func(segments []string) {
			// External change (another device, a sync tool). Best-effort
			// resync; a failure here will be retried on the next change.
			if _, err := a.rec.Sync(context.Background()); err != nil {
				slog.Warn("resync after external change failed", "segments", segments, "error", err)
			}
		})
		a.watcher.Start()
	}

	a.initialized = true
	return nil
}

// Close stops the watcher and releases the cache. Checkpoints are flushed by
// every sync, so there is nothing further to persist. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.initialized {
		a.closed = true
		return nil
	}
	a.closed = true
	if a.watcher != nil {
		a.watcher.Stop()
	}
	return a.cache.Close()
}

// SetInvalidator registers the caching layer's invalidation hook.
func (a *Adapter) SetInvalidator(inv Invalidator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidator = inv
}

// Sync applies pending log events to the query cache.
func (a *Adapter) Sync(ctx context.Context) (reconcile.SyncResult, error) {
	return a.rec.Sync(ctx)
}

// Rebuild drops the projection and replays the full log.
func (a *Adapter) Rebuild(ctx context.Context) (reconcile.SyncResult, error) {
	return a.rec.Rebuild(ctx)
}

// DeviceID returns the id stamped on events written by this adapter.
func (a *Adapter) DeviceID() string {
	return a.opts.DeviceID
}

// Counts returns per-entity row counts from the query cache.
func (a *Adapter) Counts() (map[string]int, error) {
	return a.cache.Counts()
}

// emit appends an event to the log and projects it into the cache in one
// synchronous step. Direct writes fail loudly: any error propagates to the
// caller.
func (a *Adapter) emit(typ model.EventType, payload any) error {
	ev, err := model.NewEvent(uuid.NewString(), typ, a.opts.DeviceID, payload)
	if err != nil {
		return err
	}
	if err := a.log.Append(ev); err != nil {
		return err
	}
	if _, err := a.cache.ApplyEvent(ev); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) invalidateWorkspace(id string) {
	a.mu.Lock()
	inv := a.invalidator
	a.mu.Unlock()
	if inv != nil {
		inv.InvalidateWorkspace(id)
	}
}

func (a *Adapter) invalidateSession(id string) {
	a.mu.Lock()
	inv := a.invalidator
	a.mu.Unlock()
	if inv != nil {
		inv.InvalidateSession(id)
	}
}

func (a *Adapter) invalidateState(id string) {
	a.mu.Lock()
	inv := a.invalidator
	a.mu.Unlock()
	if inv != nil {
		inv.InvalidateState(id)
	}
}
