// Package cachemgr composes the entity cache, the file index and the
// prefetch manager behind one object. It owns the dispatch loop that turns
// cache hydration events into prefetch hooks, and routes external file-change
// notifications into index updates and cache invalidation.
package cachemgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weft-labs/weft/internal/config"
	"github.com/weft-labs/weft/internal/entitycache"
	"github.com/weft-labs/weft/internal/fileindex"
	"github.com/weft-labs/weft/internal/model"
	"github.com/weft-labs/weft/internal/prefetch"
	"github.com/weft-labs/weft/internal/storage"
)

// FileOp names a file-change notification.
type FileOp string

const (
	FileCreated  FileOp = "created"
	FileModified FileOp = "modified"
	FileRenamed  FileOp = "renamed"
	FileDeleted  FileOp = "deleted"
)

// warmWorkspaceLimit caps how many workspaces an unscoped WarmCache touches.
const warmWorkspaceLimit = 5

// Manager wires the caching stack to a storage adapter.
type Manager struct {
	adapter  *storage.Adapter
	entities *entitycache.Cache
	files    *fileindex.Index
	pf       *prefetch.Manager

	mu       sync.Mutex
	ready    bool
	cleaned  bool
	stop     chan struct{}
	loopDone chan struct{}
}

// New builds the caching stack over adapter. root anchors relative file refs
// for the file index; cfg supplies the policy values.
func New(adapter *storage.Adapter, cfg config.CacheConfig, root string) *Manager {
	var files *fileindex.Index
	var provider entitycache.FileMetaProvider
	if cfg.FileIndexEnabled {
		files = fileindex.New(root)
		provider = files
	}

	entities := entitycache.New(adapter, provider, entitycache.Options{
		TTL:             cfg.TTL,
		MaxSize:         cfg.MaxSize,
		PreloadStateCap: cfg.PreloadStateCap,
	})
	pf := prefetch.New(entities, adapter, prefetch.Options{
		Cooldown:      cfg.PrefetchCooldown,
		Delay:         cfg.PrefetchDelay,
		MaxConcurrent: cfg.MaxConcurrentPrefetch,
		SessionCount:  cfg.PrefetchSessionCount,
		SiblingStates: cfg.PrefetchSiblingStates,
	})

	m := &Manager{
		adapter:  adapter,
		entities: entities,
		files:    files,
		pf:       pf,
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	adapter.SetInvalidator(entities)
	go m.dispatch()
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return m
}

// dispatch feeds cache hydration events into the prefetch hooks.
func (m *Manager) dispatch() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.stop:
			return
		case ev := <-m.entities.Events():
			switch ev.Kind {
			case entitycache.WorkspacePreloaded:
				m.pf.OnWorkspaceLoaded(ev.ID)
			case entitycache.SessionPreloaded:
				m.pf.OnSessionLoaded(ev.ID)
			case entitycache.StatePreloaded:
				m.pf.OnStateLoaded(ev.ID)
			}
		}
	}
}

// Entities exposes the entity cache for direct reads.
func (m *Manager) Entities() *entitycache.Cache {
	return m.entities
}

// FileChanged routes one external file-change notification. newPath is only
// meaningful for renames.
func (m *Manager) FileChanged(op FileOp, path, newPath string) {
	switch op {
	case FileCreated, FileModified:
		if m.files != nil {
			if _, err := m.files.Update(path); err != nil {
				slog.Debug("file index update failed", "path", path, "error", err)
			}
		}
		m.entities.InvalidateFile(path)
	case FileRenamed:
		if m.files != nil {
			m.files.Rename(path, newPath)
		}
		m.entities.InvalidateFile(path)
		m.entities.InvalidateFile(newPath)
	case FileDeleted:
		if m.files != nil {
			m.files.Remove(path)
		}
		m.entities.InvalidateFile(path)
	}
}

// WarmCache preloads one workspace, or the most recently accessed ones when
// workspaceID is empty.
func (m *Manager) WarmCache(ctx context.Context, workspaceID string) error {
	if workspaceID != "" {
		m.entities.PreloadWorkspace(ctx, workspaceID)
		return nil
	}
	page, err := m.adapter.GetWorkspaces(model.ListOptions{
		PaginationParams: model.PaginationParams{Page: 1, PageSize: warmWorkspaceLimit},
		SortBy:           "lastAccessed",
		SortOrder:        model.SortDesc,
	})
	if err != nil {
		return fmt.Errorf("warm cache: %w", err)
	}
	for _, w := range page.Items {
		m.entities.PreloadWorkspace(ctx, w.ID)
	}
	return nil
}

// ClearCache empties the entity cache and the file index.
func (m *Manager) ClearCache() {
	m.entities.Clear()
	if m.files != nil {
		m.files.Clear()
	}
}

// StatsReport aggregates population counts and prefetch diagnostics.
type StatsReport struct {
	Entities     entitycache.Stats `json:"entities"`
	Prefetch     prefetch.Stats    `json:"prefetch"`
	IndexedFiles int               `json:"indexedFiles"`
}

func (m *Manager) GetStats() StatsReport {
	report := StatsReport{
		Entities: m.entities.Stats(),
		Prefetch: m.pf.Stats(),
	}
	if m.files != nil {
		report.IndexedFiles = m.files.Len()
	}
	return report
}

// IsReady reports whether the stack is wired and not cleaned up.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready && !m.cleaned
}

// Cleanup detaches the dispatch loop, stops the prefetcher and clears local
// caches. Idempotent and safe on a partially-initialized manager. In-flight
// preloads are waited on, not aborted.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		return
	}
	m.cleaned = true
	m.ready = false
	m.mu.Unlock()

	close(m.stop)
	<-m.loopDone
	if m.pf != nil {
		m.pf.Stop()
	}
	if m.adapter != nil {
		m.adapter.SetInvalidator(nil)
	}
	m.ClearCache()
}
