// Package entitycache holds hydrated workspaces, sessions and states in
// memory with a TTL, plus a flat file-metadata cache. Entries past the TTL
// are evicted on read and treated as misses; mutations invalidate through the
// public Invalidate methods, never by touching internal maps.
package entitycache

import (
	"sort"
	"sync"
	"time"

	"github.com/weft-labs/weft/internal/fileindex"
	"github.com/weft-labs/weft/internal/model"
)

// Backend loads entities on a cache miss. Satisfied by the storage adapter.
type Backend interface {
	GetWorkspace(id string) (*model.Workspace, error)
	GetSession(id string) (*model.Session, error)
	GetState(id string) (*model.State, error)
	SessionIDsForWorkspace(workspaceID string) ([]string, error)
	StateIDsForWorkspace(workspaceID string) ([]string, error)
	StateIDsForSession(sessionID string) ([]string, error)
	GetSessionsByIDs(ids []string) ([]model.Session, error)
	GetStatesByIDs(ids []string) ([]model.State, error)
	RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error)
}

// FileMetaProvider resolves file metadata for associated file refs. Satisfied
// by fileindex.Index.
type FileMetaProvider interface {
	Metadata(path string) (fileindex.Metadata, error)
}

// EventKind names a cache notification.
type EventKind string

const (
	WorkspacePreloaded EventKind = "workspace:preloaded"
	SessionPreloaded   EventKind = "session:preloaded"
	StatePreloaded     EventKind = "state:preloaded"
)

// Event is one cache notification: an entity was hydrated from the backend.
type Event struct {
	Kind EventKind
	ID   string
}

// Entry wraps a cached value with its hydration time and the relations known
// at that time.
type Entry[T any] struct {
	Data               T
	Timestamp          int64
	DerivedChildIDs    []string
	AssociatedFileRefs []string
}

// store is one TTL-governed sub-cache.
type store[T any] struct {
	mu      sync.Mutex
	entries map[string]Entry[T]
	ttl     time.Duration
	maxSize int
}

func newStore[T any](ttl time.Duration, maxSize int) *store[T] {
	return &store[T]{
		entries: make(map[string]Entry[T]),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// get returns the entry if fresh. A stale entry is evicted and reported as a
// miss.
func (s *store[T]) get(id string) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry[T]{}, false
	}
	if time.Duration(model.Now()-e.Timestamp)*time.Millisecond >= s.ttl {
		delete(s.entries, id)
		return Entry[T]{}, false
	}
	return e, true
}

func (s *store[T]) put(id string, e Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp == 0 {
		e.Timestamp = model.Now()
	}
	s.entries[id] = e
	if s.maxSize > 0 && len(s.entries) > s.maxSize {
		s.evictOldestLocked()
	}
}

// evictOldestLocked drops the oldest 20% of entries by hydration time.
func (s *store[T]) evictOldestLocked() {
	type aged struct {
		id string
		ts int64
	}
	all := make([]aged, 0, len(s.entries))
	for id, e := range s.entries {
		all = append(all, aged{id, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts < all[j].ts })
	n := len(all) / 5
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		delete(s.entries, a.id)
	}
}

func (s *store[T]) delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func (s *store[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *store[T]) clear() {
	s.mu.Lock()
	s.entries = make(map[string]Entry[T])
	s.mu.Unlock()
}

// Options configures a Cache. Zero fields fall back to the documented
// defaults.
type Options struct {
	TTL             time.Duration
	MaxSize         int
	PreloadStateCap int
}

func (o *Options) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Minute
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 1000
	}
	if o.PreloadStateCap <= 0 {
		o.PreloadStateCap = 5
	}
}

// Cache is the entity cache. Events() announces hydrations so a prefetcher
// can react to access patterns.
type Cache struct {
	backend Backend
	files   FileMetaProvider
	opts    Options

	workspaces *store[model.Workspace]
	sessions   *store[model.Session]
	states     *store[model.State]
	fileMeta   *store[fileindex.Metadata]

	events chan Event
}

// New creates a Cache over the given backend. files may be nil, disabling
// file-metadata caching.
func New(backend Backend, files FileMetaProvider, opts Options) *Cache {
	opts.applyDefaults()
	return &Cache{
		backend:    backend,
		files:      files,
		opts:       opts,
		workspaces: newStore[model.Workspace](opts.TTL, opts.MaxSize),
		sessions:   newStore[model.Session](opts.TTL, opts.MaxSize),
		states:     newStore[model.State](opts.TTL, opts.MaxSize),
		fileMeta:   newStore[fileindex.Metadata](opts.TTL, opts.MaxSize),
		events:     make(chan Event, 64),
	}
}

// Events returns the hydration notification channel. Notifications are
// dropped, not blocked on, when nobody is draining the channel.
func (c *Cache) Events() <-chan Event {
	return c.events
}

func (c *Cache) notify(kind EventKind, id string) {
	select {
	case c.events <- Event{Kind: kind, ID: id}:
	default:
	}
}

// GetWorkspace returns the workspace from cache, hitting the backend only on
// a miss or stale entry. nil means the workspace does not exist.
func (c *Cache) GetWorkspace(id string) (*model.Workspace, error) {
	if e, ok := c.workspaces.get(id); ok {
		w := e.Data
		return &w, nil
	}
	w, err := c.backend.GetWorkspace(id)
	if err != nil || w == nil {
		return nil, err
	}
	c.cacheWorkspace(*w)
	c.notify(WorkspacePreloaded, id)
	return w, nil
}

// GetSession is GetWorkspace for sessions.
func (c *Cache) GetSession(id string) (*model.Session, error) {
	if e, ok := c.sessions.get(id); ok {
		s := e.Data
		return &s, nil
	}
	s, err := c.backend.GetSession(id)
	if err != nil || s == nil {
		return nil, err
	}
	c.cacheSession(*s)
	c.notify(SessionPreloaded, id)
	return s, nil
}

// GetState is GetWorkspace for states.
func (c *Cache) GetState(id string) (*model.State, error) {
	if e, ok := c.states.get(id); ok {
		st := e.Data
		return &st, nil
	}
	st, err := c.backend.GetState(id)
	if err != nil || st == nil {
		return nil, err
	}
	c.cacheState(*st)
	c.notify(StatePreloaded, id)
	return st, nil
}

// GetFileMetadata returns cached metadata for path, resolving through the
// provider on a miss.
func (c *Cache) GetFileMetadata(path string) (fileindex.Metadata, error) {
	if e, ok := c.fileMeta.get(path); ok {
		return e.Data, nil
	}
	if c.files == nil {
		return fileindex.Metadata{}, nil
	}
	meta, err := c.files.Metadata(path)
	if err != nil {
		return fileindex.Metadata{}, err
	}
	c.fileMeta.put(path, Entry[fileindex.Metadata]{Data: meta})
	return meta, nil
}

// HasWorkspace reports whether a fresh cache entry exists, without touching
// the backend.
func (c *Cache) HasWorkspace(id string) bool {
	_, ok := c.workspaces.get(id)
	return ok
}

// HasSession reports whether a fresh session entry exists.
func (c *Cache) HasSession(id string) bool {
	_, ok := c.sessions.get(id)
	return ok
}

// HasState reports whether a fresh state entry exists.
func (c *Cache) HasState(id string) bool {
	_, ok := c.states.get(id)
	return ok
}

// InvalidateWorkspace drops the workspace entry.
func (c *Cache) InvalidateWorkspace(id string) {
	c.workspaces.delete(id)
}

// InvalidateSession drops the session entry and its parent workspace entry,
// whose derived-child list may now be stale.
func (c *Cache) InvalidateSession(id string) {
	if e, ok := c.sessions.get(id); ok {
		c.workspaces.delete(e.Data.WorkspaceID)
	}
	c.sessions.delete(id)
}

// InvalidateState drops the state entry and its parent session entry.
func (c *Cache) InvalidateState(id string) {
	if e, ok := c.states.get(id); ok {
		c.sessions.delete(e.Data.SessionID)
	}
	c.states.delete(id)
}

// InvalidateFile drops the metadata entry for path.
func (c *Cache) InvalidateFile(path string) {
	c.fileMeta.delete(path)
}

// Clear empties every sub-cache.
func (c *Cache) Clear() {
	c.workspaces.clear()
	c.sessions.clear()
	c.states.clear()
	c.fileMeta.clear()
}

// Stats reports entry counts per sub-cache.
type Stats struct {
	Workspaces   int `json:"workspaces"`
	Sessions     int `json:"sessions"`
	States       int `json:"states"`
	FileMetadata int `json:"fileMetadata"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Workspaces:   c.workspaces.len(),
		Sessions:     c.sessions.len(),
		States:       c.states.len(),
		FileMetadata: c.fileMeta.len(),
	}
}
