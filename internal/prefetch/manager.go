// Package prefetch speculatively warms the entity cache based on access
// patterns: loading a workspace queues its recent sessions, loading a session
// queues its parent workspace and warms trace-referenced file metadata,
// loading a state queues its parent session and sibling states. Everything
// here is best-effort; a failed prefetch is logged and swallowed.
package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weft-labs/weft/internal/entitycache"
	"github.com/weft-labs/weft/internal/model"
)

// Token kinds.
const (
	KindWorkspace = "workspace"
	KindSession   = "session"
	KindState     = "state"
	KindFile      = "file"
)

// Preloader is the entity-cache surface the manager drives.
type Preloader interface {
	PreloadWorkspace(ctx context.Context, id string)
	PreloadSession(ctx context.Context, id string)
	PreloadState(ctx context.Context, id string)
	PreloadFileMetadata(ctx context.Context, paths []string)
	HasWorkspace(id string) bool
}

// Source answers the relation lookups behind the three load hooks.
type Source interface {
	GetSession(id string) (*model.Session, error)
	GetState(id string) (*model.State, error)
	RecentSessionIDs(workspaceID string, limit int) ([]string, error)
	SiblingStateIDs(sessionID, excludeID string, limit int) ([]string, error)
	RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error)
}

// Options configures a Manager. Zero fields fall back to the documented
// defaults.
type Options struct {
	Cooldown      time.Duration
	Delay         time.Duration
	MaxConcurrent int
	SessionCount  int
	SiblingStates int
}

func (o *Options) applyDefaults() {
	if o.Cooldown <= 0 {
		o.Cooldown = 5 * time.Minute
	}
	if o.Delay <= 0 {
		o.Delay = time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.SessionCount <= 0 {
		o.SessionCount = 5
	}
	if o.SiblingStates <= 0 {
		o.SiblingStates = 3
	}
}

// Record is one completed prefetch in the history ring.
type Record struct {
	Token    string    `json:"token"`
	At       time.Time `json:"at"`
	Duration string    `json:"duration"`
}

const historyCap = 100

type token struct {
	kind string
	id   string
}

func (t token) key() string { return t.kind + ":" + t.id }

// Manager is the prefetch queue and scheduler.
type Manager struct {
	cache  Preloader
	source Source
	opts   Options

	mu       sync.Mutex
	queue    []token
	queued   map[string]bool
	lastDone map[string]time.Time
	history  []Record
	inflight bool
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Manager over the given cache and relation source.
func New(cache Preloader, source Source, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		cache:    cache,
		source:   source,
		opts:     opts,
		queued:   make(map[string]bool),
		lastDone: make(map[string]time.Time),
	}
}

// OnWorkspaceLoaded queues the workspace's most recent sessions.
func (m *Manager) OnWorkspaceLoaded(workspaceID string) {
	ids, err := m.source.RecentSessionIDs(workspaceID, m.opts.SessionCount)
	if err != nil {
		slog.Debug("prefetch hook failed", "workspace", workspaceID, "error", err)
		return
	}
	for _, id := range ids {
		m.enqueue(token{KindSession, id})
	}
	m.kick()
}

// OnSessionLoaded queues the parent workspace when it is not cached and warms
// file metadata referenced by the session's recent traces.
func (m *Manager) OnSessionLoaded(sessionID string) {
	s, err := m.source.GetSession(sessionID)
	if err != nil || s == nil {
		return
	}
	if s.WorkspaceID != "" && !m.cache.HasWorkspace(s.WorkspaceID) {
		m.enqueue(token{KindWorkspace, s.WorkspaceID})
	}
	if traces, err := m.source.RecentTraces(sessionID, 20); err == nil {
		for _, path := range entitycache.FileRefs(traces) {
			m.enqueue(token{KindFile, path})
		}
	}
	m.kick()
}

// OnStateLoaded queues the parent session and the state's most recent
// siblings.
func (m *Manager) OnStateLoaded(stateID string) {
	st, err := m.source.GetState(stateID)
	if err != nil || st == nil {
		return
	}
	if st.SessionID != "" {
		m.enqueue(token{KindSession, st.SessionID})
	}
	if sibs, err := m.source.SiblingStateIDs(st.SessionID, stateID, m.opts.SiblingStates); err == nil {
		for _, id := range sibs {
			m.enqueue(token{KindState, id})
		}
	}
	m.kick()
}

// enqueue adds a token unless it is already pending or inside its cooldown
// window.
func (m *Manager) enqueue(t token) {
	key := t.key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.queued[key] {
		return
	}
	if done, ok := m.lastDone[key]; ok && time.Since(done) < m.opts.Cooldown {
		return
	}
	m.queued[key] = true
	m.queue = append(m.queue, t)
}

// kick starts a processing tick when none is running.
func (m *Manager) kick() {
	m.mu.Lock()
	if m.closed || m.inflight || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	m.inflight = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.tick()
	}()
}

// tick drains up to MaxConcurrent tokens, runs them in parallel, and
// reschedules itself after Delay while the queue is non-empty.
func (m *Manager) tick() {
	for {
		m.mu.Lock()
		if m.closed || len(m.queue) == 0 {
			m.inflight = false
			m.mu.Unlock()
			return
		}
		n := m.opts.MaxConcurrent
		if n > len(m.queue) {
			n = len(m.queue)
		}
		batch := make([]token, n)
		copy(batch, m.queue[:n])
		m.queue = m.queue[n:]
		m.mu.Unlock()

		var wg sync.WaitGroup
		for _, t := range batch {
			wg.Add(1)
			go func(t token) {
				defer wg.Done()
				m.execute(t)
			}(t)
		}
		wg.Wait()

		m.mu.Lock()
		empty := len(m.queue) == 0
		if empty || m.closed {
			m.inflight = false
		}
		m.mu.Unlock()
		if empty {
			return
		}
		time.Sleep(m.opts.Delay)
	}
}

// execute runs one speculative load. Outcomes only feed the cooldown clock
// and the history ring; failures never propagate.
func (m *Manager) execute(t token) {
	start := time.Now()
	ctx := context.Background()
	switch t.kind {
	case KindWorkspace:
		m.cache.PreloadWorkspace(ctx, t.id)
	case KindSession:
		m.cache.PreloadSession(ctx, t.id)
	case KindState:
		m.cache.PreloadState(ctx, t.id)
	case KindFile:
		m.cache.PreloadFileMetadata(ctx, []string{t.id})
	}

	key := t.key()
	m.mu.Lock()
	delete(m.queued, key)
	m.lastDone[key] = time.Now()
	m.history = append(m.history, Record{
		Token:    key,
		At:       start,
		Duration: time.Since(start).String(),
	})
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()
}

// Stats reports queue depth and history for diagnostics.
type Stats struct {
	QueueDepth int      `json:"queueDepth"`
	Completed  int      `json:"completed"`
	History    []Record `json:"history"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]Record, len(m.history))
	copy(history, m.history)
	return Stats{
		QueueDepth: len(m.queue),
		Completed:  len(history),
		History:    history,
	}
}

// Stop drops the queue and waits for in-flight prefetches to finish.
// Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.queued = make(map[string]bool)
	m.mu.Unlock()
	m.wg.Wait()
}
