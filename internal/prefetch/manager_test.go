package prefetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/weft-labs/weft/internal/model"
)

type fakePreloader struct {
	mu         sync.Mutex
	loads      map[string]int
	workspaces map[string]bool
}

func newFakePreloader() *fakePreloader {
	return &fakePreloader{
		loads:      make(map[string]int),
		workspaces: make(map[string]bool),
	}
}

func (f *fakePreloader) load(key string) {
	f.mu.Lock()
	f.loads[key]++
	f.mu.Unlock()
}

func (f *fakePreloader) loadCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[key]
}

func (f *fakePreloader) PreloadWorkspace(ctx context.Context, id string) { f.load("workspace:" + id) }
func (f *fakePreloader) PreloadSession(ctx context.Context, id string)   { f.load("session:" + id) }
func (f *fakePreloader) PreloadState(ctx context.Context, id string)     { f.load("state:" + id) }
func (f *fakePreloader) PreloadFileMetadata(ctx context.Context, paths []string) {
	for _, p := range paths {
		f.load("file:" + p)
	}
}
func (f *fakePreloader) HasWorkspace(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workspaces[id]
}

type fakeSource struct {
	sessions map[string]model.Session
	states   map[string]model.State
	recent   map[string][]string
	siblings map[string][]string
	traces   map[string][]model.MemoryTrace
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		sessions: make(map[string]model.Session),
		states:   make(map[string]model.State),
		recent:   make(map[string][]string),
		siblings: make(map[string][]string),
		traces:   make(map[string][]model.MemoryTrace),
	}
}

func (f *fakeSource) GetSession(id string) (*model.Session, error) {
	if s, ok := f.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSource) GetState(id string) (*model.State, error) {
	if st, ok := f.states[id]; ok {
		return &st, nil
	}
	return nil, nil
}

func (f *fakeSource) RecentSessionIDs(workspaceID string, limit int) ([]string, error) {
	ids := f.recent[workspaceID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeSource) SiblingStateIDs(sessionID, excludeID string, limit int) ([]string, error) {
	return f.siblings[sessionID], nil
}

func (f *fakeSource) RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error) {
	return f.traces[sessionID], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkspaceLoadQueuesRecentSessions(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.recent["w1"] = []string{"s1", "s2", "s3"}

	m := New(cache, source, Options{Delay: time.Millisecond})
	defer m.Stop()

	m.OnWorkspaceLoaded("w1")

	waitFor(t, func() bool {
		return cache.loadCount("session:s1") == 1 &&
			cache.loadCount("session:s2") == 1 &&
			cache.loadCount("session:s3") == 1
	})
}

func TestCooldownSuppressesRepeatPrefetch(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.recent["w1"] = []string{"s1"}

	m := New(cache, source, Options{Cooldown: time.Hour, Delay: time.Millisecond})
	defer m.Stop()

	m.OnWorkspaceLoaded("w1")
	waitFor(t, func() bool { return cache.loadCount("session:s1") == 1 })

	m.OnWorkspaceLoaded("w1")
	time.Sleep(50 * time.Millisecond)
	if n := cache.loadCount("session:s1"); n != 1 {
		t.Fatalf("cooldown violated: %d preloads", n)
	}
}

func TestSessionLoadQueuesUncachedParentWorkspace(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.sessions["s1"] = model.Session{ID: "s1", WorkspaceID: "w1"}
	source.traces["s1"] = []model.MemoryTrace{
		{ID: "t1", Metadata: map[string]any{"files": []any{"notes.md"}}},
	}

	m := New(cache, source, Options{Delay: time.Millisecond})
	defer m.Stop()

	m.OnSessionLoaded("s1")

	waitFor(t, func() bool {
		return cache.loadCount("workspace:w1") == 1 && cache.loadCount("file:notes.md") == 1
	})
}

func TestSessionLoadSkipsCachedParentWorkspace(t *testing.T) {
	cache := newFakePreloader()
	cache.workspaces["w1"] = true
	source := newFakeSource()
	source.sessions["s1"] = model.Session{ID: "s1", WorkspaceID: "w1"}

	m := New(cache, source, Options{Delay: time.Millisecond})
	defer m.Stop()

	m.OnSessionLoaded("s1")
	time.Sleep(50 * time.Millisecond)
	if n := cache.loadCount("workspace:w1"); n != 0 {
		t.Fatalf("cached workspace should not be prefetched, got %d", n)
	}
}

func TestStateLoadQueuesParentSessionAndSiblings(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.states["st1"] = model.State{ID: "st1", SessionID: "s1"}
	source.siblings["s1"] = []string{"st2", "st3"}

	m := New(cache, source, Options{Delay: time.Millisecond})
	defer m.Stop()

	m.OnStateLoaded("st1")

	waitFor(t, func() bool {
		return cache.loadCount("session:s1") == 1 &&
			cache.loadCount("state:st2") == 1 &&
			cache.loadCount("state:st3") == 1
	})
}

func TestStatsTracksHistory(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.recent["w1"] = []string{"s1"}

	m := New(cache, source, Options{Delay: time.Millisecond})
	defer m.Stop()

	m.OnWorkspaceLoaded("w1")
	waitFor(t, func() bool { return m.Stats().Completed == 1 })

	stats := m.Stats()
	if stats.QueueDepth != 0 {
		t.Fatalf("expected drained queue, got depth %d", stats.QueueDepth)
	}
	if stats.History[0].Token != "session:s1" {
		t.Fatalf("unexpected history: %+v", stats.History)
	}
}

func TestStopDropsQueue(t *testing.T) {
	cache := newFakePreloader()
	source := newFakeSource()
	source.recent["w1"] = []string{"s1"}

	m := New(cache, source, Options{Delay: time.Millisecond})
	m.Stop()
	m.OnWorkspaceLoaded("w1")
	time.Sleep(20 * time.Millisecond)
	if n := cache.loadCount("session:s1"); n != 0 {
		t.Fatalf("stopped manager still prefetched %d times", n)
	}
	m.Stop()
}
