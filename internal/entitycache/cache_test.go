package entitycache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/weft-labs/weft/internal/fileindex"
	"github.com/weft-labs/weft/internal/model"
)

// fakeBackend counts fetches so tests can assert cache behavior.
type fakeBackend struct {
	mu         sync.Mutex
	workspaces map[string]model.Workspace
	sessions   map[string]model.Session
	states     map[string]model.State
	traces     map[string][]model.MemoryTrace
	calls      map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		workspaces: make(map[string]model.Workspace),
		sessions:   make(map[string]model.Session),
		states:     make(map[string]model.State),
		traces:     make(map[string][]model.MemoryTrace),
		calls:      make(map[string]int),
	}
}

func (f *fakeBackend) count(key string) {
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()
}

func (f *fakeBackend) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeBackend) GetWorkspace(id string) (*model.Workspace, error) {
	f.count("workspace:" + id)
	if w, ok := f.workspaces[id]; ok {
		return &w, nil
	}
	return nil, nil
}

func (f *fakeBackend) GetSession(id string) (*model.Session, error) {
	f.count("session:" + id)
	if s, ok := f.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeBackend) GetState(id string) (*model.State, error) {
	f.count("state:" + id)
	if st, ok := f.states[id]; ok {
		return &st, nil
	}
	return nil, nil
}

func (f *fakeBackend) SessionIDsForWorkspace(workspaceID string) ([]string, error) {
	var ids []string
	for id, s := range f.sessions {
		if s.WorkspaceID == workspaceID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeBackend) StateIDsForWorkspace(workspaceID string) ([]string, error) {
	var ids []string
	for id, st := range f.states {
		if st.WorkspaceID == workspaceID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeBackend) StateIDsForSession(sessionID string) ([]string, error) {
	var ids []string
	for id, st := range f.states {
		if st.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeBackend) GetSessionsByIDs(ids []string) ([]model.Session, error) {
	f.count("batch-sessions")
	var out []model.Session
	for _, id := range ids {
		if s, ok := f.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetStatesByIDs(ids []string) ([]model.State, error) {
	f.count("batch-states")
	var out []model.State
	for _, id := range ids {
		if st, ok := f.states[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeBackend) RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error) {
	return f.traces[sessionID], nil
}

func TestGetWorkspaceCachesWithinTTL(t *testing.T) {
	backend := newFakeBackend()
	backend.workspaces["w1"] = model.Workspace{ID: "w1", Name: "w"}
	c := New(backend, nil, Options{TTL: time.Minute})

	for i := 0; i < 3; i++ {
		w, err := c.GetWorkspace("w1")
		if err != nil {
			t.Fatal(err)
		}
		if w == nil || w.Name != "w" {
			t.Fatalf("unexpected workspace: %+v", w)
		}
	}
	if n := backend.callCount("workspace:w1"); n != 1 {
		t.Fatalf("expected a single backend fetch, got %d", n)
	}
}

func TestStaleEntryIsEvictedAndRefetched(t *testing.T) {
	backend := newFakeBackend()
	backend.workspaces["w1"] = model.Workspace{ID: "w1", Name: "w"}
	c := New(backend, nil, Options{TTL: 20 * time.Millisecond})

	if _, err := c.GetWorkspace("w1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if c.HasWorkspace("w1") {
		t.Fatal("stale entry should read as a miss")
	}
	if _, err := c.GetWorkspace("w1"); err != nil {
		t.Fatal(err)
	}
	if n := backend.callCount("workspace:w1"); n != 2 {
		t.Fatalf("expected exactly one refetch after expiry, got %d", n)
	}
}

func TestMaxSizeEvictsOldestEntries(t *testing.T) {
	backend := newFakeBackend()
	const maxSize = 10
	for i := 0; i < maxSize+1; i++ {
		id := fmt.Sprintf("w%02d", i)
		backend.workspaces[id] = model.Workspace{ID: id}
	}
	c := New(backend, nil, Options{TTL: time.Minute, MaxSize: maxSize})

	for i := 0; i < maxSize+1; i++ {
		if _, err := c.GetWorkspace(fmt.Sprintf("w%02d", i)); err != nil {
			t.Fatal(err)
		}
		// Distinct hydration timestamps keep the eviction order stable.
		time.Sleep(2 * time.Millisecond)
	}

	if got := c.Stats().Workspaces; got > maxSize {
		t.Fatalf("cache exceeded max size: %d", got)
	}
	if c.HasWorkspace("w00") {
		t.Fatal("oldest entry survived eviction")
	}
	if !c.HasWorkspace(fmt.Sprintf("w%02d", maxSize)) {
		t.Fatal("newest entry was evicted")
	}
}

func TestBatchLoadSessionsPartitionsHitsAndMisses(t *testing.T) {
	backend := newFakeBackend()
	backend.sessions["s1"] = model.Session{ID: "s1", WorkspaceID: "w1"}
	backend.sessions["s2"] = model.Session{ID: "s2", WorkspaceID: "w1"}
	backend.sessions["s3"] = model.Session{ID: "s3", WorkspaceID: "w1"}
	c := New(backend, nil, Options{TTL: time.Minute})

	if _, err := c.GetSession("s1"); err != nil {
		t.Fatal(err)
	}

	got, err := c.BatchLoadSessions([]string{"s1", "s2", "s3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got))
	}
	if n := backend.callCount("batch-sessions"); n != 1 {
		t.Fatalf("expected one batch call for the misses, got %d", n)
	}

	// Everything is now cached; a second batch needs no backend call.
	if _, err := c.BatchLoadSessions([]string{"s1", "s2", "s3"}); err != nil {
		t.Fatal(err)
	}
	if n := backend.callCount("batch-sessions"); n != 1 {
		t.Fatalf("expected no further batch calls, got %d", n)
	}
}

func TestPreloadWorkspaceHydratesChildren(t *testing.T) {
	backend := newFakeBackend()
	backend.workspaces["w1"] = model.Workspace{ID: "w1", Name: "w"}
	backend.sessions["s1"] = model.Session{ID: "s1", WorkspaceID: "w1"}
	backend.states["st1"] = model.State{ID: "st1", SessionID: "s1", WorkspaceID: "w1"}
	c := New(backend, nil, Options{TTL: time.Minute})

	c.PreloadWorkspace(context.Background(), "w1")

	if !c.HasWorkspace("w1") || !c.HasSession("s1") || !c.HasState("st1") {
		t.Fatalf("preload left gaps: %+v", c.Stats())
	}

	// A second preload is a no-op while the entry is fresh.
	c.PreloadWorkspace(context.Background(), "w1")
	if n := backend.callCount("workspace:w1"); n != 1 {
		t.Fatalf("expected preload skip on cached workspace, got %d fetches", n)
	}
}

func TestPreloadSwallowsMissingEntities(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, nil, Options{TTL: time.Minute})

	c.PreloadWorkspace(context.Background(), "ghost")
	c.PreloadSession(context.Background(), "ghost")
	c.PreloadState(context.Background(), "ghost")

	stats := c.Stats()
	if stats.Workspaces != 0 || stats.Sessions != 0 || stats.States != 0 {
		t.Fatalf("missing entities must not be cached: %+v", stats)
	}
}

func TestInvalidateSessionDropsParentWorkspace(t *testing.T) {
	backend := newFakeBackend()
	backend.workspaces["w1"] = model.Workspace{ID: "w1"}
	backend.sessions["s1"] = model.Session{ID: "s1", WorkspaceID: "w1"}
	c := New(backend, nil, Options{TTL: time.Minute})

	if _, err := c.GetWorkspace("w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetSession("s1"); err != nil {
		t.Fatal(err)
	}

	c.InvalidateSession("s1")
	if c.HasSession("s1") {
		t.Fatal("session entry survived invalidation")
	}
	if c.HasWorkspace("w1") {
		t.Fatal("parent workspace entry must be dropped with the session")
	}
}

func TestFileRefsFromTraceMetadata(t *testing.T) {
	traces := []model.MemoryTrace{
		{ID: "t1", Metadata: map[string]any{"file": "a.md"}},
		{ID: "t2", Metadata: map[string]any{"files": []any{"b.md", "a.md"}}},
		{ID: "t3", Metadata: map[string]any{"filePath": "c.md"}},
		{ID: "t4"},
	}
	got := FileRefs(traces)
	want := []string{"a.md", "b.md", "c.md"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestPreloadEventsAreEmitted(t *testing.T) {
	backend := newFakeBackend()
	backend.workspaces["w1"] = model.Workspace{ID: "w1"}
	c := New(backend, nil, Options{TTL: time.Minute})

	c.PreloadWorkspace(context.Background(), "w1")

	select {
	case ev := <-c.Events():
		if ev.Kind != WorkspacePreloaded || ev.ID != "w1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected a workspace preload event")
	}
}

var _ FileMetaProvider = (*fileindex.Index)(nil)
