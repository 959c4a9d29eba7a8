package eventlog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/weft-labs/weft/internal/model"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func testEvent(t *testing.T, id string, typ model.EventType, ts int64) model.StorageEvent {
	t.Helper()
	ev, err := model.NewEvent(id, typ, "device-test", map[string]any{"id": "e-" + id})
	if err != nil {
		t.Fatal(err)
	}
	if ts != 0 {
		ev.Timestamp = ts
	}
	return ev
}

func TestAppendAndReadAll(t *testing.T) {
	l := newTestLog(t)

	for i, id := range []string{"a", "b", "c"} {
		ev := testEvent(t, id, model.EventWorkspaceCreated, int64(100+i))
		if err := l.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.ReadAll("workspaces")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("events out of append order: %v", got)
	}
}

func TestReadSinceSkipsOldEvents(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 5; i++ {
		ev := testEvent(t, string(rune('a'+i)), model.EventSessionCreated, int64(10*(i+1)))
		if err := l.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.ReadSince("sessions", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events after ts 30, got %d", len(got))
	}
	if got[0].Timestamp != 40 {
		t.Fatalf("expected first event at ts 40, got %d", got[0].Timestamp)
	}
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	l := newTestLog(t)

	ev := testEvent(t, "x", model.EventTraceCreated, 0)
	ev.Type = "trace.exploded"
	if err := l.Append(ev); err == nil {
		t.Fatal("expected error for unknown event type")
	}

	ev = testEvent(t, "", model.EventTraceCreated, 0)
	ev.ID = ""
	if err := l.Append(ev); err == nil {
		t.Fatal("expected error for missing event id")
	}
}

func TestReadSinceSkipsMalformedLines(t *testing.T) {
	l := newTestLog(t)

	if err := l.Append(testEvent(t, "a", model.EventStateCreated, 10)); err != nil {
		t.Fatal(err)
	}
	// Simulate a torn write from another process.
	f, err := os.OpenFile(l.Path("states"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{\"id\": \"broken\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := l.Append(testEvent(t, "b", model.EventStateCreated, 20)); err != nil {
		t.Fatal(err)
	}

	got, err := l.ReadAll("states")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected malformed line skipped, got %d events", len(got))
	}
}

func TestSegmentsListsOnlyLogFiles(t *testing.T) {
	l := newTestLog(t)

	if err := l.Append(testEvent(t, "a", model.EventWorkspaceCreated, 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(testEvent(t, "b", model.EventMessageAdded, 0)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(l.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	segments, err := l.Segments()
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Name != "messages" || segments[1].Name != "workspaces" {
		t.Fatalf("unexpected segment names: %+v", segments)
	}
}

func TestWatcherFiresOnAppend(t *testing.T) {
	l := newTestLog(t)

	var mu sync.Mutex
	var changed []string
	w := NewWatcher(l, 10*time.Millisecond, func(segments []string) {
		mu.Lock()
		changed = append(changed, segments...)
		mu.Unlock()
	})
	w.Start()
	defer w.Stop()

	// Let the watcher prime its baseline before writing.
	time.Sleep(30 * time.Millisecond)
	if err := l.Append(testEvent(t, "a", model.EventConversationCreated, 0)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(changed)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never reported the appended segment")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if changed[0] != "conversations" {
		t.Fatalf("expected conversations segment, got %v", changed)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	l := newTestLog(t)
	w := NewWatcher(l, 10*time.Millisecond, func([]string) {})
	w.Start()
	w.Stop()
	w.Stop()
}

func TestFsyncedAppendReadsBack(t *testing.T) {
	l := newTestLog(t)
	l.EnableFsync()

	ev := testEvent(t, "durable", model.EventWorkspaceCreated, 100)
	if err := l.Append(ev); err != nil {
		t.Fatal(err)
	}

	got, err := l.ReadAll("workspaces")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("fsynced append not readable: %+v", got)
	}
}
