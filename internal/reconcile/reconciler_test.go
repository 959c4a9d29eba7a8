package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/weft-labs/weft/internal/eventlog"
	"github.com/weft-labs/weft/internal/model"
	"github.com/weft-labs/weft/internal/querycache"
)

func setupReconciler(t *testing.T) (*eventlog.Log, *querycache.Cache, *Reconciler) {
	t.Helper()
	dir := t.TempDir()
	log, err := eventlog.New(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatal(err)
	}
	cache, err := querycache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	rec := New(log, cache, filepath.Join(dir, "checkpoints.json"), "device-test")
	return log, cache, rec
}

func appendEvent(t *testing.T, log *eventlog.Log, typ model.EventType, ts int64, payload any) {
	t.Helper()
	ev, err := model.NewEvent(fmt.Sprintf("ev-%s-%d", typ, ts), typ, "device-test", payload)
	if err != nil {
		t.Fatal(err)
	}
	ev.Timestamp = ts
	if err := log.Append(ev); err != nil {
		t.Fatal(err)
	}
}

func TestSyncAppliesPendingEvents(t *testing.T) {
	log, cache, rec := setupReconciler(t)

	appendEvent(t, log, model.EventWorkspaceCreated, 10, model.Workspace{ID: "w1", Name: "w"})
	appendEvent(t, log, model.EventSessionCreated, 20, model.Session{ID: "s1", WorkspaceID: "w1", Name: "s"})

	result, err := rec.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.EventsApplied != 2 {
		t.Fatalf("expected 2 applied, got %+v", result)
	}
	if len(result.FilesProcessed) != 2 {
		t.Fatalf("expected 2 segments processed, got %v", result.FilesProcessed)
	}

	w, err := cache.GetWorkspace("w1")
	if err != nil {
		t.Fatal(err)
	}
	if w == nil || w.Name != "w" {
		t.Fatalf("workspace not projected: %+v", w)
	}
}

func TestSyncIsRedundantSafe(t *testing.T) {
	log, _, rec := setupReconciler(t)

	appendEvent(t, log, model.EventWorkspaceCreated, 10, model.Workspace{ID: "w1", Name: "w"})

	if _, err := rec.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err := rec.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsApplied != 0 || result.EventsSkipped != 0 {
		t.Fatalf("second sync should read nothing past the checkpoint, got %+v", result)
	}
}

func TestSyncContinuesPastFailingEvent(t *testing.T) {
	log, cache, rec := setupReconciler(t)

	appendEvent(t, log, model.EventWorkspaceCreated, 10, model.Workspace{ID: "w1", Name: "one"})
	// An unparseable payload fails projection but must not abort the sync.
	bad, err := model.NewEvent("ev-bad", model.EventWorkspaceCreated, "device-test", "not an object")
	if err != nil {
		t.Fatal(err)
	}
	bad.Timestamp = 20
	if err := log.Append(bad); err != nil {
		t.Fatal(err)
	}
	appendEvent(t, log, model.EventWorkspaceCreated, 30, model.Workspace{ID: "w2", Name: "two"})

	result, err := rec.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure recorded in result")
	}
	if result.EventsApplied != 2 {
		t.Fatalf("expected the two good events applied, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].EventID != "ev-bad" {
		t.Fatalf("expected ev-bad in error list, got %+v", result.Errors)
	}

	w2, err := cache.GetWorkspace("w2")
	if err != nil {
		t.Fatal(err)
	}
	if w2 == nil {
		t.Fatal("event after the failure was not applied")
	}
}

func TestCheckpointOnlyAdvancesPastContiguousSuccesses(t *testing.T) {
	log, _, rec := setupReconciler(t)

	appendEvent(t, log, model.EventWorkspaceCreated, 10, model.Workspace{ID: "w1", Name: "one"})
	bad, err := model.NewEvent("ev-bad", model.EventWorkspaceCreated, "device-test", "nope")
	if err != nil {
		t.Fatal(err)
	}
	bad.Timestamp = 20
	if err := log.Append(bad); err != nil {
		t.Fatal(err)
	}
	appendEvent(t, log, model.EventWorkspaceCreated, 30, model.Workspace{ID: "w2", Name: "two"})

	if _, err := rec.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	cp, err := LoadCheckpoint(filepath.Join(filepath.Dir(log.Dir()), "checkpoints.json"), "device-test")
	if err != nil {
		t.Fatal(err)
	}
	if cp.LastSyncedFiles["workspaces"] != 10 {
		t.Fatalf("checkpoint must stop before the failed event, got %d", cp.LastSyncedFiles["workspaces"])
	}

	// The next run retries everything after the checkpoint; the already
	// applied w2 event is skipped by idempotency, not re-applied.
	result, err := rec.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsApplied != 0 || result.EventsSkipped != 1 {
		t.Fatalf("expected retry to skip the applied event, got %+v", result)
	}
}

func TestRebuildReplaysFromEmpty(t *testing.T) {
	log, cache, rec := setupReconciler(t)

	appendEvent(t, log, model.EventWorkspaceCreated, 10, model.Workspace{ID: "w1", Name: "w"})
	appendEvent(t, log, model.EventWorkspaceUpdated, 20, model.UpdatePayload{ID: "w1", Fields: map[string]any{"name": "renamed"}})
	if _, err := rec.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := rec.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsApplied != 2 {
		t.Fatalf("expected full replay, got %+v", result)
	}

	w, err := cache.GetWorkspace("w1")
	if err != nil {
		t.Fatal(err)
	}
	if w == nil || w.Name != "renamed" {
		t.Fatalf("rebuild diverged: %+v", w)
	}
}

func TestCheckpointFileKeepsOtherDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")

	a := Checkpoint{DeviceID: "device-a", LastEventTimestamp: 10, LastSyncedFiles: map[string]int64{"workspaces": 10}}
	if err := SaveCheckpoint(path, a); err != nil {
		t.Fatal(err)
	}
	b := Checkpoint{DeviceID: "device-b", LastEventTimestamp: 20, LastSyncedFiles: map[string]int64{"sessions": 20}}
	if err := SaveCheckpoint(path, b); err != nil {
		t.Fatal(err)
	}

	gotA, err := LoadCheckpoint(path, "device-a")
	if err != nil {
		t.Fatal(err)
	}
	if gotA.LastEventTimestamp != 10 || gotA.LastSyncedFiles["workspaces"] != 10 {
		t.Fatalf("device-a checkpoint clobbered: %+v", gotA)
	}

	missing, err := LoadCheckpoint(path, "device-c")
	if err != nil {
		t.Fatal(err)
	}
	if missing.LastEventTimestamp != 0 || missing.DeviceID != "device-c" {
		t.Fatalf("expected zero checkpoint for unknown device, got %+v", missing)
	}
}
