package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weft-labs/weft/internal/eventlog"
	"github.com/weft-labs/weft/internal/querycache"
)

// SyncError records one event that failed to apply during a sync.
type SyncError struct {
	Segment string `json:"segment"`
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

// SyncResult is the structured outcome of one Sync invocation.
type SyncResult struct {
	Success           bool          `json:"success"`
	EventsApplied     int           `json:"eventsApplied"`
	EventsSkipped     int           `json:"eventsSkipped"`
	Errors            []SyncError   `json:"errors"`
	LastSyncTimestamp int64         `json:"lastSyncTimestamp"`
	FilesProcessed    []string      `json:"filesProcessed"`
	Duration          time.Duration `json:"duration"`
}

// Reconciler replays log events newer than the device checkpoint into the
// query cache. Safe to call redundantly and concurrently with itself: an
// internal mutex serializes runs, and the event-id idempotency of the cache
// makes a re-run converge on the same end state.
type Reconciler struct {
	log            *eventlog.Log
	cache          *querycache.Cache
	checkpointPath string
	deviceID       string

	mu sync.Mutex
}

// New creates a reconciler for the given log/cache pair.
func New(log *eventlog.Log, cache *querycache.Cache, checkpointPath, deviceID string) *Reconciler {
	return &Reconciler{
		log:            log,
		cache:          cache,
		checkpointPath: checkpointPath,
		deviceID:       deviceID,
	}
}

// Sync applies all unprocessed events, segment by segment, in append order.
// A failing event is recorded in the result and does not abort the sync; the
// checkpoint only advances past the contiguous prefix of successfully
// applied events, so a failed event will be retried on the next run.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := SyncResult{Errors: []SyncError{}, FilesProcessed: []string{}}

	cp, err := LoadCheckpoint(r.checkpointPath, r.deviceID)
	if err != nil {
		return result, err
	}

	segments, err := r.log.Segments()
	if err != nil {
		return result, fmt.Errorf("sync: %w", err)
	}

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		after := cp.LastSyncedFiles[seg.Name]
		events, err := r.log.ReadSince(seg.Name, after)
		if err != nil {
			result.Errors = append(result.Errors, SyncError{Segment: seg.Name, Error: err.Error()})
			continue
		}
		if len(events) == 0 {
			continue
		}
		result.FilesProcessed = append(result.FilesProcessed, seg.Name)

		advance := after
		contiguous := true
		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			applied, err := r.cache.ApplyEvent(ev)
			if err != nil {
				result.Errors = append(result.Errors, SyncError{Segment: seg.Name, EventID: ev.ID, Error: err.Error()})
				contiguous = false
				continue
			}
			if applied {
				result.EventsApplied++
			} else {
				result.EventsSkipped++
			}
			if contiguous && ev.Timestamp > advance {
				advance = ev.Timestamp
			}
		}

		cp.LastSyncedFiles[seg.Name] = advance
		if advance > cp.LastEventTimestamp {
			cp.LastEventTimestamp = advance
		}
	}

	result.LastSyncTimestamp = time.Now().UnixMilli()
	result.Duration = time.Since(start)
	result.Success = len(result.Errors) == 0

	if err := SaveCheckpoint(r.checkpointPath, cp); err != nil {
		return result, err
	}

	slog.Info("sync complete",
		"applied", result.EventsApplied,
		"skipped", result.EventsSkipped,
		"errors", len(result.Errors),
		"duration", result.Duration)
	return result, nil
}

// Rebuild clears the projection and the device checkpoint, then replays the
// whole log from empty. The projection is disposable by design.
func (r *Reconciler) Rebuild(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	if err := r.cache.Reset(); err != nil {
		r.mu.Unlock()
		return SyncResult{}, fmt.Errorf("rebuild: %w", err)
	}
	cp := Checkpoint{DeviceID: r.deviceID, LastSyncedFiles: map[string]int64{}}
	if err := SaveCheckpoint(r.checkpointPath, cp); err != nil {
		r.mu.Unlock()
		return SyncResult{}, fmt.Errorf("rebuild: %w", err)
	}
	r.mu.Unlock()

	return r.Sync(ctx)
}
