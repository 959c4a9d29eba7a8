package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
)

// CreateTrace appends an activity-log entry under a session. Traces are
// append-only: there is no update path, only create and delete.
func (a *Adapter) CreateTrace(tr model.MemoryTrace) (string, error) {
	session, err := a.ensureSession(tr.SessionID, tr.WorkspaceID)
	if err != nil {
		return "", fmt.Errorf("create trace: %w", err)
	}
	tr.SessionID = session.ID
	tr.WorkspaceID = session.WorkspaceID
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Timestamp == 0 {
		tr.Timestamp = model.Now()
	}
	if err := a.emit(model.EventTraceCreated, &tr); err != nil {
		return "", fmt.Errorf("create trace: %w", err)
	}
	if err := a.touchWorkspace(session.WorkspaceID); err != nil {
		return "", err
	}
	a.invalidateSession(session.ID)
	return tr.ID, nil
}

// GetTrace returns the trace or nil if absent.
func (a *Adapter) GetTrace(id string) (*model.MemoryTrace, error) {
	return a.cache.GetTrace(id)
}

// GetTraces lists traces with filter/sort/search/pagination.
func (a *Adapter) GetTraces(opts model.ListOptions) (model.PaginatedResult[model.MemoryTrace], error) {
	return a.cache.ListTraces(opts)
}

// DeleteTrace removes the trace. Returns false if absent.
func (a *Adapter) DeleteTrace(id string) (bool, error) {
	existing, err := a.cache.GetTrace(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventTraceDeleted, model.DeletePayload{ID: id}); err != nil {
		return false, fmt.Errorf("delete trace: %w", err)
	}
	a.invalidateSession(existing.SessionID)
	return true, nil
}

// SearchTraces runs a free-text search over trace content in a workspace,
// optionally narrowed to one session.
func (a *Adapter) SearchTraces(workspaceID, query, sessionID string) ([]model.MemoryTrace, error) {
	return a.cache.SearchTraces(workspaceID, query, sessionID, 0)
}
