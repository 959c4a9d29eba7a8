package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
)

// CreateSession appends a session.created event and returns the new id. A
// missing workspace reference is resolved by auto-creating the workspace
// (or the engine's default workspace when none is named).
func (a *Adapter) CreateSession(s model.Session) (string, error) {
	workspaceID, err := a.ensureWorkspace(s.WorkspaceID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.WorkspaceID = workspaceID
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Name == "" {
		s.Name = "session-" + s.ID[:8]
	}
	if s.StartTime == 0 {
		s.StartTime = model.Now()
	}
	if err := a.emit(model.EventSessionCreated, &s); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := a.touchWorkspace(workspaceID); err != nil {
		return "", err
	}
	a.invalidateSession(s.ID)
	return s.ID, nil
}

// GetSession returns the session or nil if absent.
func (a *Adapter) GetSession(id string) (*model.Session, error) {
	return a.cache.GetSession(id)
}

// GetSessions lists sessions with filter/sort/search/pagination.
func (a *Adapter) GetSessions(opts model.ListOptions) (model.PaginatedResult[model.Session], error) {
	return a.cache.ListSessions(opts)
}

// UpdateSession applies a partial update. Returns false if absent.
func (a *Adapter) UpdateSession(id string, fields map[string]any) (bool, error) {
	existing, err := a.cache.GetSession(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventSessionUpdated, model.UpdatePayload{ID: id, Fields: fields}); err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	a.invalidateSession(id)
	a.invalidateWorkspace(existing.WorkspaceID)
	return true, nil
}

// DeleteSession removes the session and cascades to its states and traces.
func (a *Adapter) DeleteSession(id string) (bool, error) {
	existing, err := a.cache.GetSession(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventSessionDeleted, model.DeletePayload{ID: id}); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	a.invalidateSession(id)
	a.invalidateWorkspace(existing.WorkspaceID)
	return true, nil
}

// ensureSession auto-creates a minimal session (and transitively its
// workspace) for writes that reference a missing one. Returns the session,
// which callers use to denormalize workspaceId.
func (a *Adapter) ensureSession(sessionID, workspaceHint string) (*model.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	existing, err := a.cache.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if _, err := a.CreateSession(model.Session{ID: sessionID, WorkspaceID: workspaceHint, IsActive: true}); err != nil {
		return nil, err
	}
	return a.cache.GetSession(sessionID)
}
