package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
)

// CreateState snapshots content under a session. A missing session is
// auto-created; the state's workspaceId is always denormalized from the
// parent session so the two can never disagree.
func (a *Adapter) CreateState(st model.State) (string, error) {
	session, err := a.ensureSession(st.SessionID, st.WorkspaceID)
	if err != nil {
		return "", fmt.Errorf("create state: %w", err)
	}
	st.SessionID = session.ID
	st.WorkspaceID = session.WorkspaceID
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Created == 0 {
		st.Created = model.Now()
	}
	if err := a.emit(model.EventStateCreated, &st); err != nil {
		return "", fmt.Errorf("create state: %w", err)
	}
	if err := a.touchWorkspace(session.WorkspaceID); err != nil {
		return "", err
	}
	a.invalidateState(st.ID)
	a.invalidateSession(session.ID)
	return st.ID, nil
}

// GetState returns the state or nil if absent.
func (a *Adapter) GetState(id string) (*model.State, error) {
	return a.cache.GetState(id)
}

// GetStates lists states with filter/sort/search/pagination.
func (a *Adapter) GetStates(opts model.ListOptions) (model.PaginatedResult[model.State], error) {
	return a.cache.ListStates(opts)
}

// UpdateState applies a partial update. Returns false if absent.
func (a *Adapter) UpdateState(id string, fields map[string]any) (bool, error) {
	existing, err := a.cache.GetState(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventStateUpdated, model.UpdatePayload{ID: id, Fields: fields}); err != nil {
		return false, fmt.Errorf("update state: %w", err)
	}
	a.invalidateState(id)
	a.invalidateSession(existing.SessionID)
	return true, nil
}

// DeleteState removes the state. Returns false if absent.
func (a *Adapter) DeleteState(id string) (bool, error) {
	existing, err := a.cache.GetState(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventStateDeleted, model.DeletePayload{ID: id}); err != nil {
		return false, fmt.Errorf("delete state: %w", err)
	}
	a.invalidateState(id)
	a.invalidateSession(existing.SessionID)
	return true, nil
}
