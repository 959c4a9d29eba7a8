package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
)

// CreateWorkspace appends a workspace.created event and returns the new id.
// The top-level workspace path requires an explicit name (or id): it is the
// one place where referential-gap auto-creation does not apply.
func (a *Adapter) CreateWorkspace(w model.Workspace) (string, error) {
	if w.Name == "" && w.ID == "" {
		return "", fmt.Errorf("create workspace: name or id required")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Name == "" {
		w.Name = w.ID
	}
	now := model.Now()
	if w.Created == 0 {
		w.Created = now
	}
	if w.LastAccessed == 0 {
		w.LastAccessed = now
	}
	if err := a.emit(model.EventWorkspaceCreated, &w); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	a.invalidateWorkspace(w.ID)
	return w.ID, nil
}

// GetWorkspace returns the workspace or nil if absent. Absence is data, not
// an error.
func (a *Adapter) GetWorkspace(id string) (*model.Workspace, error) {
	return a.cache.GetWorkspace(id)
}

// GetWorkspaces lists workspaces with filter/sort/search/pagination.
func (a *Adapter) GetWorkspaces(opts model.ListOptions) (model.PaginatedResult[model.Workspace], error) {
	return a.cache.ListWorkspaces(opts)
}

// UpdateWorkspace applies a partial update. Returns false if the workspace
// does not exist.
func (a *Adapter) UpdateWorkspace(id string, fields map[string]any) (bool, error) {
	existing, err := a.cache.GetWorkspace(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventWorkspaceUpdated, model.UpdatePayload{ID: id, Fields: fields}); err != nil {
		return false, fmt.Errorf("update workspace: %w", err)
	}
	a.invalidateWorkspace(id)
	return true, nil
}

// DeleteWorkspace removes the workspace and cascades to its sessions,
// states and traces. Returns false if the workspace does not exist.
func (a *Adapter) DeleteWorkspace(id string) (bool, error) {
	existing, err := a.cache.GetWorkspace(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	sessionIDs, err := a.cache.SessionIDsForWorkspace(id)
	if err != nil {
		return false, err
	}
	if err := a.emit(model.EventWorkspaceDeleted, model.DeletePayload{ID: id}); err != nil {
		return false, fmt.Errorf("delete workspace: %w", err)
	}
	for _, sid := range sessionIDs {
		a.invalidateSession(sid)
	}
	a.invalidateWorkspace(id)
	return true, nil
}

// touchWorkspace bumps lastAccessed; called on any child activity.
func (a *Adapter) touchWorkspace(id string) error {
	err := a.emit(model.EventWorkspaceUpdated, model.UpdatePayload{
		ID:     id,
		Fields: map[string]any{"lastAccessed": model.Now()},
	})
	if err != nil {
		return fmt.Errorf("touch workspace: %w", err)
	}
	a.invalidateWorkspace(id)
	return nil
}

// ensureWorkspace auto-creates a minimal workspace for writes that reference
// a missing one (referential integrity by creation, not rejection).
func (a *Adapter) ensureWorkspace(id string) (string, error) {
	if id == "" {
		id = a.opts.DefaultWorkspaceID
	}
	existing, err := a.cache.GetWorkspace(id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return id, nil
	}
	_, err = a.CreateWorkspace(model.Workspace{ID: id, Name: id, IsActive: true})
	if err != nil {
		return "", err
	}
	return id, nil
}
