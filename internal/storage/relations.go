package storage

import "github.com/weft-labs/weft/internal/model"

// Relation and batch lookups used by the caching and prefetch layers. These
// are plain index reads over the query cache; parent links are id fields, not
// back-pointers.

// SessionIDsForWorkspace returns the session ids of a workspace, most recent
// first.
func (a *Adapter) SessionIDsForWorkspace(workspaceID string) ([]string, error) {
	return a.cache.SessionIDsForWorkspace(workspaceID)
}

// RecentSessionIDs returns up to limit session ids for a workspace, most
// recent first.
func (a *Adapter) RecentSessionIDs(workspaceID string, limit int) ([]string, error) {
	return a.cache.RecentSessionIDs(workspaceID, limit)
}

// StateIDsForSession returns the state ids of a session, most recent first.
func (a *Adapter) StateIDsForSession(sessionID string) ([]string, error) {
	return a.cache.StateIDsForSession(sessionID)
}

// StateIDsForWorkspace returns the state ids of a workspace, most recent
// first.
func (a *Adapter) StateIDsForWorkspace(workspaceID string) ([]string, error) {
	return a.cache.StateIDsForWorkspace(workspaceID)
}

// SiblingStateIDs returns up to limit states from the same session, most
// recent first, excluding the given state.
func (a *Adapter) SiblingStateIDs(sessionID, excludeID string, limit int) ([]string, error) {
	return a.cache.SiblingStateIDs(sessionID, excludeID, limit)
}

// GetSessionsByIDs loads the listed sessions in one query. Missing ids are
// silently absent from the result.
func (a *Adapter) GetSessionsByIDs(ids []string) ([]model.Session, error) {
	return a.cache.GetSessionsByIDs(ids)
}

// GetStatesByIDs loads the listed states in one query. Missing ids are
// silently absent from the result.
func (a *Adapter) GetStatesByIDs(ids []string) ([]model.State, error) {
	return a.cache.GetStatesByIDs(ids)
}

// RecentTraces returns up to limit traces of a session, most recent first.
func (a *Adapter) RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error) {
	return a.cache.RecentTraces(sessionID, limit)
}
