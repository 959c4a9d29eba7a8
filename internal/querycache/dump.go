package querycache

import (
	"fmt"

	"github.com/weft-labs/weft/internal/model"
)

// Unpaginated enumeration helpers used by export and rebuild paths.

func (c *Cache) AllWorkspaces() ([]model.Workspace, error) {
	rows, err := c.db.Query(selectWorkspace + " ORDER BY created ASC")
	if err != nil {
		return nil, fmt.Errorf("all workspaces: %w", err)
	}
	defer rows.Close()
	var out []model.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (c *Cache) SessionsForWorkspace(workspaceID string) ([]model.Session, error) {
	rows, err := c.db.Query(selectSession+" WHERE workspace_id = ? ORDER BY start_time ASC", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("sessions for workspace: %w", err)
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *Cache) StatesForWorkspace(workspaceID string) ([]model.State, error) {
	rows, err := c.db.Query(selectState+" WHERE workspace_id = ? ORDER BY created ASC", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("states for workspace: %w", err)
	}
	defer rows.Close()
	var out []model.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (c *Cache) TracesForWorkspace(workspaceID string) ([]model.MemoryTrace, error) {
	rows, err := c.db.Query(selectTrace+" WHERE workspace_id = ? ORDER BY timestamp ASC", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("traces for workspace: %w", err)
	}
	defer rows.Close()
	var out []model.MemoryTrace
	for rows.Next() {
		tr, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

func (c *Cache) AllConversations() ([]model.Conversation, error) {
	rows, err := c.db.Query(selectConversation + " ORDER BY created ASC")
	if err != nil {
		return nil, fmt.Errorf("all conversations: %w", err)
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}
