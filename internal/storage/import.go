package storage

import (
	"fmt"
	"log/slog"

	"github.com/weft-labs/weft/internal/model"
)

// Import modes.
const (
	ImportModeMerge   = "merge"
	ImportModeReplace = "replace"
)

// Conflict resolutions for ids colliding between import data and existing
// data.
const (
	ConflictSkip      = "skip"
	ConflictOverwrite = "overwrite"
)

// ImportOptions controls ImportData behavior.
type ImportOptions struct {
	Mode               string            `json:"mode"`
	ConflictResolution string            `json:"conflictResolution"`
	// WorkspaceMapping remaps workspace ids from the snapshot onto local
	// ids before import.
	WorkspaceMapping map[string]string `json:"workspaceMapping,omitempty"`
}

// ImportResult summarizes one ImportData run.
type ImportResult struct {
	WorkspacesImported    int `json:"workspacesImported"`
	SessionsImported      int `json:"sessionsImported"`
	StatesImported        int `json:"statesImported"`
	TracesImported        int `json:"tracesImported"`
	ConversationsImported int `json:"conversationsImported"`
	MessagesImported      int `json:"messagesImported"`
	Skipped               int `json:"skipped"`
}

// ImportData loads a full snapshot. Merge mode unions by id; replace mode
// clears existing data first. On an id collision, ConflictSkip keeps the
// existing entity untouched and ConflictOverwrite replaces it with the
// imported one. Created events are upserts in the projection, so overwrite
// is simply a re-emit.
func (a *Adapter) ImportData(data *ExportData, opts ImportOptions) (*ImportResult, error) {
	if data == nil {
		return nil, fmt.Errorf("import: nil payload")
	}
	if data.Version > ExportVersion {
		return nil, fmt.Errorf("import: unsupported export version %d", data.Version)
	}
	switch opts.Mode {
	case "", ImportModeMerge:
		opts.Mode = ImportModeMerge
	case ImportModeReplace:
	default:
		return nil, fmt.Errorf("import: unknown mode %q", opts.Mode)
	}
	switch opts.ConflictResolution {
	case "", ConflictSkip:
		opts.ConflictResolution = ConflictSkip
	case ConflictOverwrite:
	default:
		return nil, fmt.Errorf("import: unknown conflict resolution %q", opts.ConflictResolution)
	}

	if opts.Mode == ImportModeReplace {
		if err := a.clearAll(); err != nil {
			return nil, fmt.Errorf("import replace: %w", err)
		}
	}

	result := &ImportResult{}
	overwrite := opts.ConflictResolution == ConflictOverwrite

	for _, we := range data.Workspaces {
		w := we.Metadata
		if mapped, ok := opts.WorkspaceMapping[w.ID]; ok {
			w.ID = mapped
		}

		existing, err := a.cache.GetWorkspace(w.ID)
		if err != nil {
			return result, err
		}
		switch {
		case existing == nil || overwrite:
			if err := a.emit(model.EventWorkspaceCreated, &w); err != nil {
				return result, fmt.Errorf("import workspace %s: %w", w.ID, err)
			}
			result.WorkspacesImported++
		default:
			result.Skipped++
		}
		a.invalidateWorkspace(w.ID)

		for _, s := range we.Sessions {
			s.WorkspaceID = w.ID
			n, err := a.importEntity(s.ID, func() (bool, error) {
				got, err := a.cache.GetSession(s.ID)
				return got != nil, err
			}, model.EventSessionCreated, &s, overwrite)
			if err != nil {
				return result, err
			}
			result.SessionsImported += n
			if n == 0 {
				result.Skipped++
			}
			a.invalidateSession(s.ID)
		}
		for _, st := range we.States {
			st.WorkspaceID = w.ID
			n, err := a.importEntity(st.ID, func() (bool, error) {
				got, err := a.cache.GetState(st.ID)
				return got != nil, err
			}, model.EventStateCreated, &st, overwrite)
			if err != nil {
				return result, err
			}
			result.StatesImported += n
			if n == 0 {
				result.Skipped++
			}
		}
		for _, tr := range we.Traces {
			tr.WorkspaceID = w.ID
			n, err := a.importEntity(tr.ID, func() (bool, error) {
				got, err := a.cache.GetTrace(tr.ID)
				return got != nil, err
			}, model.EventTraceCreated, &tr, overwrite)
			if err != nil {
				return result, err
			}
			result.TracesImported += n
			if n == 0 {
				result.Skipped++
			}
		}
	}

	for _, ce := range data.Conversations {
		conv := ce.Metadata
		if mapped, ok := opts.WorkspaceMapping[conv.WorkspaceID]; ok {
			conv.WorkspaceID = mapped
		}
		n, err := a.importEntity(conv.ID, func() (bool, error) {
			got, err := a.cache.GetConversation(conv.ID)
			return got != nil, err
		}, model.EventConversationCreated, &conv, overwrite)
		if err != nil {
			return result, err
		}
		result.ConversationsImported += n
		if n == 0 {
			result.Skipped++
		}

		for _, msg := range ce.Messages {
			// Messages keep their snapshot sequence numbers; the gapless
			// invariant is preserved because a whole conversation imports
			// as a unit.
			n, err := a.importEntity(msg.ID, func() (bool, error) {
				got, err := a.cache.GetMessage(msg.ID)
				return got != nil, err
			}, model.EventMessageAdded, &msg, overwrite)
			if err != nil {
				return result, err
			}
			result.MessagesImported += n
			if n == 0 {
				result.Skipped++
			}
		}
	}

	slog.Info("import complete",
		"mode", opts.Mode,
		"workspaces", result.WorkspacesImported,
		"conversations", result.ConversationsImported,
		"skipped", result.Skipped)
	return result, nil
}

// importEntity emits a created event for one entity unless it exists and
// conflicts resolve to skip. Returns 1 if the entity was written.
func (a *Adapter) importEntity(id string, exists func() (bool, error), typ model.EventType, payload any, overwrite bool) (int, error) {
	found, err := exists()
	if err != nil {
		return 0, err
	}
	if found && !overwrite {
		return 0, nil
	}
	if err := a.emit(typ, payload); err != nil {
		return 0, fmt.Errorf("import %s %s: %w", typ.Entity(), id, err)
	}
	return 1, nil
}

// clearAll deletes every workspace and conversation (cascading to children)
// ahead of a replace-mode import.
func (a *Adapter) clearAll() error {
	workspaces, err := a.cache.AllWorkspaces()
	if err != nil {
		return err
	}
	for _, w := range workspaces {
		if _, err := a.DeleteWorkspace(w.ID); err != nil {
			return err
		}
	}
	convs, err := a.cache.AllConversations()
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if _, err := a.DeleteConversation(conv.ID); err != nil {
			return err
		}
	}
	return nil
}
