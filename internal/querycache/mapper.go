package querycache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/weft-labs/weft/internal/model"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const (
	selectWorkspace = `SELECT id, name, description, root_path, created, last_accessed, is_active, context FROM workspaces`
	selectSession   = `SELECT id, workspace_id, name, description, start_time, end_time, is_active FROM sessions`
	selectState     = `SELECT id, session_id, workspace_id, name, description, created, tags, content FROM states`
	selectTrace     = `SELECT id, session_id, workspace_id, timestamp, type, content, metadata FROM traces`

	selectConversation = `SELECT id, title, created, updated, space, message_count, workspace_id, session_id,
		parent_conversation_id, parent_message_id, branch_type, meta FROM conversations`
	selectMessage = `SELECT id, conversation_id, role, content, timestamp, sequence_number, state,
		tool_calls, reasoning, alternatives FROM messages`
)

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(raw), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func upsertWorkspace(e execer, w *model.Workspace) error {
	ctx := ""
	if w.Context != nil {
		var err error
		if ctx, err = marshalJSON(w.Context); err != nil {
			return err
		}
	}
	_, err := e.Exec(`
		INSERT INTO workspaces (id, name, description, root_path, created, last_accessed, is_active, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			root_path = excluded.root_path, created = excluded.created,
			last_accessed = excluded.last_accessed, is_active = excluded.is_active,
			context = excluded.context
	`, w.ID, w.Name, w.Description, w.RootPath, w.Created, w.LastAccessed, boolToInt(w.IsActive), ctx)
	return err
}

func scanWorkspace(s scanner) (*model.Workspace, error) {
	var w model.Workspace
	var active int
	var ctx string
	err := s.Scan(&w.ID, &w.Name, &w.Description, &w.RootPath, &w.Created, &w.LastAccessed, &active, &ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	w.IsActive = active != 0
	if ctx != "" {
		w.Context = &model.WorkspaceContext{}
		if err := unmarshalJSON(ctx, w.Context); err != nil {
			return nil, fmt.Errorf("decode workspace context: %w", err)
		}
	}
	return &w, nil
}

func upsertSession(e execer, s *model.Session) error {
	_, err := e.Exec(`
		INSERT INTO sessions (id, workspace_id, name, description, start_time, end_time, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id, name = excluded.name,
			description = excluded.description, start_time = excluded.start_time,
			end_time = excluded.end_time, is_active = excluded.is_active
	`, s.ID, s.WorkspaceID, s.Name, s.Description, s.StartTime, s.EndTime, boolToInt(s.IsActive))
	return err
}

func scanSession(s scanner) (*model.Session, error) {
	var sess model.Session
	var active int
	err := s.Scan(&sess.ID, &sess.WorkspaceID, &sess.Name, &sess.Description, &sess.StartTime, &sess.EndTime, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.IsActive = active != 0
	return &sess, nil
}

func upsertState(e execer, st *model.State) error {
	tags, err := marshalJSON(st.Tags)
	if err != nil {
		return err
	}
	content, err := marshalJSON(st.Content)
	if err != nil {
		return err
	}
	_, err = e.Exec(`
		INSERT INTO states (id, session_id, workspace_id, name, description, created, tags, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id, workspace_id = excluded.workspace_id,
			name = excluded.name, description = excluded.description,
			created = excluded.created, tags = excluded.tags, content = excluded.content
	`, st.ID, st.SessionID, st.WorkspaceID, st.Name, st.Description, st.Created, tags, content)
	return err
}

func scanState(s scanner) (*model.State, error) {
	var st model.State
	var tags, content string
	err := s.Scan(&st.ID, &st.SessionID, &st.WorkspaceID, &st.Name, &st.Description, &st.Created, &tags, &content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}
	if err := unmarshalJSON(tags, &st.Tags); err != nil {
		return nil, fmt.Errorf("decode state tags: %w", err)
	}
	if err := unmarshalJSON(content, &st.Content); err != nil {
		return nil, fmt.Errorf("decode state content: %w", err)
	}
	return &st, nil
}

func upsertTrace(e execer, tr *model.MemoryTrace) error {
	meta, err := marshalJSON(tr.Metadata)
	if err != nil {
		return err
	}
	_, err = e.Exec(`
		INSERT INTO traces (id, session_id, workspace_id, timestamp, type, content, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id, workspace_id = excluded.workspace_id,
			timestamp = excluded.timestamp, type = excluded.type,
			content = excluded.content, metadata = excluded.metadata
	`, tr.ID, tr.SessionID, tr.WorkspaceID, tr.Timestamp, tr.Type, tr.Content, meta)
	return err
}

func scanTrace(s scanner) (*model.MemoryTrace, error) {
	var tr model.MemoryTrace
	var meta string
	err := s.Scan(&tr.ID, &tr.SessionID, &tr.WorkspaceID, &tr.Timestamp, &tr.Type, &tr.Content, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	if err := unmarshalJSON(meta, &tr.Metadata); err != nil {
		return nil, fmt.Errorf("decode trace metadata: %w", err)
	}
	return &tr, nil
}

func upsertConversation(e execer, conv *model.Conversation) error {
	meta := ""
	parentConv, parentMsg, branchType := "", "", ""
	if conv.Meta != nil {
		var err error
		if meta, err = marshalJSON(conv.Meta); err != nil {
			return err
		}
		parentConv = conv.Meta.ParentConversationID
		parentMsg = conv.Meta.ParentMessageID
		branchType = conv.Meta.BranchType
	}
	_, err := e.Exec(`
		INSERT INTO conversations (id, title, created, updated, space, message_count,
			workspace_id, session_id, parent_conversation_id, parent_message_id, branch_type, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, created = excluded.created, updated = excluded.updated,
			space = excluded.space, message_count = excluded.message_count,
			workspace_id = excluded.workspace_id, session_id = excluded.session_id,
			parent_conversation_id = excluded.parent_conversation_id,
			parent_message_id = excluded.parent_message_id,
			branch_type = excluded.branch_type, meta = excluded.meta
	`, conv.ID, conv.Title, conv.Created, conv.Updated, conv.Space, conv.MessageCount,
		conv.WorkspaceID, conv.SessionID, parentConv, parentMsg, branchType, meta)
	return err
}

func scanConversation(s scanner) (*model.Conversation, error) {
	var conv model.Conversation
	var parentConv, parentMsg, branchType, meta string
	err := s.Scan(&conv.ID, &conv.Title, &conv.Created, &conv.Updated, &conv.Space, &conv.MessageCount,
		&conv.WorkspaceID, &conv.SessionID, &parentConv, &parentMsg, &branchType, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if meta != "" {
		conv.Meta = &model.ConversationMeta{}
		if err := unmarshalJSON(meta, conv.Meta); err != nil {
			return nil, fmt.Errorf("decode conversation meta: %w", err)
		}
	} else if parentConv != "" {
		conv.Meta = &model.ConversationMeta{
			ParentConversationID: parentConv,
			ParentMessageID:      parentMsg,
			BranchType:           branchType,
		}
	}
	return &conv, nil
}

func upsertMessage(e execer, msg *model.Message) error {
	toolCalls, err := marshalJSON(msg.ToolCalls)
	if err != nil {
		return err
	}
	alts, err := marshalJSON(msg.Alternatives)
	if err != nil {
		return err
	}
	_, err = e.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, timestamp, sequence_number,
			state, tool_calls, reasoning, alternatives)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role, content = excluded.content,
			state = excluded.state, tool_calls = excluded.tool_calls,
			reasoning = excluded.reasoning, alternatives = excluded.alternatives
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp, msg.SequenceNumber,
		msg.State, toolCalls, msg.Reasoning, alts)
	return err
}

func scanMessage(s scanner) (*model.Message, error) {
	var msg model.Message
	var toolCalls, alts string
	err := s.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Timestamp,
		&msg.SequenceNumber, &msg.State, &toolCalls, &msg.Reasoning, &alts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if err := unmarshalJSON(toolCalls, &msg.ToolCalls); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	if err := unmarshalJSON(alts, &msg.Alternatives); err != nil {
		return nil, fmt.Errorf("decode alternatives: %w", err)
	}
	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
