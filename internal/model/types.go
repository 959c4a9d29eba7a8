// Package model defines the entities persisted by the weft storage engine.
package model

import "time"

// Now returns the current time as epoch milliseconds. All entity and event
// timestamps use this representation so log lines stay portable across
// devices and languages.
func Now() int64 {
	return time.Now().UnixMilli()
}

// WorkspaceContext carries optional structured context bound to a workspace.
type WorkspaceContext struct {
	Purpose      string            `json:"purpose,omitempty"`
	CurrentGoal  string            `json:"currentGoal,omitempty"`
	Workflows    map[string]string `json:"workflows,omitempty"`
	KeyFiles     []string          `json:"keyFiles,omitempty"`
	Preferences  string            `json:"preferences,omitempty"`
	DefaultAgent string            `json:"defaultAgent,omitempty"`
}

// Workspace is the organizational root. It owns sessions, and transitively
// states and traces.
type Workspace struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	RootPath     string            `json:"rootPath,omitempty"`
	Created      int64             `json:"created"`
	LastAccessed int64             `json:"lastAccessed"`
	IsActive     bool              `json:"isActive"`
	Context      *WorkspaceContext `json:"context,omitempty"`
}

// Session is a bounded period of work inside a workspace. WorkspaceID is a
// relation, not ownership in the pointer sense; lookups go through the query
// cache.
type Session struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartTime   int64  `json:"startTime"`
	EndTime     int64  `json:"endTime,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// State is a named point-in-time snapshot of arbitrary structured content,
// scoped to one session. WorkspaceID is denormalized for query speed and must
// equal the parent session's workspace.
type State struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	WorkspaceID string         `json:"workspaceId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Created     int64          `json:"created"`
	Tags        []string       `json:"tags,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
}

// MemoryTrace is an append-only activity-log entry scoped to one session.
// Traces are never updated, only created and deleted.
type MemoryTrace struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	WorkspaceID string         `json:"workspaceId"`
	Timestamp   int64          `json:"timestamp"`
	Type        string         `json:"type,omitempty"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Branch types for conversations that continue another conversation.
const (
	BranchTypeAlternative = "alternative"
	BranchTypeSubTask     = "subtask"
)

// ConversationMeta holds optional conversation metadata, including branch
// linkage. A conversation with ParentConversationID set is a branch; the
// conversation graph forms a tree rooted at non-branch conversations.
type ConversationMeta struct {
	ParentConversationID string         `json:"parentConversationId,omitempty"`
	ParentMessageID      string         `json:"parentMessageId,omitempty"`
	BranchType           string         `json:"branchType,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

// Conversation is a titled message thread.
type Conversation struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Created      int64             `json:"created"`
	Updated      int64             `json:"updated"`
	Space        string            `json:"space,omitempty"`
	MessageCount int               `json:"messageCount"`
	WorkspaceID  string            `json:"workspaceId,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	Meta         *ConversationMeta `json:"meta,omitempty"`
}

// IsBranch reports whether the conversation branches off another one.
func (c *Conversation) IsBranch() bool {
	return c.Meta != nil && c.Meta.ParentConversationID != ""
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message lifecycle states. A message starts as draft (empty content),
// may pass through streaming, and ends complete, aborted or invalid.
const (
	MessageDraft     = "draft"
	MessageStreaming = "streaming"
	MessageComplete  = "complete"
	MessageAborted   = "aborted"
	MessageInvalid   = "invalid"
)

// ToolCall records one structured tool invocation inside a message.
type ToolCall struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
}

// Message is one turn in a conversation. SequenceNumber is strictly
// increasing and gapless per conversation, starting at 0.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	Timestamp      int64      `json:"timestamp"`
	SequenceNumber int        `json:"sequenceNumber"`
	State          string     `json:"state"`
	ToolCalls      []ToolCall `json:"toolCalls,omitempty"`
	Reasoning      string     `json:"reasoning,omitempty"`
	Alternatives   []string   `json:"alternatives,omitempty"`
}
