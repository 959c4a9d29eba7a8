package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType is the closed set of event kinds carried by the log.
type EventType string

const (
	EventWorkspaceCreated EventType = "workspace.created"
	EventWorkspaceUpdated EventType = "workspace.updated"
	EventWorkspaceDeleted EventType = "workspace.deleted"

	EventSessionCreated EventType = "session.created"
	EventSessionUpdated EventType = "session.updated"
	EventSessionDeleted EventType = "session.deleted"

	EventStateCreated EventType = "state.created"
	EventStateUpdated EventType = "state.updated"
	EventStateDeleted EventType = "state.deleted"

	EventTraceCreated EventType = "trace.created"
	EventTraceDeleted EventType = "trace.deleted"

	EventConversationCreated EventType = "conversation.created"
	EventConversationUpdated EventType = "conversation.updated"
	EventConversationDeleted EventType = "conversation.deleted"

	EventMessageAdded   EventType = "message.added"
	EventMessageUpdated EventType = "message.updated"
	EventMessageDeleted EventType = "message.deleted"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventWorkspaceCreated, EventWorkspaceUpdated, EventWorkspaceDeleted,
		EventSessionCreated, EventSessionUpdated, EventSessionDeleted,
		EventStateCreated, EventStateUpdated, EventStateDeleted,
		EventTraceCreated, EventTraceDeleted,
		EventConversationCreated, EventConversationUpdated, EventConversationDeleted,
		EventMessageAdded, EventMessageUpdated, EventMessageDeleted:
		return true
	}
	return false
}

// Entity returns the entity-type prefix of the event ("workspace",
// "session", ...). It names the log segment the event belongs to.
func (t EventType) Entity() string {
	s := string(t)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

// StorageEvent is one self-describing record in a log segment. Appends are
// the only mutation of the log; updates and deletes are events referencing
// the target id in their payload.
type StorageEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	DeviceID  string          `json:"deviceId"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// NewEvent builds a StorageEvent with a marshalled payload.
func NewEvent(id string, typ EventType, deviceID string, payload any) (StorageEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return StorageEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return StorageEvent{
		ID:        id,
		Type:      typ,
		Timestamp: Now(),
		DeviceID:  deviceID,
		Payload:   raw,
	}, nil
}

// DeletePayload is the payload shape of every *.deleted event.
type DeletePayload struct {
	ID string `json:"id"`
}

// UpdatePayload is the payload shape of every *.updated event: the target id
// plus the changed fields.
type UpdatePayload struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
