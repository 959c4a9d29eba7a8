package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
)

// AddMessage appends one turn to a conversation and returns the message id.
// Sequence numbers are assigned under a lock so they stay contiguous and
// strictly increasing per conversation even when adds race. A message with
// empty content starts in the draft state.
func (a *Adapter) AddMessage(msg model.Message) (string, error) {
	if msg.ConversationID == "" {
		return "", fmt.Errorf("add message: conversationId required")
	}
	switch msg.Role {
	case model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleTool:
	default:
		return "", fmt.Errorf("add message: unknown role %q", msg.Role)
	}

	// Auto-create a minimal conversation when the reference is dangling,
	// same policy as traces into a missing session.
	conv, err := a.cache.GetConversation(msg.ConversationID)
	if err != nil {
		return "", err
	}
	if conv == nil {
		if _, err := a.CreateConversation(model.Conversation{ID: msg.ConversationID}); err != nil {
			return "", fmt.Errorf("add message: %w", err)
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = model.Now()
	}
	if msg.State == "" {
		if msg.Content == "" {
			msg.State = model.MessageDraft
		} else {
			msg.State = model.MessageComplete
		}
	}

	a.msgMu.Lock()
	defer a.msgMu.Unlock()

	seq, err := a.cache.NextSequenceNumber(msg.ConversationID)
	if err != nil {
		return "", err
	}
	msg.SequenceNumber = seq

	if err := a.emit(model.EventMessageAdded, &msg); err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}
	return msg.ID, nil
}

// GetMessage returns the message or nil if absent.
func (a *Adapter) GetMessage(id string) (*model.Message, error) {
	return a.cache.GetMessage(id)
}

// GetMessages lists messages with filter/sort/search/pagination.
func (a *Adapter) GetMessages(opts model.ListOptions) (model.PaginatedResult[model.Message], error) {
	return a.cache.ListMessages(opts)
}

// GetConversationMessages returns all messages of a conversation in
// sequence order.
func (a *Adapter) GetConversationMessages(conversationID string) ([]model.Message, error) {
	return a.cache.MessagesForConversation(conversationID)
}

// UpdateMessage applies a partial update to a message of the given
// conversation. Timestamp and sequenceNumber are immutable; attempts to
// change them are dropped by the projection. Returns false if the message is
// absent or belongs to a different conversation.
func (a *Adapter) UpdateMessage(conversationID, messageID string, fields map[string]any) (bool, error) {
	existing, err := a.cache.GetMessage(messageID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.ConversationID != conversationID {
		return false, nil
	}
	if err := a.emit(model.EventMessageUpdated, model.UpdatePayload{ID: messageID, Fields: fields}); err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}
	return true, nil
}

// DeleteMessage removes one message. Later sequence numbers are not
// renumbered; gaplessness is an append-time invariant.
func (a *Adapter) DeleteMessage(conversationID, messageID string) (bool, error) {
	existing, err := a.cache.GetMessage(messageID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.ConversationID != conversationID {
		return false, nil
	}
	if err := a.emit(model.EventMessageDeleted, model.DeletePayload{ID: messageID}); err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return true, nil
}
