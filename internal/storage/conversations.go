package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/weft-labs/weft/internal/model"
	"github.com/weft-labs/weft/internal/querycache"
)

// CreateConversation appends a conversation.created event and returns the
// new id. Branch linkage is validated: a branch's parentMessageId must be a
// message of its parentConversationId.
func (a *Adapter) CreateConversation(conv model.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := model.Now()
	if conv.Created == 0 {
		conv.Created = now
	}
	if conv.Updated == 0 {
		conv.Updated = now
	}

	if conv.IsBranch() {
		if err := a.validateBranch(conv.Meta); err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
	}

	if err := a.emit(model.EventConversationCreated, &conv); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return conv.ID, nil
}

func (a *Adapter) validateBranch(meta *model.ConversationMeta) error {
	parent, err := a.cache.GetConversation(meta.ParentConversationID)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("branch parent conversation %s not found", meta.ParentConversationID)
	}
	if meta.ParentMessageID == "" {
		return fmt.Errorf("branch conversation requires parentMessageId")
	}
	msg, err := a.cache.GetMessage(meta.ParentMessageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.ConversationID != meta.ParentConversationID {
		return fmt.Errorf("branch parent message %s does not belong to conversation %s",
			meta.ParentMessageID, meta.ParentConversationID)
	}
	switch meta.BranchType {
	case model.BranchTypeAlternative, model.BranchTypeSubTask:
		return nil
	default:
		return fmt.Errorf("unknown branch type %q", meta.BranchType)
	}
}

// GetConversation returns the conversation or nil if absent.
func (a *Adapter) GetConversation(id string) (*model.Conversation, error) {
	return a.cache.GetConversation(id)
}

// GetConversations lists conversations. Branches are excluded unless
// opts.IncludeBranches is set.
func (a *Adapter) GetConversations(opts model.ListOptions) (model.PaginatedResult[model.Conversation], error) {
	return a.cache.ListConversations(opts)
}

// UpdateConversation applies a partial update. Returns false if absent.
func (a *Adapter) UpdateConversation(id string, fields map[string]any) (bool, error) {
	existing, err := a.cache.GetConversation(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.emit(model.EventConversationUpdated, model.UpdatePayload{ID: id, Fields: fields}); err != nil {
		return false, fmt.Errorf("update conversation: %w", err)
	}
	return true, nil
}

// DeleteConversation removes the conversation and cascades to its messages
// and to every conversation branching off it, transitively.
func (a *Adapter) DeleteConversation(id string) (bool, error) {
	existing, err := a.cache.GetConversation(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := a.deleteConversationTree(id); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// deleteConversationTree deletes branches depth-first, so no delete event
// ever leaves a conversation with a dangling parentConversationId.
func (a *Adapter) deleteConversationTree(id string) error {
	branches, err := a.cache.BranchConversationIDs(id)
	if err != nil {
		return err
	}
	for _, branchID := range branches {
		if err := a.deleteConversationTree(branchID); err != nil {
			return err
		}
	}
	return a.emit(model.EventConversationDeleted, model.DeletePayload{ID: id})
}

// SearchConversations matches conversations by title and message content,
// most relevant first.
func (a *Adapter) SearchConversations(query string) ([]querycache.ConversationMatch, error) {
	return a.cache.SearchConversations(query, 0)
}
