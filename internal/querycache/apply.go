package querycache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/weft-labs/weft/internal/model"
)

// ApplyEvent projects one event into the cache. Applying the same event
// twice is a no-op: the event id is the idempotency key, claimed via
// ON CONFLICT DO NOTHING on the applied_events table inside the same
// transaction as the projection itself.
//
// Returns true if the event was applied, false if it had been seen before.
func (c *Cache) ApplyEvent(ev model.StorageEvent) (bool, error) {
	if !ev.Type.Valid() {
		return false, fmt.Errorf("apply: unknown event type %q", ev.Type)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return false, fmt.Errorf("apply %s: begin tx: %w", ev.Type, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO applied_events (event_id, event_type, device_id, timestamp, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.ID, string(ev.Type), ev.DeviceID, ev.Timestamp, model.Now())
	if err != nil {
		return false, fmt.Errorf("apply %s: claim event: %w", ev.Type, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply %s: rows affected: %w", ev.Type, err)
	}
	if rows == 0 {
		// Already applied on this device.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("apply %s: commit no-op: %w", ev.Type, err)
		}
		return false, nil
	}

	if err := c.project(tx, ev); err != nil {
		return false, fmt.Errorf("apply %s (%s): %w", ev.Type, ev.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply %s: commit: %w", ev.Type, err)
	}
	return true, nil
}

func (c *Cache) project(tx *sql.Tx, ev model.StorageEvent) error {
	switch ev.Type {
	case model.EventWorkspaceCreated:
		var w model.Workspace
		if err := json.Unmarshal(ev.Payload, &w); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return upsertWorkspace(tx, &w)

	case model.EventWorkspaceUpdated:
		return c.projectUpdate(tx, ev, func(id string, fields map[string]any) error {
			w, err := scanWorkspace(tx.QueryRow(selectWorkspace+" WHERE id = ?", id))
			if err != nil || w == nil {
				return err
			}
			if err := overlay(w, fields, "id", "created"); err != nil {
				return err
			}
			return upsertWorkspace(tx, w)
		})

	case model.EventWorkspaceDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		// Cascade: a workspace owns its sessions, states and traces.
		for _, q := range []string{
			`DELETE FROM traces WHERE workspace_id = ?`,
			`DELETE FROM states WHERE workspace_id = ?`,
			`DELETE FROM sessions WHERE workspace_id = ?`,
			`DELETE FROM workspaces WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return err
			}
		}
		return nil

	case model.EventSessionCreated:
		var s model.Session
		if err := json.Unmarshal(ev.Payload, &s); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return upsertSession(tx, &s)

	case model.EventSessionUpdated:
		return c.projectUpdate(tx, ev, func(id string, fields map[string]any) error {
			s, err := scanSession(tx.QueryRow(selectSession+" WHERE id = ?", id))
			if err != nil || s == nil {
				return err
			}
			if err := overlay(s, fields, "id", "workspaceId"); err != nil {
				return err
			}
			return upsertSession(tx, s)
		})

	case model.EventSessionDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM traces WHERE session_id = ?`,
			`DELETE FROM states WHERE session_id = ?`,
			`DELETE FROM sessions WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return err
			}
		}
		return nil

	case model.EventStateCreated:
		var st model.State
		if err := json.Unmarshal(ev.Payload, &st); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return upsertState(tx, &st)

	case model.EventStateUpdated:
		return c.projectUpdate(tx, ev, func(id string, fields map[string]any) error {
			st, err := scanState(tx.QueryRow(selectState+" WHERE id = ?", id))
			if err != nil || st == nil {
				return err
			}
			if err := overlay(st, fields, "id", "sessionId", "workspaceId", "created"); err != nil {
				return err
			}
			return upsertState(tx, st)
		})

	case model.EventStateDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM states WHERE id = ?`, id)
		return err

	case model.EventTraceCreated:
		var tr model.MemoryTrace
		if err := json.Unmarshal(ev.Payload, &tr); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return upsertTrace(tx, &tr)

	case model.EventTraceDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM traces WHERE id = ?`, id)
		return err

	case model.EventConversationCreated:
		var conv model.Conversation
		if err := json.Unmarshal(ev.Payload, &conv); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return upsertConversation(tx, &conv)

	case model.EventConversationUpdated:
		return c.projectUpdate(tx, ev, func(id string, fields map[string]any) error {
			conv, err := scanConversation(tx.QueryRow(selectConversation+" WHERE id = ?", id))
			if err != nil || conv == nil {
				return err
			}
			if err := overlay(conv, fields, "id", "created"); err != nil {
				return err
			}
			conv.Updated = ev.Timestamp
			return upsertConversation(tx, conv)
		})

	case model.EventConversationDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM messages WHERE conversation_id = ?`,
			`DELETE FROM conversations WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return err
			}
		}
		return nil

	case model.EventMessageAdded:
		var msg model.Message
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := upsertMessage(tx, &msg); err != nil {
			return err
		}
		return refreshConversation(tx, msg.ConversationID, ev.Timestamp)

	case model.EventMessageUpdated:
		return c.projectUpdate(tx, ev, func(id string, fields map[string]any) error {
			msg, err := scanMessage(tx.QueryRow(selectMessage+" WHERE id = ?", id))
			if err != nil || msg == nil {
				return err
			}
			// timestamp and sequenceNumber are immutable after creation.
			if err := overlay(msg, fields, "id", "conversationId", "timestamp", "sequenceNumber"); err != nil {
				return err
			}
			return upsertMessage(tx, msg)
		})

	case model.EventMessageDeleted:
		id, err := deleteTarget(ev)
		if err != nil {
			return err
		}
		var convID string
		if err := tx.QueryRow(`SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&convID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return err
		}
		return refreshConversation(tx, convID, ev.Timestamp)
	}
	return fmt.Errorf("unhandled event type %q", ev.Type)
}

// projectUpdate decodes an UpdatePayload and hands the field map to apply.
// An update targeting a row that no longer exists is a no-op, not an error:
// cross-device logs may legitimately interleave an update behind a delete.
func (c *Cache) projectUpdate(tx *sql.Tx, ev model.StorageEvent,
	apply func(string, map[string]any) error) error {
	var up model.UpdatePayload
	if err := json.Unmarshal(ev.Payload, &up); err != nil {
		return fmt.Errorf("decode update payload: %w", err)
	}
	if up.ID == "" {
		return fmt.Errorf("update payload missing target id")
	}
	return apply(up.ID, up.Fields)
}

func deleteTarget(ev model.StorageEvent) (string, error) {
	var del model.DeletePayload
	if err := json.Unmarshal(ev.Payload, &del); err != nil {
		return "", fmt.Errorf("decode delete payload: %w", err)
	}
	if del.ID == "" {
		return "", fmt.Errorf("delete payload missing target id")
	}
	return del.ID, nil
}

// overlay applies a partial field map onto an entity struct by marshalling
// the map and unmarshalling it over the existing value. Keys listed in
// immutable are dropped first.
func overlay(entity any, fields map[string]any, immutable ...string) error {
	if len(fields) == 0 {
		return nil
	}
	cleaned := make(map[string]any, len(fields))
	for k, v := range fields {
		cleaned[k] = v
	}
	for _, k := range immutable {
		delete(cleaned, k)
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("marshal update fields: %w", err)
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return fmt.Errorf("overlay update fields: %w", err)
	}
	return nil
}

// refreshConversation recomputes message_count from the projected rows and
// advances the updated stamp. Counting instead of incrementing keeps replay
// convergent regardless of how events interleave.
func refreshConversation(tx *sql.Tx, convID string, ts int64) error {
	_, err := tx.Exec(`
		UPDATE conversations
		SET message_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ?),
		    updated = MAX(updated, ?)
		WHERE id = ?
	`, convID, ts, convID)
	return err
}
