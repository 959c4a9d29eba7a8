package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/weft-labs/weft/internal/model"
)

// ExportVersion identifies the full-export payload format.
const ExportVersion = 1

// FineTuneMessage is one {role, content} pair in a fine-tuning record.
type FineTuneMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FineTuneRecord is one line of the fine-tuning export: the messages of one
// conversation.
type FineTuneRecord struct {
	Messages []FineTuneMessage `json:"messages"`
}

// FineTuneFilter controls which messages make it into the export.
type FineTuneFilter struct {
	IncludeSystem bool
	IncludeTool   bool
	WorkspaceID   string
}

// DefaultFineTuneFilter includes every role.
func DefaultFineTuneFilter() FineTuneFilter {
	return FineTuneFilter{IncludeSystem: true, IncludeTool: true}
}

// ExportConversationsForFineTuning writes one JSON line per conversation,
// each line a {messages: [{role, content}, ...]} record. Conversations left
// with no messages after filtering are omitted. Returns the number of lines
// written.
func (a *Adapter) ExportConversationsForFineTuning(w io.Writer, filter FineTuneFilter) (int, error) {
	convs, err := a.cache.AllConversations()
	if err != nil {
		return 0, fmt.Errorf("export fine-tuning: %w", err)
	}

	bw := bufio.NewWriter(w)
	lines := 0
	for _, conv := range convs {
		if filter.WorkspaceID != "" && conv.WorkspaceID != filter.WorkspaceID {
			continue
		}
		msgs, err := a.cache.MessagesForConversation(conv.ID)
		if err != nil {
			return lines, fmt.Errorf("export fine-tuning: %w", err)
		}

		var record FineTuneRecord
		for _, msg := range msgs {
			if msg.Role == model.RoleSystem && !filter.IncludeSystem {
				continue
			}
			if msg.Role == model.RoleTool && !filter.IncludeTool {
				continue
			}
			record.Messages = append(record.Messages, FineTuneMessage{Role: msg.Role, Content: msg.Content})
		}
		if len(record.Messages) == 0 {
			continue
		}

		line, err := json.Marshal(record)
		if err != nil {
			return lines, fmt.Errorf("export fine-tuning: %w", err)
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return lines, fmt.Errorf("export fine-tuning: %w", err)
		}
		lines++
	}
	if err := bw.Flush(); err != nil {
		return lines, fmt.Errorf("export fine-tuning: %w", err)
	}
	return lines, nil
}

// ExportConversationsToFile is ExportConversationsForFineTuning writing to a
// new file at path.
func (a *Adapter) ExportConversationsToFile(path string, filter FineTuneFilter) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export fine-tuning: %w", err)
	}
	defer f.Close()
	return a.ExportConversationsForFineTuning(f, filter)
}

// WorkspaceExport groups a workspace with everything it owns.
type WorkspaceExport struct {
	Metadata model.Workspace     `json:"metadata"`
	Sessions []model.Session     `json:"sessions"`
	States   []model.State       `json:"states"`
	Traces   []model.MemoryTrace `json:"traces"`
}

// ConversationExport groups a conversation with its messages.
type ConversationExport struct {
	Metadata model.Conversation `json:"metadata"`
	Messages []model.Message    `json:"messages"`
}

// ExportData is the versioned, device-stamped full snapshot.
type ExportData struct {
	Version       int                  `json:"version"`
	ExportedAt    int64                `json:"exportedAt"`
	DeviceID      string               `json:"deviceId"`
	Workspaces    []WorkspaceExport    `json:"workspaces"`
	Conversations []ConversationExport `json:"conversations"`
}

// ExportAllData snapshots every workspace (with its sessions, states and
// traces) and every conversation (with its messages).
func (a *Adapter) ExportAllData() (*ExportData, error) {
	data := &ExportData{
		Version:       ExportVersion,
		ExportedAt:    model.Now(),
		DeviceID:      a.opts.DeviceID,
		Workspaces:    []WorkspaceExport{},
		Conversations: []ConversationExport{},
	}

	workspaces, err := a.cache.AllWorkspaces()
	if err != nil {
		return nil, fmt.Errorf("export all: %w", err)
	}
	for _, w := range workspaces {
		we := WorkspaceExport{Metadata: w}
		if we.Sessions, err = a.cache.SessionsForWorkspace(w.ID); err != nil {
			return nil, fmt.Errorf("export all: %w", err)
		}
		if we.States, err = a.cache.StatesForWorkspace(w.ID); err != nil {
			return nil, fmt.Errorf("export all: %w", err)
		}
		if we.Traces, err = a.cache.TracesForWorkspace(w.ID); err != nil {
			return nil, fmt.Errorf("export all: %w", err)
		}
		data.Workspaces = append(data.Workspaces, we)
	}

	convs, err := a.cache.AllConversations()
	if err != nil {
		return nil, fmt.Errorf("export all: %w", err)
	}
	for _, conv := range convs {
		ce := ConversationExport{Metadata: conv}
		if ce.Messages, err = a.cache.MessagesForConversation(conv.ID); err != nil {
			return nil, fmt.Errorf("export all: %w", err)
		}
		data.Conversations = append(data.Conversations, ce)
	}
	return data, nil
}

// WorkspaceSummary is one workspace's rollup in the YAML summary export.
type WorkspaceSummary struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Created       int64  `yaml:"created"`
	LastAccessed  int64  `yaml:"lastAccessed"`
	Sessions      int    `yaml:"sessions"`
	States        int    `yaml:"states"`
	Traces        int    `yaml:"traces"`
	Conversations int    `yaml:"conversations"`
}

// ExportWorkspaceSummaries writes a YAML document of per-workspace rollups,
// one entry per workspace in creation order. Returns the number of
// workspaces summarized.
func (a *Adapter) ExportWorkspaceSummaries(w io.Writer) (int, error) {
	workspaces, err := a.cache.AllWorkspaces()
	if err != nil {
		return 0, fmt.Errorf("export summaries: %w", err)
	}
	convs, err := a.cache.AllConversations()
	if err != nil {
		return 0, fmt.Errorf("export summaries: %w", err)
	}
	convCount := make(map[string]int)
	for _, conv := range convs {
		convCount[conv.WorkspaceID]++
	}

	summaries := make([]WorkspaceSummary, 0, len(workspaces))
	for _, ws := range workspaces {
		s := WorkspaceSummary{
			ID:            ws.ID,
			Name:          ws.Name,
			Created:       ws.Created,
			LastAccessed:  ws.LastAccessed,
			Conversations: convCount[ws.ID],
		}
		sessions, err := a.cache.SessionsForWorkspace(ws.ID)
		if err != nil {
			return 0, fmt.Errorf("export summaries: %w", err)
		}
		states, err := a.cache.StatesForWorkspace(ws.ID)
		if err != nil {
			return 0, fmt.Errorf("export summaries: %w", err)
		}
		traces, err := a.cache.TracesForWorkspace(ws.ID)
		if err != nil {
			return 0, fmt.Errorf("export summaries: %w", err)
		}
		s.Sessions = len(sessions)
		s.States = len(states)
		s.Traces = len(traces)
		summaries = append(summaries, s)
	}

	out, err := yaml.Marshal(summaries)
	if err != nil {
		return 0, fmt.Errorf("export summaries: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return 0, fmt.Errorf("export summaries: %w", err)
	}
	return len(summaries), nil
}
