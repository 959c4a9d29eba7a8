package querycache

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/weft-labs/weft/internal/model"
)

// listSpec describes how one entity table maps onto the uniform list
// endpoint shape. Sort and filter keys are whitelisted per table; anything
// not listed is rejected rather than interpolated.
type listSpec struct {
	selectStmt  string
	table       string
	sortCols    map[string]string
	defaultSort string
	filterCols  map[string]string
	searchCols  []string
}

var (
	workspaceList = listSpec{
		selectStmt:  selectWorkspace,
		table:       "workspaces",
		sortCols:    map[string]string{"name": "name", "created": "created", "lastAccessed": "last_accessed"},
		defaultSort: "last_accessed",
		filterCols:  map[string]string{"isActive": "is_active", "name": "name"},
		searchCols:  []string{"name", "description"},
	}
	sessionList = listSpec{
		selectStmt:  selectSession,
		table:       "sessions",
		sortCols:    map[string]string{"name": "name", "startTime": "start_time", "endTime": "end_time"},
		defaultSort: "start_time",
		filterCols:  map[string]string{"workspaceId": "workspace_id", "isActive": "is_active"},
		searchCols:  []string{"name", "description"},
	}
	stateList = listSpec{
		selectStmt:  selectState,
		table:       "states",
		sortCols:    map[string]string{"name": "name", "created": "created"},
		defaultSort: "created",
		filterCols:  map[string]string{"sessionId": "session_id", "workspaceId": "workspace_id", "name": "name"},
		searchCols:  []string{"name", "description"},
	}
	traceList = listSpec{
		selectStmt:  selectTrace,
		table:       "traces",
		sortCols:    map[string]string{"timestamp": "timestamp", "type": "type"},
		defaultSort: "timestamp",
		filterCols:  map[string]string{"sessionId": "session_id", "workspaceId": "workspace_id", "type": "type"},
		searchCols:  []string{"content"},
	}
	conversationList = listSpec{
		selectStmt:  selectConversation,
		table:       "conversations",
		sortCols:    map[string]string{"title": "title", "created": "created", "updated": "updated", "messageCount": "message_count"},
		defaultSort: "updated",
		filterCols:  map[string]string{"workspaceId": "workspace_id", "sessionId": "session_id", "space": "space", "parentConversationId": "parent_conversation_id"},
		searchCols:  []string{"title"},
	}
	messageList = listSpec{
		selectStmt:  selectMessage,
		table:       "messages",
		sortCols:    map[string]string{"timestamp": "timestamp", "sequenceNumber": "sequence_number"},
		defaultSort: "sequence_number",
		filterCols:  map[string]string{"conversationId": "conversation_id", "role": "role", "state": "state"},
		searchCols:  []string{"content"},
	}
)

func (spec listSpec) build(opts model.ListOptions, extraWhere []string, extraArgs []any) (string, string, []any, []any, error) {
	where := append([]string{}, extraWhere...)
	args := append([]any{}, extraArgs...)

	for key, val := range opts.Filter {
		col, ok := spec.filterCols[key]
		if !ok {
			return "", "", nil, nil, fmt.Errorf("unknown filter field %q for %s", key, spec.table)
		}
		if col == "is_active" {
			where = append(where, col+" = ?")
			args = append(args, boolToInt(val == "true" || val == "1"))
			continue
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}

	if opts.Search != "" {
		var terms []string
		for _, col := range spec.searchCols {
			terms = append(terms, col+" LIKE ? ESCAPE '\\'")
			args = append(args, likePattern(opts.Search))
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	sortCol := spec.defaultSort
	if opts.SortBy != "" {
		col, ok := spec.sortCols[opts.SortBy]
		if !ok {
			return "", "", nil, nil, fmt.Errorf("unknown sort field %q for %s", opts.SortBy, spec.table)
		}
		sortCol = col
	}
	order := "DESC"
	if strings.EqualFold(opts.SortOrder, model.SortAsc) {
		order = "ASC"
	}

	p := opts.Normalize()
	query := fmt.Sprintf("%s%s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d",
		spec.selectStmt, clause, sortCol, order, p.PageSize, p.Offset())
	countQuery := "SELECT COUNT(*) FROM " + spec.table + clause
	countArgs := append([]any{}, args...)
	return query, countQuery, args, countArgs, nil
}

// likePattern escapes LIKE metacharacters and wraps the term in wildcards.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func listEntities[T any](c *Cache, spec listSpec, opts model.ListOptions,
	scan func(scanner) (*T, error), extraWhere []string, extraArgs []any) (model.PaginatedResult[T], error) {
	var zero model.PaginatedResult[T]

	query, countQuery, args, countArgs, err := spec.build(opts, extraWhere, extraArgs)
	if err != nil {
		return zero, err
	}

	var total int
	if err := c.db.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return zero, fmt.Errorf("count %s: %w", spec.table, err)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return zero, fmt.Errorf("list %s: %w", spec.table, err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return zero, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return zero, fmt.Errorf("iterate %s: %w", spec.table, err)
	}
	return model.Paginate(items, opts.PaginationParams, total), nil
}

// --- Workspaces ---

func (c *Cache) GetWorkspace(id string) (*model.Workspace, error) {
	return scanWorkspace(c.db.QueryRow(selectWorkspace+" WHERE id = ?", id))
}

func (c *Cache) ListWorkspaces(opts model.ListOptions) (model.PaginatedResult[model.Workspace], error) {
	return listEntities(c, workspaceList, opts, scanWorkspace, nil, nil)
}

// --- Sessions ---

func (c *Cache) GetSession(id string) (*model.Session, error) {
	return scanSession(c.db.QueryRow(selectSession+" WHERE id = ?", id))
}

func (c *Cache) ListSessions(opts model.ListOptions) (model.PaginatedResult[model.Session], error) {
	return listEntities(c, sessionList, opts, scanSession, nil, nil)
}

// SessionIDsForWorkspace returns session ids ordered by recency.
func (c *Cache) SessionIDsForWorkspace(workspaceID string) ([]string, error) {
	return c.idColumn(`SELECT id FROM sessions WHERE workspace_id = ? ORDER BY start_time DESC`, workspaceID)
}

// RecentSessionIDs returns up to limit session ids for a workspace, most
// recent first. Used by the prefetcher.
func (c *Cache) RecentSessionIDs(workspaceID string, limit int) ([]string, error) {
	return c.idColumn(`SELECT id FROM sessions WHERE workspace_id = ? ORDER BY start_time DESC LIMIT ?`, workspaceID, limit)
}

// --- States ---

func (c *Cache) GetState(id string) (*model.State, error) {
	return scanState(c.db.QueryRow(selectState+" WHERE id = ?", id))
}

func (c *Cache) ListStates(opts model.ListOptions) (model.PaginatedResult[model.State], error) {
	return listEntities(c, stateList, opts, scanState, nil, nil)
}

func (c *Cache) StateIDsForSession(sessionID string) ([]string, error) {
	return c.idColumn(`SELECT id FROM states WHERE session_id = ? ORDER BY created DESC`, sessionID)
}

func (c *Cache) StateIDsForWorkspace(workspaceID string) ([]string, error) {
	return c.idColumn(`SELECT id FROM states WHERE workspace_id = ? ORDER BY created DESC`, workspaceID)
}

// SiblingStateIDs returns up to limit states from the same session, most
// recent first, excluding the given state.
func (c *Cache) SiblingStateIDs(sessionID, excludeID string, limit int) ([]string, error) {
	return c.idColumn(`SELECT id FROM states WHERE session_id = ? AND id != ? ORDER BY created DESC LIMIT ?`,
		sessionID, excludeID, limit)
}

func (c *Cache) GetStatesByIDs(ids []string) ([]model.State, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := selectState + " WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := c.db.Query(query, toAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("batch states: %w", err)
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

func (c *Cache) GetSessionsByIDs(ids []string) ([]model.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := selectSession + " WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := c.db.Query(query, toAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("batch sessions: %w", err)
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

// --- Traces ---

func (c *Cache) GetTrace(id string) (*model.MemoryTrace, error) {
	return scanTrace(c.db.QueryRow(selectTrace+" WHERE id = ?", id))
}

func (c *Cache) ListTraces(opts model.ListOptions) (model.PaginatedResult[model.MemoryTrace], error) {
	return listEntities(c, traceList, opts, scanTrace, nil, nil)
}

// SearchTraces runs a free-text search over trace content within a
// workspace, optionally narrowed to one session. Most recent first.
func (c *Cache) SearchTraces(workspaceID, query, sessionID string, limit int) ([]model.MemoryTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	q := selectTrace + ` WHERE workspace_id = ? AND content LIKE ? ESCAPE '\'`
	args := []any{workspaceID, likePattern(query)}
	if sessionID != "" {
		q += " AND session_id = ?"
		args = append(args, sessionID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("search traces: %w", err)
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

// RecentTraces returns the most recent traces of a session, newest first.
func (c *Cache) RecentTraces(sessionID string, limit int) ([]model.MemoryTrace, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.Query(selectTrace+` WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent traces: %w", err)
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

// --- Conversations ---

func (c *Cache) GetConversation(id string) (*model.Conversation, error) {
	return scanConversation(c.db.QueryRow(selectConversation+" WHERE id = ?", id))
}

// ListConversations lists conversations. Branch conversations are excluded
// unless opts.IncludeBranches is set; they are reachable through their
// parent's tree instead.
func (c *Cache) ListConversations(opts model.ListOptions) (model.PaginatedResult[model.Conversation], error) {
	var extraWhere []string
	if !opts.IncludeBranches {
		extraWhere = append(extraWhere, "parent_conversation_id = ''")
	}
	return listEntities(c, conversationList, opts, scanConversation, extraWhere, nil)
}

// BranchConversationIDs returns ids of conversations branching off the given
// conversation.
func (c *Cache) BranchConversationIDs(conversationID string) ([]string, error) {
	return c.idColumn(`SELECT id FROM conversations WHERE parent_conversation_id = ?`, conversationID)
}

// ConversationMatch is one relevance-scored search hit.
type ConversationMatch struct {
	Conversation model.Conversation `json:"conversation"`
	Score        float64            `json:"score"`
	Snippet      string             `json:"snippet,omitempty"`
}

// SearchConversations matches conversations by title and message content.
// Title hits rank above content hits; within a band, recently updated
// conversations rank first.
func (c *Cache) SearchConversations(query string, limit int) ([]ConversationMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := likePattern(query)
	rows, err := c.db.Query(`
		SELECT `+conversationCols+`,
			(CASE WHEN cv.title LIKE ? ESCAPE '\' THEN 2.0 ELSE 0.0 END) +
			(CASE WHEN EXISTS (
				SELECT 1 FROM messages m
				WHERE m.conversation_id = cv.id AND m.content LIKE ? ESCAPE '\'
			) THEN 1.0 ELSE 0.0 END) AS score,
			COALESCE((
				SELECT m.content FROM messages m
				WHERE m.conversation_id = cv.id AND m.content LIKE ? ESCAPE '\'
				ORDER BY m.sequence_number ASC LIMIT 1
			), '') AS snippet
		FROM conversations cv
		WHERE cv.title LIKE ? ESCAPE '\' OR EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = cv.id AND m.content LIKE ? ESCAPE '\'
		)
		ORDER BY score DESC, cv.updated DESC
		LIMIT ?
	`, pattern, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	var matches []ConversationMatch
	for rows.Next() {
		var m ConversationMatch
		conv := &m.Conversation
		var parentConv, parentMsg, branchType, meta string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Created, &conv.Updated, &conv.Space,
			&conv.MessageCount, &conv.WorkspaceID, &conv.SessionID,
			&parentConv, &parentMsg, &branchType, &meta, &m.Score, &m.Snippet); err != nil {
			return nil, fmt.Errorf("scan conversation match: %w", err)
		}
		if meta != "" {
			conv.Meta = &model.ConversationMeta{}
			if err := unmarshalJSON(meta, conv.Meta); err != nil {
				return nil, fmt.Errorf("decode conversation meta: %w", err)
			}
		}
		m.Snippet = truncateSnippet(m.Snippet, 200)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

const conversationCols = `cv.id, cv.title, cv.created, cv.updated, cv.space, cv.message_count,
	cv.workspace_id, cv.session_id, cv.parent_conversation_id, cv.parent_message_id, cv.branch_type, cv.meta`

// --- Messages ---

func (c *Cache) GetMessage(id string) (*model.Message, error) {
	return scanMessage(c.db.QueryRow(selectMessage+" WHERE id = ?", id))
}

func (c *Cache) ListMessages(opts model.ListOptions) (model.PaginatedResult[model.Message], error) {
	return listEntities(c, messageList, opts, scanMessage, nil, nil)
}

// MessagesForConversation returns every message of a conversation in
// sequence order.
func (c *Cache) MessagesForConversation(conversationID string) ([]model.Message, error) {
	rows, err := c.db.Query(selectMessage+` WHERE conversation_id = ? ORDER BY sequence_number ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("messages for conversation: %w", err)
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// NextSequenceNumber returns the next gapless sequence number for a
// conversation. Callers must serialize concurrent adds per conversation.
func (c *Cache) NextSequenceNumber(conversationID string) (int, error) {
	var next int
	err := c.db.QueryRow(`
		SELECT COALESCE(MAX(sequence_number) + 1, 0) FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence number: %w", err)
	}
	return next, nil
}

// --- Stats ---

// Counts returns row counts per entity table.
func (c *Cache) Counts() (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"workspaces", "sessions", "states", "traces", "conversations", "messages"} {
		var n int
		if err := c.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// --- helpers ---

func (c *Cache) idColumn(query string, args ...any) ([]string, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("id query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// truncateSnippet caps s at max bytes without splitting a UTF-8 rune.
func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
