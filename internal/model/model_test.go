package model

import "testing"

func TestEventTypeEntity(t *testing.T) {
	cases := map[EventType]string{
		EventWorkspaceCreated: "workspace",
		EventSessionUpdated:   "session",
		EventMessageAdded:     "message",
	}
	for typ, want := range cases {
		if got := typ.Entity(); got != want {
			t.Fatalf("%s: expected entity %q, got %q", typ, want, got)
		}
	}
}

func TestEventTypeValid(t *testing.T) {
	if !EventTraceCreated.Valid() {
		t.Fatal("known type reported invalid")
	}
	if EventType("workspace.exploded").Valid() {
		t.Fatal("unknown type reported valid")
	}
}

func TestPaginationNormalize(t *testing.T) {
	p := PaginationParams{}.Normalize()
	if p.Page != 1 || p.PageSize != 50 {
		t.Fatalf("unexpected defaults: %+v", p)
	}

	p = PaginationParams{Page: -3, PageSize: 0}.Normalize()
	if p.Page != 1 || p.PageSize != 50 {
		t.Fatalf("negative inputs not clamped: %+v", p)
	}

	p = PaginationParams{Page: 3, PageSize: 10}
	if p.Offset() != 20 {
		t.Fatalf("expected offset 20, got %d", p.Offset())
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3}
	result := Paginate(items, PaginationParams{Page: 2, PageSize: 3}, 7)
	if result.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", result.TotalPages)
	}
	if !result.HasNextPage || !result.HasPreviousPage {
		t.Fatalf("middle page neighbors wrong: %+v", result)
	}

	empty := Paginate([]int(nil), PaginationParams{Page: 1, PageSize: 10}, 0)
	if empty.TotalPages != 0 || empty.HasNextPage || empty.HasPreviousPage {
		t.Fatalf("unexpected empty result: %+v", empty)
	}
}

func TestConversationIsBranch(t *testing.T) {
	plain := Conversation{ID: "c1"}
	if plain.IsBranch() {
		t.Fatal("conversation without meta is not a branch")
	}
	branch := Conversation{ID: "c2", Meta: &ConversationMeta{ParentConversationID: "c1"}}
	if !branch.IsBranch() {
		t.Fatal("expected branch")
	}
}
