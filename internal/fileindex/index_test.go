package fileindex

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMetadataReadsSizeAndModTime(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.txt", "hello")
	ix := New(dir)

	meta, err := ix.Metadata("plain.txt")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Size != 5 || meta.ModTime == 0 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.FrontMatter != nil {
		t.Fatalf("plain text file should have no front matter: %+v", meta.FrontMatter)
	}
}

func TestMetadataParsesFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "---\ntitle: Notes\ntags:\n  - a\n  - b\n---\n# Body\n")
	ix := New(dir)

	meta, err := ix.Metadata("doc.md")
	if err != nil {
		t.Fatal(err)
	}
	if meta.FrontMatter["title"] != "Notes" {
		t.Fatalf("front matter not parsed: %+v", meta.FrontMatter)
	}
	tags, ok := meta.FrontMatter["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("expected tag list, got %+v", meta.FrontMatter["tags"])
	}
}

func TestMetadataIgnoresBodyWithoutFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Just a heading\n")
	ix := New(dir)

	meta, err := ix.Metadata("doc.md")
	if err != nil {
		t.Fatal(err)
	}
	if meta.FrontMatter != nil {
		t.Fatalf("expected no front matter, got %+v", meta.FrontMatter)
	}
}

func TestMetadataMissingFileErrors(t *testing.T) {
	ix := New(t.TempDir())
	if _, err := ix.Metadata("ghost.md"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRemoveAndRename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "one")
	writeFile(t, dir, "b.md", "two")
	ix := New(dir)

	if _, err := ix.Metadata("a.md"); err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", ix.Len())
	}

	ix.Rename("a.md", "b.md")
	if ix.Len() != 1 {
		t.Fatalf("rename should move the entry, got %d entries", ix.Len())
	}

	ix.Remove("b.md")
	if ix.Len() != 0 {
		t.Fatalf("expected empty index, got %d", ix.Len())
	}
}
