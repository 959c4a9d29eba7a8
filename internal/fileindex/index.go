// Package fileindex tracks metadata for files referenced by workspaces and
// traces: size, modification time, and structured front-matter for markdown
// and YAML documents. It is a metadata provider only; file contents are never
// retained.
package fileindex

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Metadata describes one indexed file.
type Metadata struct {
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	ModTime     int64          `json:"modTime"`
	FrontMatter map[string]any `json:"frontMatter,omitempty"`
}

// Index is an in-memory file-metadata index rooted at a directory. Relative
// paths resolve against the root; absolute paths are used as given.
type Index struct {
	root string

	mu      sync.Mutex
	entries map[string]Metadata
}

// New creates an empty index rooted at root.
func New(root string) *Index {
	return &Index{
		root:    root,
		entries: make(map[string]Metadata),
	}
}

func (ix *Index) resolve(path string) string {
	if filepath.IsAbs(path) || ix.root == "" {
		return path
	}
	return filepath.Join(ix.root, path)
}

// Metadata returns the indexed metadata for path, reading it from disk on
// first access.
func (ix *Index) Metadata(path string) (Metadata, error) {
	ix.mu.Lock()
	meta, ok := ix.entries[path]
	ix.mu.Unlock()
	if ok {
		return meta, nil
	}
	return ix.Update(path)
}

// Update re-reads the file and refreshes its index entry.
func (ix *Index) Update(path string) (Metadata, error) {
	full := ix.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return Metadata{}, fmt.Errorf("index %s: %w", path, err)
	}

	meta := Metadata{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixMilli(),
	}
	if hasFrontMatter(path) {
		fm, err := readFrontMatter(full)
		if err == nil {
			meta.FrontMatter = fm
		}
	}

	ix.mu.Lock()
	ix.entries[path] = meta
	ix.mu.Unlock()
	return meta, nil
}

// Remove drops the index entry for path.
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	delete(ix.entries, path)
	ix.mu.Unlock()
}

// Rename moves the index entry from oldPath to newPath and refreshes it.
func (ix *Index) Rename(oldPath, newPath string) {
	ix.mu.Lock()
	delete(ix.entries, oldPath)
	ix.mu.Unlock()
	ix.Update(newPath)
}

// Len returns the number of indexed files.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Clear drops every index entry.
func (ix *Index) Clear() {
	ix.mu.Lock()
	ix.entries = make(map[string]Metadata)
	ix.mu.Unlock()
}

func hasFrontMatter(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".yaml", ".yml":
		return true
	}
	return false
}

var frontMatterDelim = []byte("---")

// readFrontMatter parses a leading "---\n...\n---" YAML block. Files without
// one yield a nil map.
func readFrontMatter(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(data, frontMatterDelim) {
		return nil, nil
	}
	rest := data[len(frontMatterDelim):]
	if len(rest) == 0 || (rest[0] != '\n' && !bytes.HasPrefix(rest, []byte("\r\n"))) {
		return nil, nil
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil
	}
	var fm map[string]any
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, fmt.Errorf("front matter in %s: %w", path, err)
	}
	return fm, nil
}
