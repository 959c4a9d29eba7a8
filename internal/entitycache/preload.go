package entitycache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/weft-labs/weft/internal/fileindex"
	"github.com/weft-labs/weft/internal/model"
)

const recentTraceWindow = 20

// PreloadWorkspace hydrates a workspace and, concurrently, its sessions, a
// capped number of its states, and metadata for its key files. Preloading is
// best-effort: failures are logged and swallowed.
func (c *Cache) PreloadWorkspace(ctx context.Context, id string) {
	if c.HasWorkspace(id) {
		return
	}
	w, err := c.backend.GetWorkspace(id)
	if err != nil {
		slog.Debug("preload workspace failed", "id", id, "error", err)
		return
	}
	if w == nil {
		return
	}
	entry := c.cacheWorkspace(*w)

	var wg sync.WaitGroup
	for _, sid := range entry.DerivedChildIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			c.PreloadSession(ctx, sid)
		}(sid)
	}
	stateIDs, err := c.backend.StateIDsForWorkspace(id)
	if err != nil {
		slog.Debug("preload workspace states failed", "id", id, "error", err)
	}
	if len(stateIDs) > c.opts.PreloadStateCap {
		stateIDs = stateIDs[:c.opts.PreloadStateCap]
	}
	for _, stid := range stateIDs {
		wg.Add(1)
		go func(stid string) {
			defer wg.Done()
			c.PreloadState(ctx, stid)
		}(stid)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.PreloadFileMetadata(ctx, entry.AssociatedFileRefs)
	}()
	wg.Wait()

	c.notify(WorkspacePreloaded, id)
}

// PreloadSession hydrates a session, the metadata of files referenced by its
// recent traces, and a capped number of its states.
func (c *Cache) PreloadSession(ctx context.Context, id string) {
	if c.HasSession(id) {
		return
	}
	s, err := c.backend.GetSession(id)
	if err != nil {
		slog.Debug("preload session failed", "id", id, "error", err)
		return
	}
	if s == nil {
		return
	}
	entry := c.cacheSession(*s)

	var wg sync.WaitGroup
	stateIDs := entry.DerivedChildIDs
	if len(stateIDs) > c.opts.PreloadStateCap {
		stateIDs = stateIDs[:c.opts.PreloadStateCap]
	}
	for _, stid := range stateIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(stid string) {
			defer wg.Done()
			c.PreloadState(ctx, stid)
		}(stid)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.PreloadFileMetadata(ctx, entry.AssociatedFileRefs)
	}()
	wg.Wait()

	c.notify(SessionPreloaded, id)
}

// PreloadState hydrates one state.
func (c *Cache) PreloadState(ctx context.Context, id string) {
	if c.HasState(id) || ctx.Err() != nil {
		return
	}
	st, err := c.backend.GetState(id)
	if err != nil {
		slog.Debug("preload state failed", "id", id, "error", err)
		return
	}
	if st == nil {
		return
	}
	c.cacheState(*st)
	c.notify(StatePreloaded, id)
}

// PreloadFileMetadata warms the file-metadata cache for the given paths.
func (c *Cache) PreloadFileMetadata(ctx context.Context, paths []string) {
	if c.files == nil {
		return
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, ok := c.fileMeta.get(path); ok {
			continue
		}
		meta, err := c.files.Metadata(path)
		if err != nil {
			slog.Debug("preload file metadata failed", "path", path, "error", err)
			continue
		}
		c.fileMeta.put(path, Entry[fileindex.Metadata]{Data: meta})
	}
}

// BatchLoadSessions partitions ids into cache hits and misses, loads the
// misses in one backend call, and caches each loaded session.
func (c *Cache) BatchLoadSessions(ids []string) ([]model.Session, error) {
	var out []model.Session
	var misses []string
	for _, id := range ids {
		if e, ok := c.sessions.get(id); ok {
			out = append(out, e.Data)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	loaded, err := c.backend.GetSessionsByIDs(misses)
	if err != nil {
		return out, err
	}
	for _, s := range loaded {
		c.cacheSession(s)
		out = append(out, s)
	}
	return out, nil
}

// BatchLoadStates is BatchLoadSessions for states.
func (c *Cache) BatchLoadStates(ids []string) ([]model.State, error) {
	var out []model.State
	var misses []string
	for _, id := range ids {
		if e, ok := c.states.get(id); ok {
			out = append(out, e.Data)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	loaded, err := c.backend.GetStatesByIDs(misses)
	if err != nil {
		return out, err
	}
	for _, st := range loaded {
		c.cacheState(st)
		out = append(out, st)
	}
	return out, nil
}

// cacheWorkspace stores the workspace along with its child session ids and
// key-file refs. Relation lookups are best-effort; a failed lookup leaves the
// list empty rather than failing the cache write.
func (c *Cache) cacheWorkspace(w model.Workspace) Entry[model.Workspace] {
	entry := Entry[model.Workspace]{Data: w, Timestamp: model.Now()}
	if ids, err := c.backend.SessionIDsForWorkspace(w.ID); err == nil {
		entry.DerivedChildIDs = ids
	}
	if w.Context != nil {
		entry.AssociatedFileRefs = append([]string(nil), w.Context.KeyFiles...)
	}
	c.workspaces.put(w.ID, entry)
	return entry
}

// cacheSession stores the session with its child state ids and the file refs
// mentioned by its recent traces.
func (c *Cache) cacheSession(s model.Session) Entry[model.Session] {
	entry := Entry[model.Session]{Data: s, Timestamp: model.Now()}
	if ids, err := c.backend.StateIDsForSession(s.ID); err == nil {
		entry.DerivedChildIDs = ids
	}
	if traces, err := c.backend.RecentTraces(s.ID, recentTraceWindow); err == nil {
		entry.AssociatedFileRefs = FileRefs(traces)
	}
	c.sessions.put(s.ID, entry)
	return entry
}

func (c *Cache) cacheState(st model.State) Entry[model.State] {
	entry := Entry[model.State]{Data: st, Timestamp: model.Now()}
	c.states.put(st.ID, entry)
	return entry
}

// FileRefs extracts the file paths mentioned in trace metadata, deduplicated
// in first-seen order. Recognized keys: "file"/"filePath" (string) and
// "files"/"filePaths" (list of strings).
func FileRefs(traces []model.MemoryTrace) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, tr := range traces {
		for _, key := range []string{"file", "filePath"} {
			if s, ok := tr.Metadata[key].(string); ok {
				add(s)
			}
		}
		for _, key := range []string{"files", "filePaths"} {
			list, ok := tr.Metadata[key].([]any)
			if !ok {
				continue
			}
			for _, v := range list {
				if s, ok := v.(string); ok {
					add(s)
				}
			}
		}
	}
	return out
}
