// Package eventlog implements the append-only event log: one JSONL segment
// per entity type. The log is the durable source of truth; every line is a
// self-describing StorageEvent, human-readable and safe for file-sync tools.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weft-labs/weft/internal/model"
)

const segmentSuffix = ".log.jsonl"

// SegmentName returns the log segment a given event type belongs to.
func SegmentName(t model.EventType) string {
	return t.Entity() + "s"
}

// SegmentInfo describes one physical log segment on disk.
type SegmentInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Log is the append-only event log store. Appends are serialized by an
// internal mutex; reads go straight to the files.
type Log struct {
	dir   string
	fsync bool
	mu    sync.Mutex
}

// New opens (creating if needed) the log directory.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

// EnableFsync makes every append fsync the segment before returning. Slower,
// but an acknowledged append survives power loss.
func (l *Log) EnableFsync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fsync = true
}

// Dir returns the log directory.
func (l *Log) Dir() string {
	return l.dir
}

// Path returns the file path of a named segment.
func (l *Log) Path(segment string) string {
	return filepath.Join(l.dir, segment+segmentSuffix)
}

// Append writes one event to the segment derived from its type. This is the
// only mutation the log supports.
func (l *Log) Append(ev model.StorageEvent) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("append: unknown event type %q", ev.Type)
	}
	if ev.ID == "" {
		return fmt.Errorf("append: event id is empty")
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path(SegmentName(ev.Type)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if l.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync segment: %w", err)
		}
	}
	return nil
}

// ReadSince returns, in append order, every event in the segment with a
// timestamp strictly greater than after. Malformed lines are skipped with a
// warning rather than failing the read; a partially synced file must not
// block everything behind it.
func (l *Log) ReadSince(segment string, after int64) ([]model.StorageEvent, error) {
	f, err := os.Open(l.Path(segment))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open segment %s: %w", segment, err)
	}
	defer f.Close()

	var events []model.StorageEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var ev model.StorageEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			slog.Warn("skipping malformed log line", "segment", segment, "line", lineNo, "error", err)
			continue
		}
		if ev.Timestamp > after {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read segment %s: %w", segment, err)
	}
	return events, nil
}

// ReadAll returns every event in the segment in append order.
func (l *Log) ReadAll(segment string) ([]model.StorageEvent, error) {
	return l.ReadSince(segment, -1)
}

// Segments lists the physical segments currently on disk, sorted by name.
func (l *Log) Segments() ([]SegmentInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	var infos []SegmentInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segmentSuffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, SegmentInfo{
			Name:    strings.TrimSuffix(entry.Name(), segmentSuffix),
			Path:    filepath.Join(l.dir, entry.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
