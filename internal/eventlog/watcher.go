package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Watcher polls segment modification times and reports segments that changed
// since the previous poll. Third-party sync tools rewrite log files without
// notifying us, so a mod-time poll is the portable way to notice them.
type Watcher struct {
	log      *Log
	interval time.Duration
	onChange func(segments []string)

	mu      sync.Mutex
	seen    map[string]time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWatcher creates a watcher over the given log. onChange is invoked from
// the watcher goroutine with the names of changed segments.
func NewWatcher(l *Log, interval time.Duration, onChange func(segments []string)) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		log:      l,
		interval: interval,
		onChange: onChange,
		seen:     make(map[string]time.Time),
	}
}

// Start begins polling. The first poll primes the mod-time baseline without
// firing onChange. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	w.prime()
	go w.run(ctx)
}

// Stop halts polling and waits for the watcher goroutine to exit. Safe to
// call multiple times and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *Watcher) prime() {
	infos, err := w.log.Segments()
	if err != nil {
		slog.Warn("watcher prime failed", "error", err)
		return
	}
	for _, info := range infos {
		w.seen[info.Name] = info.ModTime
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changed := w.poll(); len(changed) > 0 {
				w.onChange(changed)
			}
		}
	}
}

func (w *Watcher) poll() []string {
	infos, err := w.log.Segments()
	if err != nil {
		slog.Warn("watcher poll failed", "error", err)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for _, info := range infos {
		prev, ok := w.seen[info.Name]
		if !ok || info.ModTime.After(prev) {
			changed = append(changed, info.Name)
			w.seen[info.Name] = info.ModTime
		}
	}
	return changed
}
