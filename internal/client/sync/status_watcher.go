package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/rjeczalik/notify"
)

const (
	defaultStatusDebounce = 500 * time.Millisecond
	watchEventBufferSize  = 64
)

// StatusWatcher re-runs a callback whenever the watched recipe changes on
// disk. Bursts of events are collapsed into one call after the debounce
// interval. It is owned by the caller: Start begins watching, Stop or
// cancelling the Start context ends it.
type StatusWatcher struct {
	root     string
	onChange func(ctx context.Context)
	ignore   *recipe.IgnoreList
	debounce time.Duration

	events chan notify.EventInfo
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewStatusWatcher(recipeRoot string, onChange func(ctx context.Context)) *StatusWatcher {
	ignore := recipe.NewIgnoreList(recipeRoot)
	ignore.Load()
	return &StatusWatcher{
		root:     recipeRoot,
		onChange: onChange,
		ignore:   ignore,
		debounce: defaultStatusDebounce,
	}
}

func (w *StatusWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

func (w *StatusWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}

	events := make(chan notify.EventInfo, watchEventBufferSize)
	if err := notify.Watch(filepath.Join(w.root, "..."), events, notify.All); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.events = events
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx)

	slog.Debug("status watcher start", "dir", w.root)
	return nil
}

// Stop ends the watch and waits for a running callback to return.
func (w *StatusWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	slog.Debug("status watcher stopped", "dir", w.root)
}

func (w *StatusWatcher) run(ctx context.Context) {
	defer w.wg.Done()
	defer notify.Stop(w.events)

	// nil until an event arrives, so the select below blocks on it forever
	var fire <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			if w.ignored(ev.Path()) {
				continue
			}
			slog.Debug("status watcher", "event", ev.Event(), "path", ev.Path())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.onChange(ctx)
		}
	}
}

func (w *StatusWatcher) ignored(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = utils.ToSlash(rel)
	return rel != "." && w.ignore.ShouldIgnore(rel)
}
