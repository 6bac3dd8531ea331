package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sqlscout/internal/logging"
)

// Instructions loads domain guidance from *.md files in a directory and
// hot-reloads them on change, so operators can tune prompts without a
// restart.
type Instructions struct {
	dir string

	mu      sync.RWMutex
	text    string
	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	debounceMu  sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration
}

// NewInstructions loads the directory once. A missing directory is not an
// error; it simply yields empty guidance.
func NewInstructions(dir string) (*Instructions, error) {
	ins := &Instructions{
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if err := ins.reload(); err != nil {
		return nil, err
	}
	return ins, nil
}

// Text returns the concatenated instruction text.
func (ins *Instructions) Text() string {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.text
}

// Start begins watching the instruction directory. Non-blocking.
func (ins *Instructions) Start(ctx context.Context) error {
	ins.mu.Lock()
	if ins.running {
		ins.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		ins.mu.Unlock()
		return err
	}
	ins.watcher = watcher
	ins.running = true
	ins.mu.Unlock()

	if err := watcher.Add(ins.dir); err != nil {
		// Directory may not exist yet
		logging.Knowledge("Instruction watch failed (dir may not exist): %v", err)
	} else {
		logging.Knowledge("Watching instruction directory: %s", ins.dir)
	}

	go ins.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (ins *Instructions) Stop() {
	ins.mu.Lock()
	if !ins.running {
		ins.mu.Unlock()
		return
	}
	ins.running = false
	ins.mu.Unlock()

	close(ins.stopCh)
	<-ins.doneCh
	ins.watcher.Close()
}

func (ins *Instructions) run(ctx context.Context) {
	defer close(ins.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ins.stopCh:
			return
		case event, ok := <-ins.watcher.Events:
			if !ok {
				return
			}
			ins.handleEvent(event)
		case err, ok := <-ins.watcher.Errors:
			if !ok {
				return
			}
			logging.Knowledge("Instruction watcher error: %v", err)
		case <-debounceTicker.C:
			ins.processDebounced()
		}
	}
}

func (ins *Instructions) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	logging.KnowledgeDebug("Instruction change: %s %s", event.Op, event.Name)

	ins.debounceMu.Lock()
	ins.debounceMap[event.Name] = time.Now()
	ins.debounceMu.Unlock()
}

func (ins *Instructions) processDebounced() {
	ins.debounceMu.Lock()
	now := time.Now()
	settled := false
	for path, eventTime := range ins.debounceMap {
		if now.Sub(eventTime) >= ins.debounceDur {
			delete(ins.debounceMap, path)
			settled = true
		}
	}
	ins.debounceMu.Unlock()

	if settled {
		if err := ins.reload(); err != nil {
			logging.Knowledge("Instruction reload failed: %v", err)
		} else {
			logging.Knowledge("Instructions reloaded from %s", ins.dir)
		}
	}
}

// reload reads all *.md files, sorted by name for stable ordering.
func (ins *Instructions) reload() error {
	entries, err := os.ReadDir(ins.dir)
	if err != nil {
		if os.IsNotExist(err) {
			ins.mu.Lock()
			ins.text = ""
			ins.mu.Unlock()
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(ins.dir, name))
		if err != nil {
			logging.Knowledge("Skipping unreadable instruction file %s: %v", name, err)
			continue
		}
		text := strings.TrimSpace(string(data))
		if text != "" {
			parts = append(parts, text)
		}
	}

	ins.mu.Lock()
	ins.text = strings.Join(parts, "\n\n")
	ins.mu.Unlock()
	return nil
}
