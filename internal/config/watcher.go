package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Source yields the configuration currently in effect. [*Watcher] and
// [Static] implement it.
type Source interface {
	Current() *Config
}

// Static is a [Source] that always returns the same config.
type Static struct{ Config *Config }

// Current returns s.Config.
func (s Static) Current() *Config { return s.Config }

// Listener is notified after a reload replaced the current config.
type Listener func(d ConfigDiff, cfg *Config)

// fileState fingerprints the config file. Size and mtime are compared first
// so an untouched file is never read.
type fileState struct {
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

func (s fileState) sameStat(info os.FileInfo) bool {
	return s.size == info.Size() && s.mtime.Equal(info.ModTime())
}

// Watcher keeps the config file in effect while the process runs. A
// background poll, or an explicit [Watcher.Reload], swaps in the new config
// when the content changed and still validates. Invalid edits are logged and
// ignored, so a half-written file never replaces working credentials.
type Watcher struct {
	path     string
	interval time.Duration

	mu        sync.Mutex
	current   *Config
	state     fileState
	listeners map[int]Listener
	nextID    int

	// reloadMu serialises reloads from the poller and from Reload.
	reloadMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it in a background goroutine.
// The initial load must succeed.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:      path,
		interval:  5 * time.Second,
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, state, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.state = state

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe registers l for future reloads and returns a function that
// removes it. Listeners run on the reloading goroutine, in no fixed order.
func (w *Watcher) Subscribe(l Listener) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = l
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// Reload re-reads the file now, regardless of its mtime. It reports whether
// the config changed. On error the previous config stays in effect.
func (w *Watcher) Reload() (bool, error) {
	return w.reload(true)
}

// Stop stops polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if _, err := w.reload(false); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

func (w *Watcher) reload(force bool) (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return false, err
		}
		w.mu.Lock()
		unchanged := w.state.sameStat(info)
		w.mu.Unlock()
		if unchanged {
			return false, nil
		}
	}

	cfg, state, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if state.hash == w.state.hash {
		// Touched, same content.
		w.state = state
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current = cfg
	w.state = state
	listeners := make([]Listener, 0, len(w.listeners))
	for _, l := range w.listeners {
		listeners = append(listeners, l)
	}
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"credentials_changed", d.CredentialsChanged,
		"access_token_changed", d.AccessTokenChanged,
	)
	for _, l := range listeners {
		l(d, cfg)
	}
	return true, nil
}

// read parses and validates the file and fingerprints what it read.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), size: info.Size(), hash: sha256.Sum256(data)}, nil
}
