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

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and reports every valid edit that changes
// the effective configuration. Edits that fail to load are logged and
// ignored; the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange runs on the polling
// goroutine with the previous and the new config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.sum = cfg, sum

	go w.loop()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload checks the file now instead of waiting for the next tick. It
// reports whether the effective configuration changed.
func (w *Watcher) Reload() bool {
	cfg, sum, err := w.read()
	if err != nil {
		slog.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	if sum == w.sum {
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.sum = sum
	changed := Diff(old, cfg).Changed()
	if changed {
		w.current = cfg
	}
	w.mu.Unlock()

	if !changed {
		return false
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// Stop ends polling and waits for the polling goroutine to exit. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.Reload()
		}
	}
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
