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

// ReloadFunc receives the previous and the newly loaded config. It is only
// called when [Diff] reports a change.
type ReloadFunc func(old, new *Config)

// Watcher keeps a config file's last valid content current. It polls the
// file's modification time and size, and [Watcher.Reload] rereads it on
// demand (chartvox wires that to SIGHUP). Edits that fail validation are
// reported and skipped. Edits that only touch comments or formatting update
// the fingerprint without a callback.
type Watcher struct {
	path      string
	interval  time.Duration
	onChange  ReloadFunc
	onInvalid func(error)
	log       *slog.Logger

	// reloadMu serialises reloads so callbacks never overlap.
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type fileStamp struct {
	mtime time.Time
	size  int64
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithOnInvalid registers fn to be called with the load error of every edit
// that is rejected.
func WithOnInvalid(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onInvalid = fn }
}

// NewWatcher loads the config at path and starts polling it. The initial
// load must succeed. onChange may be nil.
func NewWatcher(path string, onChange ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum

	go w.run()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload rereads the file regardless of its modification time and applies
// it like a polled change. It returns what changed; an empty diff means the
// current config was kept as is.
func (w *Watcher) Reload() (ConfigDiff, error) {
	return w.reload(true)
}

// Stop ends polling and waits for an in-flight callback to return. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_, _ = w.reload(false)
		}
	}
}

func (w *Watcher) reload(force bool) (ConfigDiff, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	var polled fileStamp
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			w.log.Warn("config: cannot stat watched file", "path", w.path, "err", err)
			return ConfigDiff{}, err
		}
		polled = fileStamp{mtime: info.ModTime(), size: info.Size()}
		w.mu.Lock()
		same := w.stamp == polled
		w.mu.Unlock()
		if same {
			return ConfigDiff{}, nil
		}
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		if !force {
			// Report a broken edit once, not on every poll.
			w.mu.Lock()
			w.stamp = polled
			w.mu.Unlock()
		}
		w.log.Warn("config: edit rejected, keeping previous config", "path", w.path, "err", err)
		if w.onInvalid != nil {
			w.onInvalid(err)
		}
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	old := w.current
	w.stamp = stamp
	if sum == w.sum {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	w.sum = sum
	d := Diff(old, cfg)
	if d.Empty() {
		w.mu.Unlock()
		w.log.Debug("config: file changed without effect", "path", w.path)
		return d, nil
	}
	w.current = cfg
	w.mu.Unlock()

	w.log.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"engine_changed", d.EngineChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return d, nil
}

// read stats, reads and validates the file.
func (w *Watcher) read() (*Config, fileStamp, [sha256.Size]byte, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size()}, sha256.Sum256(data), nil
}
