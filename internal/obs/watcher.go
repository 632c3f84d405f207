package obs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
)

// Trigger modes.
const (
	ModeWatch    = "watch"
	ModePoll     = "poll"
	ModeInterval = "interval"
)

// RefreshFunc is called whenever the snapshot should be reloaded.
type RefreshFunc func(ctx context.Context) error

// Refresher refreshes one browser source, redialing OBS after a failed
// refresh. It is safe for concurrent use.
type Refresher struct {
	cfg    Config
	source string
	dial   func(Config) (Session, error)

	mu      sync.Mutex
	session Session

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRefresher creates a refresher for source. It connects on first use.
func NewRefresher(cfg Config, source string) *Refresher {
	return &Refresher{
		cfg:    cfg,
		source: source,
		dial: func(cfg Config) (Session, error) {
			return Dial(cfg)
		},
		logger:  logging.WithComponent("obs"),
		metrics: metrics.DefaultMetrics,
	}
}

// Refresh presses the refresh button of the browser source.
func (r *Refresher) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.refreshLocked()
	r.metrics.RecordOBSRefresh(err)
	return err
}

func (r *Refresher) refreshLocked() error {
	if r.session == nil {
		s, err := r.dial(r.cfg)
		if err != nil {
			return err
		}
		r.session = s
	}
	err := r.session.RefreshBrowserSource(r.source)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Dropping OBS session")
		r.session.Close()
		r.session = nil
	}
	return err
}

// Close drops the OBS connection.
func (r *Refresher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	return err
}

// FileWatcher refreshes after the watched file is written or replaced,
// coalescing bursts of events within the debounce window.
type FileWatcher struct {
	target   string
	debounce time.Duration
	w        *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewFileWatcher starts watching the directory of path. Watching the
// directory keeps the watch alive across atomic rename-into-place writes.
func NewFileWatcher(path string, debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("obs: create watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, fmt.Errorf("obs: watch %s: %w", filepath.Dir(target), err)
	}
	return &FileWatcher{
		target:   target,
		debounce: debounce,
		w:        w,
		logger:   logging.WithComponent("obs-watch"),
	}, nil
}

// Run calls fn after changes until ctx is cancelled. Refresh failures are
// logged and do not stop the watcher.
func (fw *FileWatcher) Run(ctx context.Context, fn RefreshFunc) error {
	defer fw.w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != fw.target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn().Err(err).Msg("File watch error")

		case <-fire:
			fire = nil
			invoke(ctx, fw.logger, fn, "change")
		}
	}
}

// Poll calls fn when the modification time of path changes, checking every
// interval. A missing file is not an error.
func Poll(ctx context.Context, path string, interval time.Duration, fn RefreshFunc) error {
	logger := logging.WithComponent("obs-poll")
	last := modTime(path)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m := modTime(path)
			if m.IsZero() || m.Equal(last) {
				continue
			}
			last = m
			invoke(ctx, logger, fn, "mtime")
		}
	}
}

// Every calls fn once per interval.
func Every(ctx context.Context, interval time.Duration, fn RefreshFunc) error {
	logger := logging.WithComponent("obs-interval")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			invoke(ctx, logger, fn, "interval")
		}
	}
}

// WatchConfig selects how refreshes are triggered.
type WatchConfig struct {
	Mode     string
	File     string
	Interval time.Duration
	Debounce time.Duration
}

// Run triggers fn according to cfg.Mode until ctx is cancelled.
func Run(ctx context.Context, cfg WatchConfig, fn RefreshFunc) error {
	switch cfg.Mode {
	case ModeWatch:
		fw, err := NewFileWatcher(cfg.File, cfg.Debounce)
		if err != nil {
			return err
		}
		return fw.Run(ctx, fn)
	case ModePoll:
		return Poll(ctx, cfg.File, cfg.Interval, fn)
	case ModeInterval:
		return Every(ctx, cfg.Interval, fn)
	}
	return fmt.Errorf("obs: unknown mode %q", cfg.Mode)
}

func invoke(ctx context.Context, logger zerolog.Logger, fn RefreshFunc, reason string) {
	if err := fn(ctx); err != nil {
		logger.Warn().Err(err).Str("reason", reason).Msg("Refresh failed")
		return
	}
	logger.Debug().Str("reason", reason).Msg("Browser source refreshed")
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
