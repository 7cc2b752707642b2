package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/util/pathutil"
)

// ReloadFunc receives the result of reloading after a change. On error the
// previous configuration stays in effect.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a configuration file when it, or one of its layers,
// changes on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	files    map[string]bool
	debounce time.Duration
	onReload ReloadFunc
	logger   *logrus.Entry

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path and the global and override layers that LoadFile
// merges with it. Directories are watched rather than files, since editors
// commonly replace a file instead of writing it in place. fsnotify does not
// follow symlinks, so the directory of each symlink target is watched too.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		files:    make(map[string]bool),
		debounce: debounce,
		onReload: onReload,
		logger:   logging.NewLogger("config-watcher"),
	}

	candidates := []string{path}
	if global := globalConfigPath(); global != "" {
		candidates = append(candidates, global)
	}
	for _, name := range overrideNames {
		candidates = append(candidates, filepath.Join(filepath.Dir(path), name))
	}

	watchedDirs := make(map[string]bool)
	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		w.files[abs] = true
		dirs := []string{filepath.Dir(abs)}

		if target, err := filepath.EvalSymlinks(abs); err == nil && target != abs {
			dirs = append(dirs, filepath.Dir(target))
		}
		if key, err := pathutil.NormalizeForLookup(abs); err == nil {
			w.files[key] = true
		}

		for _, dir := range dirs {
			if watchedDirs[dir] {
				continue
			}
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := fw.Add(dir); err != nil {
				w.logger.WithError(err).Warnf("Failed to watch %s", dir)
				continue
			}
			watchedDirs[dir] = true
			w.logger.Debugf("Watching %s", dir)
		}
	}

	if len(watchedDirs) == 0 {
		fw.Close()
		return nil, os.ErrNotExist
	}
	return w, nil
}

// Start processes file events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if file, ok := w.known(event.Name); ok {
				w.schedule(file)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// schedule coalesces a burst of writes into one reload once the file has
// been quiet for the debounce period.
func (w *Watcher) known(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	if w.files[abs] {
		return abs, true
	}
	if key, err := pathutil.NormalizeForLookup(abs); err == nil && w.files[key] {
		return abs, true
	}
	return "", false
}

func (w *Watcher) schedule(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Infof("Config changed: %s", filepath.Base(file))
		cfg, err := LoadFile(w.path)
		if err != nil {
			w.logger.WithError(err).Warn("Reload failed, keeping previous configuration")
		}
		if w.onReload != nil {
			w.onReload(cfg, err)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}
