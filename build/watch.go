package build

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/b1naryth1ef/cntpack"
)

// DefaultDebounce is how long Watch waits for changes to settle before
// rebuilding.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changed paths below a set of directory trees. Directories
// created after the watcher starts are watched as well.
type Watcher struct {
	watcher *fsnotify.Watcher
	Events  chan string
	Errors  chan error
	closeCh chan struct{}
	once    sync.Once
}

func NewWatcher(dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := addTree(w, dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		watcher: w,
		Events:  make(chan string, 16),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.Events)
	defer close(w.Errors)

	recent := make(recentPaths)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(w.watcher, event.Name); err != nil {
						w.sendError(err)
					}
				}
			}
			if recent.seen(event.Name, time.Now()) {
				continue
			}
			select {
			case w.Events <- event.Name:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		case <-w.closeCh:
			return
		}
	}
}

// repeatWindow folds bursts of events for the same path into one.
const repeatWindow = 100 * time.Millisecond

// recentPaths remembers the paths reported within the last repeatWindow.
type recentPaths map[string]time.Time

// seen reports whether path was already reported within repeatWindow of now,
// and records it otherwise. Expired entries are dropped on every call.
func (r recentPaths) seen(path string, now time.Time) bool {
	for p, t := range r {
		if now.Sub(t) >= repeatWindow {
			delete(r, p)
		}
	}
	if _, ok := r[path]; ok {
		return true
	}
	r[path] = now
	return false
}

func (w *Watcher) sendError(err error) {
	select {
	case w.Errors <- err:
	default:
	}
}

// affects reports whether a change to path should rebuild bundleCfg.
func affects(bundleCfg *cntpack.BundleConfigBlock, converters map[string]cntpack.Converter, path string) bool {
	if path == bundleCfg.Output || path == bundleCfg.Manifest {
		return false
	}
	rel, err := filepath.Rel(bundleCfg.Source, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)
	if cntpack.Excluded(rel, bundleCfg.Exclude) {
		return false
	}

	_, ext := cntpack.SplitAssetName(rel)
	if ext == "" {
		// most likely a directory that was removed or renamed
		return true
	}
	_, ok := converters[ext]
	return ok
}

// Watch builds the selected bundles, then rebuilds a bundle whenever one of
// its sources changes, until ctx is done. Asset failures are logged and do
// not stop the watch.
func Watch(ctx context.Context, config *cntpack.Config, opts BuildOpts, debounce time.Duration) error {
	bundles, err := selectBundles(config, opts.Bundle)
	if err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger.With().Str("component", "watch").Logger()

	dirs := make([]string, 0, len(bundles))
	for _, bundleCfg := range bundles {
		if err := ensureDirectory(bundleCfg.Source); err != nil {
			return err
		}
		dirs = append(dirs, bundleCfg.Source)
	}

	w, err := NewWatcher(dirs...)
	if err != nil {
		return err
	}
	defer w.Close()

	rebuild := func(bundleCfg *cntpack.BundleConfigBlock) error {
		if _, err := runBundle(ctx, config, bundleCfg, opts.Logger); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Str("bundle", bundleCfg.Name).Msg("build failed")
		}
		return nil
	}

	for _, bundleCfg := range bundles {
		if err := rebuild(bundleCfg); err != nil {
			return nil
		}
	}
	logger.Info().Strs("sources", dirs).Msg("watching for changes")

	converters := cntpack.DefaultConverters()
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case path, ok := <-w.Events:
			if !ok {
				return nil
			}
			for _, bundleCfg := range bundles {
				if affects(bundleCfg, converters, path) {
					logger.Debug().Str("path", path).Str("bundle", bundleCfg.Name).Msg("source changed")
					pending[bundleCfg.Name] = true
					timer.Reset(debounce)
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			for _, bundleCfg := range bundles {
				if !pending[bundleCfg.Name] {
					continue
				}
				if err := rebuild(bundleCfg); err != nil {
					return nil
				}
			}
			clear(pending)
		}
	}
}
