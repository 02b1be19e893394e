package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/illarion/mithril/internal/security"
)

// RemovableWatcher mounts removable volumes when their media appears.
//
// It watches the nearest existing ancestor of every removable cipher
// directory. Create events are debounced, after which the watch set is
// rebuilt and a removable-only sweep runs.
type RemovableWatcher struct {
	manager  *Manager
	debounce time.Duration
	opts     SweepOptions
	logger   zerolog.Logger

	// OnSweep, when set, receives each sweep report.
	OnSweep func(*SweepReport)
	// InitialSweep runs one sweep before the first media event. Leave it
	// unset when the caller has just swept.
	InitialSweep bool
}

// NewRemovableWatcher creates a watcher for the removable volumes of m.
func NewRemovableWatcher(m *Manager, debounce time.Duration, concurrency int, logger zerolog.Logger) *RemovableWatcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &RemovableWatcher{
		manager:  m,
		debounce: debounce,
		opts:     SweepOptions{Concurrency: concurrency, RemovableOnly: true},
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (w *RemovableWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	watched := make(map[string]bool)
	w.sync(fw, watched)

	ctx, cancel := context.WithCancel(ctx)
	trigger := make(chan struct{}, 1)
	if w.InitialSweep {
		trigger <- struct{}{}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
				w.sweep(ctx)
			}
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().Str("path", event.Name).Msg("media event")
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			w.sync(fw, watched)
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

func (w *RemovableWatcher) sweep(ctx context.Context) {
	report, err := w.manager.Sweep(ctx, w.opts)
	if err != nil {
		w.logger.Warn().Err(err).Msg("removable sweep failed")
		return
	}
	for _, res := range report.Results {
		if res.State == StateMounted && res.Err == nil && res.Skipped == "" {
			w.logger.Info().Str("volume", res.Volume.Label).Msg("removable volume mounted")
		}
	}
	if w.OnSweep != nil {
		w.OnSweep(report)
	}
}

// sync adds a watch for the nearest existing ancestor of each removable
// cipher directory. Watches on directories that disappeared are dropped by
// fsnotify itself.
func (w *RemovableWatcher) sync(fw *fsnotify.Watcher, watched map[string]bool) {
	volumes, err := w.manager.Catalog().Volumes()
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to list volumes")
		return
	}
	current := make(map[string]bool)
	for _, p := range fw.WatchList() {
		current[p] = true
	}
	for p := range watched {
		if !current[p] {
			delete(watched, p)
		}
	}

	for _, v := range volumes {
		if !v.IsRemovable() {
			continue
		}
		r, err := security.Resolve(v.CipherDir)
		if err != nil {
			continue
		}
		dir := nearestExisting(filepath.Dir(r.Path))
		if watched[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("path", dir).Msg("failed to watch")
			continue
		}
		watched[dir] = true
		w.logger.Debug().Str("path", dir).Str("volume", v.Label).Msg("watching")
	}
}

func nearestExisting(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
