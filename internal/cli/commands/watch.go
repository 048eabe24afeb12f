package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/querygen/internal/loader"
	"golang.org/x/sync/errgroup"
)

// watchLoop turns filesystem events into debounced regeneration triggers.
type watchLoop struct {
	debounce   time.Duration
	extensions []string
	// schemaPath triggers a run even when its extension is not watched.
	schemaPath string
	// add starts watching a newly created directory.
	add    func(string) error
	logger *slog.Logger
}

// relevant reports whether an event should trigger a run.
func (w *watchLoop) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Clean(ev.Name) == filepath.Clean(w.schemaPath) {
		return true
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(base)))
}

// pump reads events until ctx is done or the watcher closes. Bursts of
// events within the debounce window produce a single trigger.
func (w *watchLoop) pump(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, trigger chan<- struct{}) error {
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
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && w.add != nil {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.add(ev.Name); err != nil {
						w.logger.Warn("failed to watch directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			select {
			case trigger <- struct{}{}:
			default:
				// A run is already pending.
			}
		}
	}
}

// watchDirs lists the queries directory, its namespaces and the schema
// location.
func watchDirs(queriesDir, schemaPath string) ([]string, error) {
	dirs, err := loader.WatchDirs(queriesDir)
	if err != nil {
		return nil, err
	}
	schemaDir := schemaPath
	if info, err := os.Stat(schemaPath); err == nil && !info.IsDir() {
		schemaDir = filepath.Dir(schemaPath)
	}
	if schemaDir != "" && !slices.Contains(dirs, schemaDir) {
		dirs = append(dirs, schemaDir)
	}
	return dirs, nil
}

// runWatch generates once, then again after every relevant change, until
// ctx is cancelled. A failed run is reported and watching continues.
func runWatch(ctx context.Context, c *CommandContext) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs, err := watchDirs(c.Cfg.QueriesDir, c.Cfg.Schema)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	loop := &watchLoop{
		debounce:   c.Cfg.Watch.Debounce,
		extensions: c.Cfg.Watch.Extensions,
		schemaPath: c.Cfg.Schema,
		add:        watcher.Add,
		logger:     c.Logger,
	}

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.pump(gctx, watcher.Events, watcher.Errors, trigger)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-trigger:
				if err := generateOnce(gctx, c); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					c.Renderer.Error(err.Error())
					continue
				}
				c.Renderer.Success("Watching for changes (Ctrl+C to stop)")
			}
		}
	})

	c.Renderer.Success(fmt.Sprintf("Watching %d directories", len(dirs)))
	return g.Wait()
}
