package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	captionr "github.com/tstromberg/captionr/pkg/captionr"
)

// settle is how long an image must go without writes before it is captioned.
var settle = 2 * time.Second

// debouncer runs fn for a path once no new events for it arrived within delay.
type debouncer struct {
	delay time.Duration
	fn    func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration, fn func(string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, pending: map[string]*time.Timer{}}
}

// add (re)starts the timer for path. A timer that was superseded does nothing when it fires.
func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.pending[path]; ok && old.Stop() {
		// stopped before firing, so its callback will never call Done
		d.wg.Done()
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[path] != t {
			d.mu.Unlock()
			return
		}
		delete(d.pending, path)
		d.mu.Unlock()
		d.fn(path)
	})
	d.pending[path] = t
}

// stop cancels timers that have not fired and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for path, t := range d.pending {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.pending, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// watch captions images that are created or rewritten under the configured folders.
func watch(ctx context.Context, c captionr.Config, cr *captionr.Captionr) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	dirs := []string{}
	for _, f := range c.Folders {
		ds, err := captionr.Dirs(f)
		if err != nil {
			return fmt.Errorf("dirs: %w", err)
		}
		dirs = append(dirs, ds...)
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("add %s: %w", d, err)
		}
	}

	db := newDebouncer(settle, func(path string) { caption(ctx, c, cr, path) })
	defer db.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("event: %s", event)

			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.Add(event.Name); err != nil {
						klog.Errorf("add %s: %v", event.Name, err)
					}
					continue
				}
			}

			if !captionr.IsImage(event.Name) || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				continue
			}
			db.add(event.Name)
		}
	}
}

func caption(ctx context.Context, c captionr.Config, cr *captionr.Captionr, path string) {
	if ctx.Err() != nil {
		return
	}

	if c.Existing == captionr.ExistingSkip {
		if _, err := os.Stat(c.CaptionPath(path)); err == nil {
			klog.V(1).Infof("%s already captioned", path)
			return
		}
	}

	if _, err := cr.Process(ctx, path); err != nil {
		klog.Errorf("Exception occurred processing %s: %v", path, err)
	}
}
