package campus

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 400 * time.Millisecond

// Watch reloads a layer whenever its source file under the data dir is
// written or recreated. Events are debounced per layer. It returns once the
// watcher is set up; watching stops when ctx is cancelled.
func (m *Map) Watch(ctx context.Context) error {
	if m.cfg.DataDir == "" {
		return errors.New("watch needs a local data dir")
	}
	root, err := filepath.Abs(m.cfg.DataDir)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	byPath := make(map[string][]string)
	for _, l := range m.Registry.Layers() {
		p := filepath.Join(root, filepath.FromSlash(l.URL))
		byPath[p] = append(byPath[p], l.Name)
	}
	m.log.Info("watching data dir", zap.String("root", root), zap.Int("sources", len(byPath)))

	d := &debouncer{timers: make(map[string]*time.Timer)}
	go func() {
		defer w.Close()
		defer d.stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				for _, layer := range byPath[filepath.Clean(ev.Name)] {
					d.after(layer, watchDebounce, func() {
						if err := m.Reload(ctx, layer); err != nil {
							m.log.Warn("layer reload failed", zap.String("layer", layer), zap.Error(err))
						}
					})
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Debug("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func (d *debouncer) after(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}
