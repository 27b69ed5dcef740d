package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the name of every snapshot directory created directly
// under casePath until ctx is done. It returns nil on cancellation.
func Watch(ctx context.Context, casePath string, fn func(time string)) error {
	return watch(ctx, casePath, false, func(t string) bool {
		fn(t)
		return true
	})
}

// Follow reports the snapshots already present in casePath in numeric order
// and then every snapshot created afterwards, until fn returns false or ctx
// is done. The watch is registered before the directory is listed, so a
// snapshot written in between is reported once.
func Follow(ctx context.Context, casePath string, fn func(time string) bool) error {
	return watch(ctx, casePath, true, fn)
}

func watch(ctx context.Context, casePath string, existing bool, fn func(string) bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", casePath, err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(casePath); err != nil {
		if _, serr := os.Stat(casePath); errors.Is(serr, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, casePath)
		}
		return fmt.Errorf("watch %s: %w", casePath, err)
	}
	listed := make(map[string]struct{})
	if existing {
		times, err := ListTimes(casePath)
		if err != nil {
			return err
		}
		for _, t := range times {
			listed[t] = struct{}{}
			if !fn(t) {
				return nil
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !IsTime(name) {
				continue
			}
			if _, dup := listed[name]; dup {
				delete(listed, name)
				continue
			}
			if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
				if !fn(name) {
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", casePath, err)
		}
	}
}
