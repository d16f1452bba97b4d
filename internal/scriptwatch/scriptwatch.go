// Package scriptwatch is a host-side dev-mode convenience, not part of
// the Derp core: watch a script file and re-run it on every write,
// the way spec.md places its optional lilyparser/image/sockets/HTTP
// natives beside the core as independent utilities the VM itself
// never imports.
package scriptwatch

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// EvalFunc is the callback invoked with the script's source text on
// startup and after every subsequent write to path.
type EvalFunc func(src string)

// Watch blocks, invoking onChange(src) once immediately and again
// every time path is written, until stop is closed or an
// unrecoverable fsnotify error occurs. readFile reads the file's
// current contents (injected so callers can use os.ReadFile directly
// without this package importing "os" for a one-line call).
func Watch(path string, readFile func(string) ([]byte, error), onChange EvalFunc, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scriptwatch: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("scriptwatch: watch %s: %w", path, err)
	}

	runOnce := func() error {
		data, err := readFile(path)
		if err != nil {
			return fmt.Errorf("scriptwatch: read %s: %w", path, err)
		}
		onChange(string(data))
		return nil
	}
	if err := runOnce(); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := runOnce(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("scriptwatch: watcher error: %w", err)
		}
	}
}
