package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Watcher observes the configuration file on disk and logs when it changes.
// It does not reload the running configuration: per the external reference,
// configuration is validated once at startup, so a detected change is
// surfaced for an operator (or supervisor) to act on by restarting the
// process rather than applied in place.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     logr.Logger
	done    chan struct{}
}

// WatchFile starts watching path for writes/renames/removals. Call Close to
// stop.
func WatchFile(path string, log logr.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, log: log, done: make(chan struct{})}
	go w.loop(path)
	return w, nil
}

func (w *Watcher) loop(path string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.log.Info("config file changed on disk; restart to apply", "path", path, "op", event.Op.String())
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "config watcher error", "path", path)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
