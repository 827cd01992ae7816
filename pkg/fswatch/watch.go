package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	goSync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

var fs = afero.NewOsFs()

// renameWindow is how long a rename waits for the matching create before it's
// reported as a removal. inotify reports both halves of a move back to back,
// so this only needs to cover scheduling delays.
const renameWindow = 50 * time.Millisecond

// A Watcher reports every change beneath a root directory. fsnotify doesn't
// watch directories recursively, so the Watcher adds a watch for each
// subdirectory, including ones that are created after it starts.
type Watcher struct {
	root          string
	watcher       *fsnotify.Watcher
	converter     *converter
	notifications chan mirror.Notification

	done      chan struct{}
	closeOnce goSync.Once
	wg        goSync.WaitGroup
}

// Watch starts watching `root` and all of its non-ignored subdirectories.
func Watch(root string, ignore mirror.IgnoreSet) (*Watcher, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.NewFriendlyError("%q is not a directory", root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := &Watcher{
		root:          root,
		watcher:       watcher,
		notifications: make(chan mirror.Notification, 128),
		done:          make(chan struct{}),
	}
	w.converter = newConverter(root, ignore, watcher.Add, watcher.Remove)

	if err := w.converter.watchTree(root); err != nil {
		// Close the watcher so that we release the file handlers for the
		// previously added paths.
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
		return nil, errors.WithContext(err, fmt.Sprintf("watch %q", root))
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Root returns the directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// Notifications returns the channel that changes are delivered on, in the
// order they were reported by the OS. It's closed after Close returns.
func (w *Watcher) Notifications() <-chan mirror.Notification {
	return w.notifications
}

// Close stops watching and waits for the event loop to exit. It's safe to
// call more than once.
func (w *Watcher) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.notifications)
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		var flush <-chan time.Time
		if w.converter.hasPendingRename() {
			flush = time.After(renameWindow)
		}

		var out []mirror.Notification
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			out = w.converter.convert(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).WithField("watch", w.root).Warn("File watcher error")
		case <-flush:
			out = w.converter.flush()
		}

		for _, n := range out {
			select {
			case w.notifications <- n:
			case <-w.done:
				return
			}
		}
	}
}

// converter turns raw fsnotify events into notifications, keeping the set of
// watched directories up to date as it goes. It isn't safe for concurrent
// use.
type converter struct {
	root   string
	ignore mirror.IgnoreSet

	addWatch    func(string) error
	removeWatch func(string) error

	// dirs contains every directory that has a watch.
	dirs map[string]struct{}

	// pendingRename is the origin of a move whose destination hasn't been
	// reported yet.
	pendingRename *mirror.Notification
}

func newConverter(root string, ignore mirror.IgnoreSet,
	addWatch, removeWatch func(string) error) *converter {
	return &converter{
		root:        root,
		ignore:      ignore,
		addWatch:    addWatch,
		removeWatch: removeWatch,
		dirs:        map[string]struct{}{},
	}
}

// watchTree adds a watch for `dir` and every non-ignored directory beneath it.
func (c *converter) watchTree(dir string) error {
	return afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path != dir {
				return nil
			}
			return errors.WithContext(err, "walk")
		}

		if !fi.IsDir() {
			return nil
		}

		if path != c.root && c.ignore.IsIgnored(path) {
			return filepath.SkipDir
		}

		if err := c.addWatch(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
		c.dirs[path] = struct{}{}
		return nil
	})
}

// forgetTree stops tracking `dir` and everything beneath it.
func (c *converter) forgetTree(dir string) {
	prefix := dir + string(os.PathSeparator)
	for path := range c.dirs {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(c.dirs, path)
			// The OS usually drops the watch on its own, so errors are
			// expected.
			_ = c.removeWatch(path)
		}
	}
}

func (c *converter) isDir(path string) bool {
	_, ok := c.dirs[path]
	return ok
}

func (c *converter) hasPendingRename() bool {
	return c.pendingRename != nil
}

// flush reports a rename that was never matched with a create as a
// removal. This is what happens when an entry is moved out of the root.
func (c *converter) flush() []mirror.Notification {
	if c.pendingRename == nil {
		return nil
	}

	n := *c.pendingRename
	c.pendingRename = nil
	n.Kind = mirror.Deleted
	return []mirror.Notification{n}
}

func (c *converter) convert(event fsnotify.Event) (out []mirror.Notification) {
	path := event.Name

	// The origin of a rename is gone whether or not the next event turns out
	// to be its destination, so it's always reported as removed.
	if c.pendingRename != nil {
		origin := *c.pendingRename
		out = c.flush()
		if event.Has(fsnotify.Create) {
			created, ok := c.created(path)
			if !ok {
				return out
			}
			if created.IsDir == origin.IsDir {
				created.Kind = mirror.Moved
				created.From = origin.Path
			}
			return append(out, created)
		}
	}

	if path != c.root && c.ignore.IsIgnored(path) {
		return out
	}

	switch {
	case event.Has(fsnotify.Remove):
		isDir := c.isDir(path)
		c.forgetTree(path)
		out = append(out, mirror.Notification{Path: path, Kind: mirror.Deleted, IsDir: isDir})
	case event.Has(fsnotify.Rename):
		isDir := c.isDir(path)
		c.forgetTree(path)
		c.pendingRename = &mirror.Notification{Path: path, IsDir: isDir}
	case event.Has(fsnotify.Create):
		if created, ok := c.created(path); ok {
			out = append(out, created)
		}
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		// Directory attribute changes would trigger a full copy of the
		// directory, and its contents are reported separately anyway.
		if !c.isDir(path) {
			out = append(out, mirror.Notification{Path: path, Kind: mirror.Modified})
		}
	}
	return out
}

// created returns the notification for a newly created entry, and starts
// watching it if it's a directory. It returns false if the entry is already
// gone.
func (c *converter) created(path string) (mirror.Notification, bool) {
	if c.ignore.IsIgnored(path) {
		return mirror.Notification{}, false
	}

	fi, err := fs.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("Failed to stat created file")
		}
		return mirror.Notification{}, false
	}

	if fi.IsDir() {
		if err := c.watchTree(path); err != nil {
			log.WithError(err).WithField("path", path).Warn(
				"Failed to watch new directory. Changes within it won't be mirrored.")
		}
	}
	return mirror.Notification{Path: path, Kind: mirror.Created, IsDir: fi.IsDir()}, true
}
