package mirror

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// WatchSpec declares that the tree at WatchRoot is mirrored into TargetRoot.
type WatchSpec struct {
	WatchRoot  string
	TargetRoot string

	// Prune removes entries from TargetRoot that don't exist in WatchRoot
	// during the bootstrap copy.
	Prune bool
}

// Engine propagates changes under a single watch root into its target root.
// It holds no state between notifications: every decision is made from what
// is on disk when the notification is handled. Notifications must be handled
// one at a time.
type Engine struct {
	spec   WatchSpec
	ignore IgnoreSet
	log    logrus.FieldLogger
}

// NewEngine returns an Engine for `spec`. Bootstrap should be called before
// any notifications are handled.
func NewEngine(spec WatchSpec, ignore IgnoreSet, log logrus.FieldLogger) *Engine {
	return &Engine{
		spec:   spec,
		ignore: ignore,
		log: log.WithFields(logrus.Fields{
			"watch":  spec.WatchRoot,
			"target": spec.TargetRoot,
		}),
	}
}

// Spec returns the WatchSpec the engine is bound to.
func (e *Engine) Spec() WatchSpec {
	return e.spec
}

// Bootstrap copies the full contents of the watch root into the target root,
// creating the target root if necessary.
func (e *Engine) Bootstrap() error {
	if e.overlapsWatchRoot(e.spec.TargetRoot) {
		return errors.NewFriendlyError(
			"The watch directory %q and its target %q overlap.\n"+
				"Mirroring would overwrite the directory being watched.",
			e.spec.WatchRoot, e.spec.TargetRoot)
	}

	fi, err := fs.Stat(e.spec.WatchRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: e.spec.WatchRoot}
		}
		return errors.WithContext(err, "stat watch root")
	}

	if !fi.IsDir() {
		return errors.NewFriendlyError("%q is not a directory", e.spec.WatchRoot)
	}

	if err := fs.MkdirAll(e.spec.TargetRoot, 0755); err != nil {
		return errors.WithContext(err, "make target root")
	}

	if err := copyTree(e.spec.WatchRoot, e.spec.TargetRoot, e.ignore); err != nil {
		return errors.WithContext(err, "copy")
	}

	if e.spec.Prune {
		if err := e.prune(); err != nil {
			return errors.WithContext(err, "prune")
		}
	}
	return nil
}

// prune removes the target entries whose source counterparts don't exist.
// Ignored entries are left alone.
func (e *Engine) prune() error {
	var pruned []string
	err := afero.Walk(fs, e.spec.TargetRoot, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path != e.spec.TargetRoot {
				return nil
			}
			return err
		}

		if path == e.spec.TargetRoot {
			return nil
		}

		// Never prune the watch root or the directories leading to it.
		if Contains(path, e.spec.WatchRoot) {
			if path == e.spec.WatchRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if e.ignore.IsIgnored(path) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		source := Translate(e.spec.TargetRoot, e.spec.WatchRoot, path)
		exists, err := afero.Exists(fs, source)
		if err != nil {
			return errors.WithContext(err, "check source")
		}
		if exists {
			return nil
		}

		if err := removeTree(path); err != nil {
			return err
		}
		pruned = append(pruned, path)
		if fi.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})

	if len(pruned) > 0 {
		e.log.WithField("removed", truncateSlice(pruned, 5)).Info("Pruned stale files")
	}
	return err
}

// Handle applies a single notification to the target tree.
//
// Created and Modified share the same create-or-replace logic, and all
// existence checks happen at mutation time, so duplicated, coalesced or
// reordered notifications are tolerated. Permission failures are dropped
// without an error. Any other failure is returned, but leaves the engine
// usable for later notifications.
func (e *Engine) Handle(n Notification) error {
	if e.ignore.IsIgnored(n.Path) {
		return nil
	}

	if !Contains(e.spec.WatchRoot, n.Path) {
		e.log.WithField("path", n.Path).Warn(
			"Received a notification outside the watch root. Ignoring it.")
		return nil
	}

	var err error
	switch n.Kind {
	case Created, Modified:
		err = e.refresh(n.Path, n.IsDir)
	case Deleted:
		err = e.remove(n.Path)
	case Moved:
		// A move refreshes its destination. The origin's old target is left
		// in place.
		if !Contains(e.spec.WatchRoot, n.From) {
			return nil
		}
		return e.Handle(Notification{Path: n.Path, Kind: Modified, IsDir: n.IsDir})
	default:
		return errors.New(fmt.Sprintf("unknown notification kind: %s", n.Kind))
	}

	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrPermission) {
		e.log.WithError(err).WithField("path", n.Path).Debug(
			"Permission denied. Dropping notification.")
		return nil
	}
	return errors.WithContext(err, n.String())
}

// refresh makes the target of `path` match the source, replacing whatever is
// currently at the target.
func (e *Engine) refresh(path string, isDir bool) error {
	fi, err := fs.Stat(path)
	if err != nil {
		// The source is already gone. The notification for its removal will
		// take care of the target.
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat source")
	}

	if fi.IsDir() != isDir {
		e.log.WithField("path", path).Debug(
			"Notification disagrees with the filesystem about the entry type")
	}

	target := Translate(e.spec.WatchRoot, e.spec.TargetRoot, path)
	if e.overlapsWatchRoot(target) {
		e.log.WithField("path", target).Warn(
			"Refusing to overwrite the watch root. Ignoring the change.")
		return nil
	}

	if !fi.IsDir() {
		if err := copyFile(path, target); err != nil {
			return err
		}
		e.log.WithField("path", target).Debug("Copied file")
		return nil
	}

	if err := removeTree(target); err != nil {
		return err
	}
	if err := copyTree(path, target, e.ignore); err != nil {
		return err
	}
	e.log.WithField("path", target).Debug("Copied directory")
	return nil
}

// remove deletes the target of `path`, if it exists.
func (e *Engine) remove(path string) error {
	target := Translate(e.spec.WatchRoot, e.spec.TargetRoot, path)
	if e.overlapsWatchRoot(target) {
		e.log.WithField("path", target).Warn(
			"Refusing to remove the watch root. Ignoring the change.")
		return nil
	}

	fi, err := fs.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat target")
	}

	if fi.IsDir() {
		if err := removeTree(target); err != nil {
			return err
		}
	} else if err := fs.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "remove file")
	}
	e.log.WithField("path", target).Debug("Removed")
	return nil
}

// overlapsWatchRoot returns whether writing or removing `target` would
// modify the watch root.
func (e *Engine) overlapsWatchRoot(target string) bool {
	return Contains(target, e.spec.WatchRoot) || Contains(e.spec.WatchRoot, target)
}

// truncateSlice truncates the given slice of strings to the given length. If
// the slice is longer than `length`, a message is appended saying how many
// more items are in the slice.
func truncateSlice(slc []string, length int) (truncated []string) {
	if len(slc) <= length {
		return slc
	}
	msg := fmt.Sprintf("... %d more ...", len(slc)-length)
	return append(slc[:length], msg)
}
