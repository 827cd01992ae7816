package mirror

import (
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// fs is the filesystem that both the watch roots and the target roots live
// on. It's overridden with afero.NewMemMapFs() in the tests.
var fs = afero.NewOsFs()

// copyFile overwrites `dst` with the contents, mode and modification time of
// `src`, creating any missing parent directories.
func copyFile(src, dst string) error {
	dstParent := filepath.Dir(dst)
	dstParentExists, err := afero.DirExists(fs, dstParent)
	if err != nil {
		return errors.WithContext(err, "check if parent exists")
	}

	if !dstParentExists {
		if err := fs.MkdirAll(dstParent, 0755); err != nil {
			return errors.WithContext(err, "make parent")
		}
	}

	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	// Replace rather than truncate. The old copy may be read-only, and a
	// directory in the way would make the create fail.
	if err := removeExisting(dst); err != nil {
		return err
	}

	dstFile, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}

	if err := fs.Chmod(dst, fileInfo.Mode()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, time.Now(), fileInfo.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

// copyTree recursively copies the directory `src` onto `dst`. Existing files
// in `dst` are overwritten, and files that only exist in `dst` are left
// alone. Ignored entries are skipped along with everything beneath them.
func copyTree(src, dst string, ignore IgnoreSet) error {
	return afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			// The entry was removed after its parent was listed. The
			// notification for the removal will clean up after us.
			if os.IsNotExist(err) && path != src {
				return nil
			}
			return errors.WithContext(err, "walk")
		}

		if path != src && ignore.IsIgnored(path) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relativePath, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		target := filepath.Join(dst, relativePath)

		// Symlinks to files are copied as regular files. Symlinks to
		// directories aren't followed since they may form cycles.
		if fi.Mode()&os.ModeSymlink != 0 {
			resolved, err := fs.Stat(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Debug("Skipping broken symlink")
				return nil
			}
			if resolved.IsDir() {
				log.WithField("path", path).Debug("Skipping symlinked directory")
				return nil
			}
			fi = resolved
		}

		switch {
		case fi.IsDir():
			if err := removeIfFile(target); err != nil {
				return err
			}
			if err := fs.MkdirAll(target, fi.Mode().Perm()|0700); err != nil {
				return errors.WithContext(err, "make directory")
			}
		case fi.Mode().IsRegular():
			if err := copyFile(path, target); err != nil {
				return errors.WithContext(err, path)
			}
		default:
			log.WithField("path", path).Debug("Skipping irregular file")
		}
		return nil
	})
}

// removeTree removes `path` and everything beneath it. It's not an error if
// `path` doesn't exist.
func removeTree(path string) error {
	if err := fs.RemoveAll(path); err != nil {
		return errors.WithContext(err, "remove all")
	}
	return nil
}

func removeExisting(path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat destination")
	}

	if fi.IsDir() {
		return removeTree(path)
	}
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "remove destination")
	}
	return nil
}

func removeIfFile(path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat destination")
	}

	if !fi.IsDir() {
		if err := fs.Remove(path); err != nil {
			return errors.WithContext(err, "remove file")
		}
	}
	return nil
}
