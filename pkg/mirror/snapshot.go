package mirror

import (
	"crypto/sha512"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// FileAttributes contains the metadata used to compare whether a source file
// and its mirror are equal.
type FileAttributes struct {
	// ContentsHash is the sha512 hash of the contents of the file.
	ContentsHash string

	// Mode is the file mode of the file.
	Mode os.FileMode
}

// Equal returns whether two files are equal (i.e. whether a copy is necessary).
func (f FileAttributes) Equal(otherFile FileAttributes) bool {
	return f.ContentsHash == otherFile.ContentsHash && f.Mode == otherFile.Mode
}

// Snapshot maps the path of each regular file, relative to the root of the
// snapshotted tree, to its attributes.
type Snapshot map[string]FileAttributes

// HashFile returns the sha512 hash of the file at the given path.
func HashFile(path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// SnapshotTree returns the attributes of every non-ignored regular file
// beneath `root`.
func SnapshotTree(root string, ignore IgnoreSet) (Snapshot, error) {
	files := Snapshot{}
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path != root && ignore.IsIgnored(path) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}

		contentsHash, err := HashFile(path)
		if err != nil {
			return errors.WithContext(err, path)
		}

		files[relativePath] = FileAttributes{
			ContentsHash: contentsHash,
			Mode:         fi.Mode(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Drift lists the relative paths at which a target tree differs from its
// source.
type Drift struct {
	// Missing files exist in the source but not in the target.
	Missing []string

	// Changed files exist in both trees with different contents or modes.
	Changed []string

	// Extra files exist in the target but not in the source.
	Extra []string
}

// Empty returns whether the trees are in sync.
func (d Drift) Empty() bool {
	return len(d.Missing) == 0 && len(d.Changed) == 0 && len(d.Extra) == 0
}

// Diff returns how `target` differs from `source`. The paths in each list are
// sorted.
func (source Snapshot) Diff(target Snapshot) (drift Drift) {
	for path, exp := range source {
		curr, ok := target[path]
		switch {
		case !ok:
			drift.Missing = append(drift.Missing, path)
		case !curr.Equal(exp):
			drift.Changed = append(drift.Changed, path)
		}
	}

	for path := range target {
		if _, ok := source[path]; !ok {
			drift.Extra = append(drift.Extra, path)
		}
	}

	sort.Strings(drift.Missing)
	sort.Strings(drift.Changed)
	sort.Strings(drift.Extra)
	return drift
}

// Verify compares the watch root of `spec` against its target root.
func Verify(spec WatchSpec, ignore IgnoreSet) (Drift, error) {
	source, err := SnapshotTree(spec.WatchRoot, ignore)
	if err != nil {
		return Drift{}, errors.WithContext(err, "snapshot watch root")
	}

	target, err := SnapshotTree(spec.TargetRoot, ignore)
	if err != nil {
		if os.IsNotExist(errors.RootCause(err)) {
			target = Snapshot{}
		} else {
			return Drift{}, errors.WithContext(err, "snapshot target root")
		}
	}
	return source.Diff(target), nil
}
