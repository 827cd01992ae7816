package mirror

import (
	"os"
	"strings"
)

// Translate maps `sourcePath` inside `watchRoot` to the corresponding path
// inside `targetRoot` by swapping the root prefix.
// The substitution is purely textual. If `watchRoot` isn't a prefix of
// `sourcePath`, the whole `sourcePath` is appended to `targetRoot`, so callers
// should check Contains first.
func Translate(watchRoot, targetRoot, sourcePath string) string {
	return targetRoot + strings.TrimPrefix(sourcePath, watchRoot)
}

// Contains returns whether `path` is `root` or lies somewhere beneath it.
// Unlike a plain prefix check, `/srcfoo` is not inside `/src`.
func Contains(root, path string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	if strings.HasSuffix(root, string(os.PathSeparator)) {
		return true
	}
	return path[len(root)] == os.PathSeparator
}
