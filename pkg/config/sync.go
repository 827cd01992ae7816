package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

// DefaultPath is where the config is read from when no path is given.
const DefaultPath = "config.json"

// DefaultUpdateFreq is the poll interval, in seconds, used when the config
// doesn't set one.
const DefaultUpdateFreq = 1.0

// Config describes which directories to mirror and where.
type Config struct {
	Dirs           []Dir    `json:"dirs"` // Required.
	Ignore         []string `json:"ignore,omitempty"`
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`

	// UpdateFreq is how often, in seconds, the main loop wakes up. It doesn't
	// affect how quickly changes are mirrored.
	UpdateFreq float64 `json:"updateFreq,omitempty"`

	// Only populated by Parse. Never set by the user.
	path      string
	ignoreSet mirror.IgnoreSet
}

// Dir is a single watch directory and the target that mirrors it.
type Dir struct {
	Watch  string `json:"watch"`  // Required.
	Target string `json:"target"` // Required.

	// Prune removes files from Target that don't exist in Watch when
	// mirroring starts.
	Prune bool `json:"prune,omitempty"`
}

// GetPath returns the filepath that the config was parsed from. A getter
// method is used rather than making the field public so that it can't get set
// by the yaml Unmarshalling.
func (c Config) GetPath() string {
	return c.path
}

// WatchSpecs returns the mirroring relationships declared by the config.
func (c Config) WatchSpecs() (specs []mirror.WatchSpec) {
	for _, dir := range c.Dirs {
		specs = append(specs, mirror.WatchSpec{
			WatchRoot:  dir.Watch,
			TargetRoot: dir.Target,
			Prune:      dir.Prune,
		})
	}
	return specs
}

// IgnoreSet returns the entries that are never mirrored.
func (c Config) IgnoreSet() mirror.IgnoreSet {
	return c.ignoreSet
}

// PollInterval returns UpdateFreq as a duration.
func (c Config) PollInterval() time.Duration {
	freq := c.UpdateFreq
	if freq <= 0 {
		freq = DefaultUpdateFreq
	}
	return time.Duration(freq * float64(time.Second))
}

// Parse reads and validates the config at `path`. Relative watch and target
// paths are resolved against the directory containing the config.
func Parse(path string) (Config, error) {
	config := Config{path: path}
	if err := parseConfig(path, &config); err != nil {
		return Config{}, errors.WithContext(err, "parse")
	}

	if len(config.Dirs) == 0 {
		return Config{}, errors.NewFriendlyError(
			"No directories to mirror are defined in %q.\n"+
				"Add at least one entry to the `dirs` field, for example:\n"+
				`  "dirs": [{"watch": "./src", "target": "./build"}]`, path)
	}

	relativeTo, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, errors.WithContext(err, "get config directory")
	}

	var cleanedDirs []Dir
	for i, dir := range config.Dirs {
		if dir.Watch == "" {
			return Config{}, errors.MissingFieldError{Field: fmt.Sprintf("dirs[%d].watch", i)}
		}
		if dir.Target == "" {
			return Config{}, errors.MissingFieldError{Field: fmt.Sprintf("dirs[%d].target", i)}
		}

		if dir.Watch, err = resolvePath(dir.Watch, relativeTo); err != nil {
			return Config{}, errors.WithContext(err, "watch path")
		}
		if dir.Target, err = resolvePath(dir.Target, relativeTo); err != nil {
			return Config{}, errors.WithContext(err, "target path")
		}

		if mirror.Contains(dir.Watch, dir.Target) {
			return Config{}, errors.NewFriendlyError(
				"The target %q is inside the directory it mirrors (%q).\n"+
					"This would copy the target into itself forever.",
				dir.Target, dir.Watch)
		}
		if mirror.Contains(dir.Target, dir.Watch) {
			return Config{}, errors.NewFriendlyError(
				"The directory %q is inside its own target (%q).\n"+
					"Mirroring it would overwrite the directory being watched.",
				dir.Watch, dir.Target)
		}
		cleanedDirs = append(cleanedDirs, dir)
	}
	config.Dirs = cleanedDirs
	warnOverlappingTargets(config.Dirs)

	if config.UpdateFreq < 0 {
		return Config{}, errors.NewFriendlyError(
			"updateFreq in %q must be positive, got %v", path, config.UpdateFreq)
	}
	if config.UpdateFreq == 0 {
		config.UpdateFreq = DefaultUpdateFreq
	}

	config.ignoreSet, err = mirror.NewIgnoreSet(config.Ignore, config.IgnorePatterns)
	if err != nil {
		return Config{}, errors.WithContext(err, "ignore")
	}
	return config, nil
}

// resolvePath expands ~'s and makes `path` absolute.
func resolvePath(path, relativeTo string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.WithContext(err, "expand homedir")
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(relativeTo, expanded)
	}
	return filepath.Clean(expanded), nil
}

// warnOverlappingTargets warns about targets that are nested inside each
// other. Their engines would write to the same files without coordinating.
func warnOverlappingTargets(dirs []Dir) {
	for i, a := range dirs {
		for _, b := range dirs[i+1:] {
			if mirror.Contains(a.Target, b.Target) || mirror.Contains(b.Target, a.Target) {
				log.WithFields(log.Fields{
					"target":      a.Target,
					"otherTarget": b.Target,
				}).Warn("Targets overlap. Changes to one may overwrite the other.")
			}
		}
	}
}
