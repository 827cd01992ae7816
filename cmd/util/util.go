package util

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
)

// Mocked out for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// HandleFatalError prints the error and exits. Errors with friendly messages
// are printed as-is. The full error is only logged at the debug level.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs panics before re-panicking so that they end up in the log
// file as well as on the terminal.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("Unexpected panic")
		panic(r)
	}
}

// ConfigFlag is the name of the persistent flag that sets the config path.
const ConfigFlag = "config"

// ConfigPath returns the config path set on the command line, or the default
// path if the flag isn't defined.
func ConfigPath(cmd *cobra.Command) string {
	if flag := cmd.Flag(ConfigFlag); flag != nil {
		return flag.Value.String()
	}
	return config.DefaultPath
}

// ParseConfig parses the config at `path`, turning a missing config into a
// friendly error.
func ParseConfig(path string) (config.Config, error) {
	cfg, err := config.Parse(path)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return config.Config{}, errors.NewFriendlyError(
				"No config found at %s. Quitting...", path)
		}
		return config.Config{}, err
	}
	return cfg, nil
}

// LogOptions configures SetupLogging.
type LogOptions struct {
	Verbose bool

	// File is the path to log to. Logs go to stderr if it's empty.
	File string

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int
}

// SetupLogging configures the standard logger.
func SetupLogging(opts LogOptions) {
	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if opts.File == "" {
		return
	}

	log.SetFormatter(&log.TextFormatter{
		// Show the full timestamp rather than the time elapsed since
		// dirmirror started.
		FullTimestamp: true,

		// Disable colors since we'll be logging to a file.
		DisableColors: true,
	})

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: 3,
	})
}
