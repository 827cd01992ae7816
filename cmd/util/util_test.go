package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
)

func TestHandleFatalError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		expOutput string
	}{
		{
			name:      "friendly error",
			err:       errors.WithContext(errors.NewFriendlyError("No config found at %s. Quitting...", "config.json"), "run"),
			expOutput: "No config found at config.json. Quitting...\n",
		},
		{
			name:      "plain error",
			err:       errors.WithContext(errors.New("boom"), "start"),
			expOutput: "start: boom\n",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			var exitCode int
			stderr = &output
			exit = func(code int) { exitCode = code }
			defer func() {
				stderr = os.Stderr
				exit = os.Exit
			}()

			HandleFatalError(test.err)
			assert.Equal(t, 1, exitCode)
			assert.Equal(t, test.expOutput, output.String())
		})
	}
}

func TestParseConfigMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := ParseConfig(path)
	assert.Equal(t, errors.NewFriendlyError("No config found at %s. Quitting...", path), err)
}

func TestParseConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"dirs": [{"watch": "src", "target": "dst"}], "ignore": [".git"]}`), 0644))

	cfg, err := ParseConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Dirs, 1)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Dirs[0].Watch)
	assert.Equal(t, filepath.Join(dir, "dst"), cfg.Dirs[0].Target)
}

func TestSetupLogging(t *testing.T) {
	defer func() {
		log.SetLevel(log.InfoLevel)
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
	}()

	path := filepath.Join(t.TempDir(), "dirmirror.log")
	SetupLogging(LogOptions{Verbose: true, File: path})
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.WithField("path", "/src/a.txt").Info("Copied file")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `msg="Copied file" path=/src/a.txt`)
}

func TestHandlePanic(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer HandlePanic()
		panic("boom")
	})
}

func TestConfigPath(t *testing.T) {
	root := &cobra.Command{Use: "dirmirror"}
	root.PersistentFlags().String(ConfigFlag, config.DefaultPath, "")
	child := &cobra.Command{Use: "sync"}
	root.AddCommand(child)

	assert.Equal(t, config.DefaultPath, ConfigPath(child))

	require.NoError(t, root.PersistentFlags().Set(ConfigFlag, "/etc/dirmirror.yaml"))
	assert.Equal(t, "/etc/dirmirror.yaml", ConfigPath(child))

	assert.Equal(t, config.DefaultPath, ConfigPath(&cobra.Command{Use: "orphan"}))
}
