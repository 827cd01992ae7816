package verify

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

// Mocked out for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `verify` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check whether the targets match their watched directories.",
		Long: "Hash every file in each watched directory and its target, and\n" +
			"report files that are missing, changed, or only in the target.\n" +
			"Exits with a non-zero status if any target has drifted.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := util.ParseConfig(util.ConfigPath(cmd))
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := verifyAll(cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func verifyAll(cfg config.Config) error {
	var drifted int
	for _, spec := range cfg.WatchSpecs() {
		drift, err := mirror.Verify(spec, cfg.IgnoreSet())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("verify %s", spec.WatchRoot))
		}

		if drift.Empty() {
			fmt.Fprintf(stdout, "%s is in sync with %s\n", spec.TargetRoot, spec.WatchRoot)
			continue
		}

		drifted++
		fmt.Fprintf(stdout, "%s has drifted from %s:\n", spec.TargetRoot, spec.WatchRoot)
		printPaths("missing", drift.Missing)
		printPaths("changed", drift.Changed)
		printPaths("extra", drift.Extra)
	}

	if drifted != 0 {
		return errors.NewFriendlyError("%d target(s) are out of sync", drifted)
	}
	return nil
}

func printPaths(label string, paths []string) {
	for _, path := range paths {
		fmt.Fprintf(stdout, "  %-8s %s\n", label+":", path)
	}
}
