package sync

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy the configured directories once, without watching.",
		Long: "Copy every watched directory into its target and exit. Targets\n" +
			"with `prune` set also have their stale files removed.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := util.ParseConfig(util.ConfigPath(cmd))
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := syncAll(cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func syncAll(cfg config.Config) error {
	specs := cfg.WatchSpecs()
	failed := make([]bool, len(specs))

	var group errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		group.Go(func() error {
			engine := mirror.NewEngine(spec, cfg.IgnoreSet(), log.StandardLogger())
			if err := engine.Bootstrap(); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"watch":  spec.WatchRoot,
					"target": spec.TargetRoot,
				}).Error("Copy failed")
				failed[i] = true
				return nil
			}
			fmt.Printf("Copied %s to %s\n", spec.WatchRoot, spec.TargetRoot)
			return nil
		})
	}
	// The goroutines never return errors.
	_ = group.Wait()

	var numFailed int
	for _, f := range failed {
		if f {
			numFailed++
		}
	}
	if numFailed != 0 {
		return errors.NewFriendlyError("%d of %d directories failed to copy. "+
			"Run with --verbose for more information.", numFailed, len(specs))
	}
	return nil
}
