package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/supervisor"
)

// New creates a new `run` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Mirror the configured directories until interrupted.",
		Long: "Copy each watched directory into its target, and then keep\n" +
			"copying changes as they happen. Stops on SIGINT or SIGTERM.",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := run(util.ConfigPath(cmd)); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(configPath string) error {
	cfg, err := util.ParseConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Run(ctx, cfg); err != nil {
		return errors.WithContext(err, "mirror")
	}
	return nil
}
