package cmd

import (
	"os"

	"github.com/spf13/cobra"

	runCmd "github.com/sidkik/dirmirror/cmd/run"
	syncCmd "github.com/sidkik/dirmirror/cmd/sync"
	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/cmd/verify"
	"github.com/sidkik/dirmirror/cmd/version"
	"github.com/sidkik/dirmirror/pkg/config"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DIRMIRROR_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	var logOpts util.LogOptions

	run := runCmd.New()
	rootCmd := &cobra.Command{
		Use:   "dirmirror",
		Short: "Mirror changes from watched directories into target directories.",
		Long: "Copy every watched directory into its target, then keep the\n" +
			"target up to date as files are created, modified, moved and\n" +
			"deleted. With no subcommand, dirmirror behaves like `dirmirror run`.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if os.Getenv(verboseLogKey) == "true" {
				logOpts.Verbose = true
			}
			util.SetupLogging(logOpts)
		},
		Run: run.Run,
	}

	rootCmd.PersistentFlags().StringP(util.ConfigFlag, "c", config.DefaultPath,
		"The path to the mirroring config")
	rootCmd.PersistentFlags().BoolVarP(&logOpts.Verbose, "verbose", "v", false,
		"Log debug messages")
	rootCmd.PersistentFlags().StringVar(&logOpts.File, "log-file", "",
		"Log to this file instead of stderr. The file is rotated as it grows")

	rootCmd.AddCommand(
		run,
		syncCmd.New(),
		verify.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
