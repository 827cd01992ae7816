package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirmirror/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of dirmirror.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("dirmirror version: %s\n", version.Version)
		},
	}
}
