package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/pkg/entities"
)

const modulePath = "github.com/fivequarters/q5-sub008"

// revision is set at build time with -ldflags "-X .../internal/cli.revision=...".
var revision string

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the entityctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "entityctl v%s\nmodule: %s\n", entities.Version, modulePath)
			if revision != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "revision: %s\n", revision)
			}
			return nil
		},
	}
}
