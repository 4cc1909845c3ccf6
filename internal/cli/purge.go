package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/pkg/entities"
)

func (a *app) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entities now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				n, err := store.PurgeExpired(cmd.Context())
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"purged": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entities\n", n)
				return nil
			})
		},
	}
}
