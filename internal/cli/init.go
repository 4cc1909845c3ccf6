package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/internal/paths"
	"github.com/fivequarters/q5-sub008/pkg/entities"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration and create the entity table",
		Long: "Init creates the configuration directory and a config.yaml for a local\n" +
			"SQLite store if none exists, then applies the schema to the configured\n" +
			"backend. Running it again is harmless.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := paths.ResolveConfigDir(a.flags.configDir)
			if err != nil {
				return systemError(fmt.Errorf("resolve config dir: %w", err))
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return systemError(fmt.Errorf("create config directory: %w", err))
			}

			configPath := paths.ConfigFile(configDir)
			written, err := writeConfigIfMissing(configPath, a.flags.dataDir)
			if err != nil {
				return systemError(fmt.Errorf("write config: %w", err))
			}
			if written {
				if a.v, err = loadConfig(configDir); err != nil {
					return systemError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			}

			err = a.withStore(cmd.Context(), func(store *entities.Store) error {
				if err := store.EnsureSchema(cmd.Context()); err != nil {
					return systemError(err)
				}
				cfg := store.Config()
				if cfg.Backend == types.BackendSQLite {
					fmt.Fprintf(cmd.OutOrStdout(), "data directory: %s\n", cfg.DataDir)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "entity store initialized")
			return nil
		},
	}
}
