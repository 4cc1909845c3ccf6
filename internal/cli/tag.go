package cli

import (
	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/pkg/entities"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

func (a *app) tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Read and change entity tags without touching data",
	}
	cmd.AddCommand(a.tagGetCmd(), a.tagSetCmd(), a.tagDeleteCmd())
	return cmd
}

// tagOp runs fn against the façade and key named by the first two args and
// prints the resulting tags.
func (a *app) tagOp(cmd *cobra.Command, args []string, fn func(f *entities.Entities, key types.EntityKey) (*types.TagsResult, error)) error {
	key, err := a.key(args[1])
	if err != nil {
		return err
	}
	return a.withStore(cmd.Context(), func(store *entities.Store) error {
		f, err := facade(store, args[0])
		if err != nil {
			return err
		}
		res, err := fn(f, key)
		if err != nil {
			return err
		}
		return a.writeTags(cmd.OutOrStdout(), res)
	})
}

func (a *app) tagGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Print the tags and version of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.tagOp(cmd, args, func(f *entities.Entities, key types.EntityKey) (*types.TagsResult, error) {
				return f.GetTags(cmd.Context(), key)
			})
		},
	}
}

func (a *app) tagSetCmd() *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "set <type> <id> <key> <value>",
		Short: "Set one tag",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.tagOp(cmd, args, func(f *entities.Entities, key types.EntityKey) (*types.TagsResult, error) {
				return f.SetTag(cmd.Context(), key, args[2], args[3], version)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "expected current version (0 writes unconditionally)")
	return cmd
}

func (a *app) tagDeleteCmd() *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "delete <type> <id> <key>",
		Short: "Remove one tag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.tagOp(cmd, args, func(f *entities.Entities, key types.EntityKey) (*types.TagsResult, error) {
				return f.DeleteTag(cmd.Context(), key, args[2], version)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "expected current version (0 writes unconditionally)")
	return cmd
}
