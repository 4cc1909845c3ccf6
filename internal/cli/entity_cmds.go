package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/pkg/entities"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

const typesHelp = "Entity types: connector, integration, operation, storage, identity, install, session"

func (a *app) key(id string) (types.EntityKey, error) {
	account, subscription, err := a.scope()
	if err != nil {
		return types.EntityKey{}, err
	}
	return types.EntityKey{AccountID: account, SubscriptionID: subscription, EntityID: id}, nil
}

func (a *app) getCmd() *cobra.Command {
	var includeExpired bool
	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Get an entity by id",
		Long:  "Get prints one entity as JSON.\n\n" + typesHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.key(args[1])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				e, err := f.Get(cmd.Context(), key, types.WithFilterExpired(!includeExpired))
				if err != nil {
					return err
				}
				return writeEntity(cmd.OutOrStdout(), e)
			})
		},
	}
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "return the entity even if it has expired")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		prefix string
		tags   []string
		limit  int
		next   string
	)
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List entities of one type",
		Long: "List prints one page of entities ordered by id. Pass the printed cursor\n" +
			"to --next for the following page.\n\n" + typesHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, subscription, err := a.scope()
			if err != nil {
				return err
			}
			filter, err := parseTags(tags)
			if err != nil {
				return err
			}
			q := types.ListQuery{
				AccountID:      account,
				SubscriptionID: subscription,
				IDPrefix:       prefix,
				Tags:           filter,
				Next:           next,
				Limit:          limit,
			}
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				page, err := f.List(cmd.Context(), q)
				if err != nil {
					return err
				}
				return a.writeList(cmd.OutOrStdout(), page)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only ids starting with this prefix")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "only entities carrying this key=value tag (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (default and maximum: list_limit)")
	cmd.Flags().StringVar(&next, "next", "", "cursor from the previous page")
	return cmd
}

// writeFlags are shared by put and update.
type writeFlags struct {
	tags      []string
	version   int64
	expiresIn time.Duration
}

func (w *writeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&w.tags, "tag", nil, "tag as key=value (repeatable)")
	cmd.Flags().Int64Var(&w.version, "version", 0, "expected current version (0 writes unconditionally)")
	cmd.Flags().DurationVar(&w.expiresIn, "expires-in", 0, "expire the entity after this duration")
}

// entity builds the entity to write from the command arguments.
func (w *writeFlags) entity(a *app, in io.Reader, args []string) (*types.Entity, error) {
	key, err := a.key(args[1])
	if err != nil {
		return nil, err
	}
	tags, err := parseTags(w.tags)
	if err != nil {
		return nil, err
	}
	data, err := readData(in, args[2:])
	if err != nil {
		return nil, err
	}
	e := &types.Entity{EntityKey: key, Data: data, Tags: tags, Version: w.version}
	if w.expiresIn > 0 {
		exp := time.Now().UTC().Add(w.expiresIn)
		e.Expires = &exp
	}
	return e, nil
}

// readData returns the JSON payload argument; "-" reads it from in.
func readData(in io.Reader, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := []byte(args[0])
	if args[0] == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return nil, systemError(fmt.Errorf("read stdin: %w", err))
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, types.ErrInvalidData
	}
	return json.RawMessage(raw), nil
}

func (a *app) putCmd() *cobra.Command {
	var (
		wf       writeFlags
		noUpsert bool
	)
	cmd := &cobra.Command{
		Use:   "put <type> <id> [json|-]",
		Short: "Create or replace an entity",
		Long: "Put creates an entity. By default an existing entity is replaced; with\n" +
			"--no-upsert an existing entity is a conflict.\n\n" + typesHelp,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := wf.entity(a, cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			var opts []types.Option
			if noUpsert {
				opts = append(opts, types.WithUpsert(false))
			}
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				out, err := f.Create(cmd.Context(), e, opts...)
				if err != nil {
					return err
				}
				return a.writeWritten(cmd.OutOrStdout(), out)
			})
		},
	}
	wf.register(cmd)
	cmd.Flags().BoolVar(&noUpsert, "no-upsert", false, "fail if the entity already exists")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var wf writeFlags
	cmd := &cobra.Command{
		Use:   "update <type> <id> [json|-]",
		Short: "Replace an existing entity",
		Long: "Update replaces the data, tags and expiry of an existing entity. With\n" +
			"--version the update fails if the entity has changed since.\n\n" + typesHelp,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := wf.entity(a, cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				out, err := f.Update(cmd.Context(), e)
				if err != nil {
					return err
				}
				return a.writeWritten(cmd.OutOrStdout(), out)
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var (
		recursive      bool
		includeExpired bool
	)
	cmd := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an entity",
		Long: "Delete removes an entity. With --recursive it removes every entity whose\n" +
			"id starts with <id> (storage and the generic types only).\n\n" + typesHelp,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.key(args[1])
			if err != nil {
				return err
			}
			opts := []types.Option{types.WithFilterExpired(!includeExpired)}
			if recursive {
				opts = append(opts, types.Recursive())
			}
			return a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				deleted, err := f.Delete(cmd.Context(), key, opts...)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("delete %s %s: %w", args[0], args[1], types.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&recursive, "recursive", false, "delete every id with this prefix")
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "also delete expired entities")
	return cmd
}
