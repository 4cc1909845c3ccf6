package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/fivequarters/q5-sub008/internal/jsonl"
	"github.com/fivequarters/q5-sub008/pkg/entities"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

func (a *app) exportCmd() *cobra.Command {
	var includeExpired bool
	cmd := &cobra.Command{
		Use:   "export <type> [file]",
		Short: "Write every entity of one type as JSON lines",
		Long: "Export pages through all entities of <type> in the current account and\n" +
			"subscription and writes one JSON document per line to [file], replacing\n" +
			"it atomically, or to stdout.\n\n" + typesHelp,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, subscription, err := a.scope()
			if err != nil {
				return err
			}
			var all []*types.Entity
			err = a.withStore(cmd.Context(), func(store *entities.Store) error {
				f, err := facade(store, args[0])
				if err != nil {
					return err
				}
				q := types.ListQuery{AccountID: account, SubscriptionID: subscription}
				for {
					page, err := f.List(cmd.Context(), q, types.WithFilterExpired(!includeExpired))
					if err != nil {
						return err
					}
					all = append(all, page.Items...)
					if page.Next == "" {
						return nil
					}
					q.Next = page.Next
				}
			})
			if err != nil {
				return err
			}

			records, err := jsonl.Marshal(all)
			if err != nil {
				return systemError(err)
			}
			if len(args) == 1 || args[1] == "-" {
				return jsonl.Write(cmd.OutOrStdout(), records)
			}
			if err := jsonl.WriteFile(args[1], records); err != nil {
				return systemError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entities to %s\n", len(records), args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "also export expired entities")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Create or replace entities from JSON lines",
		Long: "Import reads one entity per line, as written by export, and upserts them\n" +
			"all in a single transaction. Malformed lines are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				records []json.RawMessage
				skipped int
				err     error
			)
			if args[0] == "-" {
				records, skipped, err = jsonl.Read(cmd.InOrStdin())
			} else {
				records, skipped, err = jsonl.ReadFile(args[0])
			}
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return err
				}
				return systemError(err)
			}

			ents := make([]*types.Entity, 0, len(records))
			for i, rec := range records {
				var e types.Entity
				if err := json.Unmarshal(rec, &e); err != nil {
					return fmt.Errorf("record %d: %w: %v", i+1, types.ErrInvalidData, err)
				}
				if err := e.Validate(); err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				e.Version = 0
				ents = append(ents, &e)
			}

			err = a.withStore(cmd.Context(), func(store *entities.Store) error {
				return store.RunInTransaction(cmd.Context(), func(ctx context.Context, tx *entities.Tx) error {
					for _, e := range ents {
						f, err := tx.Entities(e.EntityType)
						if err != nil {
							return err
						}
						if _, err := f.Create(ctx, e, types.WithUpsert(true)); err != nil {
							return err
						}
					}
					return nil
				})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities", len(ents))
			if skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d malformed lines skipped)", skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
