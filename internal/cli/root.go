// Package cli implements the entityctl command-line interface: an operator
// tool over the entity store façades.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivequarters/q5-sub008/internal/connection"
	"github.com/fivequarters/q5-sub008/internal/paths"
	"github.com/fivequarters/q5-sub008/pkg/entities"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir    string
	dataDir      string
	jsonMode     bool
	account      string
	subscription string
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags  rootFlags
	v      *viper.Viper
	stderr io.Writer
}

// NewRootCmd creates the top-level "entityctl" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "entityctl",
		Short: "Inspect and edit entities in the entity store",
		Long: "entityctl reads and writes connectors, integrations, operations, storage\n" +
			"items and the other entity types of the entity store.",
		Version:       entities.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := paths.ResolveConfigDir(a.flags.configDir)
			if err != nil {
				return systemError(fmt.Errorf("resolve config dir: %w", err))
			}
			v, err := loadConfig(configDir)
			if err != nil {
				return systemError(err)
			}
			pf := cmd.Root().PersistentFlags()
			if err := v.BindPFlag(cfgKeyAccount, pf.Lookup("account")); err != nil {
				return systemError(err)
			}
			if err := v.BindPFlag(cfgKeySubscription, pf.Lookup("subscription")); err != nil {
				return systemError(err)
			}
			a.v = v
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "SQLite data directory (default: platform data dir)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.account, "account", "", "account id (env ENTITYSTORE_ACCOUNT)")
	pf.StringVar(&a.flags.subscription, "subscription", "", "subscription id (env ENTITYSTORE_SUBSCRIPTION)")

	root.AddCommand(
		a.versionCmd(),
		a.initCmd(),
		a.getCmd(),
		a.listCmd(),
		a.putCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.tagCmd(),
		a.purgeCmd(),
		a.exportCmd(),
		a.importCmd(),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes entityctl with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	a := &app{stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}

// sysError marks a failure of the environment rather than of the request.
type sysError struct{ err error }

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

func systemError(err error) error {
	if err == nil {
		return nil
	}
	return &sysError{err: err}
}

// exitCode maps err onto an exit code. Database, configuration and marked
// system failures exit 2; everything else, including usage errors, exits 1.
func exitCode(err error) int {
	var se *sysError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &se),
		errors.Is(err, types.ErrDatabase),
		errors.Is(err, types.ErrConfiguration),
		errors.Is(err, types.ErrTransactionNotFound):
		return exitSysError
	default:
		return exitUserError
	}
}

// withStore attaches a Store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(*entities.Store) error) (err error) {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	logger := connection.NewLogger("entityctl", cfg.LogLevel, cfg.LogJSON, a.stderr)

	store := entities.NewStore(entities.WithLogger(logger))
	if err := store.Attach(ctx, cfg); err != nil {
		if isConfigInvalid(err) {
			return err
		}
		return systemError(fmt.Errorf("attach store: %w", err))
	}
	defer func() {
		if derr := store.Detach(); derr != nil && err == nil {
			err = systemError(derr)
		}
	}()
	return fn(store)
}

// facade returns the façade for the entity type named by arg.
func facade(store *entities.Store, arg string) (*entities.Entities, error) {
	t, err := types.ParseEntityType(arg)
	if err != nil {
		return nil, fmt.Errorf("%w %q", err, arg)
	}
	return store.Entities(t)
}
