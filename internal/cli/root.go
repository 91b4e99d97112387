package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/closuretree/internal/config"
	"github.com/roach88/closuretree/internal/engine"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/store"
)

const labelAttribute = nodes.LabelColumn

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Driver     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the closuretree CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "closuretree",
		Short: "closuretree - ordered hierarchies on a closure table",
		Long: `Inspect and edit an ordered hierarchy stored as a closure table.

Settings come from --config (TOML), then CLOSURETREE_* environment
variables, then the --db and --driver flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to TOML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database DSN (SQLite path or PostgreSQL URL)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (sqlite3|pgx)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// session is an open engine plus the output settings of one command run.
type session struct {
	cfg    *config.Config
	store  *store.Store
	repo   *nodes.Repository
	engine *engine.Engine
	out    *OutputFormatter
}

// loadConfig resolves settings: config file, environment, then flags.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Storage.DSN = o.Database
	}
	if o.Driver != "" {
		cfg.Storage.Driver = o.Driver
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// openSession opens the configured database, ensures both tables exist
// and builds an engine over them.
func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	st, err := store.Open(ctx, cfg.StoreConfig(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	repo, err := nodes.NewRepository(st.Schema())
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid node table", err)
	}
	if err := repo.CreateTable(ctx, st); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create node table", err)
	}
	eng, err := engine.New(st, repo, engine.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "session opened",
		slog.String("driver", cfg.Storage.Driver),
		slog.String("node_table", cfg.Tables.NodeTable),
		slog.String("closure_table", cfg.Tables.ClosureTable))

	return &session{
		cfg:    cfg,
		store:  st,
		repo:   repo,
		engine: eng,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// withSession runs fn against a freshly opened session and closes it.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
