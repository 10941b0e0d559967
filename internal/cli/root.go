// Package cli is the administrative command surface: record lookup and
// search, live watch, and autonumber counter control over one SQLite
// database.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewbase/crewbase/internal/model"
	"github.com/crewbase/crewbase/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	DBPath     string
	ConfigPath string

	config Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the crewbase CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crewbase",
		Short: "Staffing records administration",
		Long:  "Inspect and administer a crewbase staffing database: fetch and search records, follow live changes, and control autonumber counters.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			opts.config = DefaultConfig()
			if opts.ConfigPath != "" {
				cfg, err := LoadConfig(opts.ConfigPath)
				if err != nil {
					return err
				}
				opts.config = cfg
			}
			if opts.DBPath != "" {
				opts.config.DB = opts.DBPath
			}

			level, err := opts.config.SlogLevel()
			if err != nil {
				return err
			}
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewAutonumberCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openApp opens the configured database and assembles the application.
// The returned closer must run before process exit so WAL state is
// checkpointed.
func openApp(opts *RootOptions) (*model.App, func(), error) {
	if _, err := os.Stat(opts.config.DB); err != nil {
		// Autonumber commands may legitimately create a fresh database;
		// reads against a missing one are a command error. Callers that
		// allow creation pass through openAppCreate.
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("database %s not found", opts.config.DB), err)
	}
	return openAppCreate(opts)
}

func openAppCreate(opts *RootOptions) (*model.App, func(), error) {
	s, err := store.Open(opts.config.DB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	app, err := model.NewApp(s, opts.config.Author)
	if err != nil {
		s.Close()
		return nil, nil, WrapExitError(ExitCommandError, "assemble application", err)
	}
	closer := func() {
		app.Roller.Wait()
		if err := s.Close(); err != nil {
			slog.Error("close database", "error", err)
		}
	}
	return app, closer, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
