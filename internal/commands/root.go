// Package commands implements the salesctl command line. Every command
// works against the same store and service the HTTP server uses.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/logging"
	"github.com/JonMunkholm/salesboard/internal/store"
)

// app carries the global flags and the loaded configuration.
type app struct {
	envFile     string
	driver      string
	databaseURL string
	sqlitePath  string

	cfg *config.Config
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "salesctl",
		Short: "Import sales exports and query revenue from the command line",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load if present")
	flags.StringVar(&a.driver, "driver", "", "database driver: postgres or sqlite (overrides DB_DRIVER)")
	flags.StringVar(&a.databaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	flags.StringVar(&a.sqlitePath, "sqlite-path", "", "SQLite database file (overrides SQLITE_PATH)")

	rootCmd.AddCommand(
		newImportCommand(a),
		newChartCommand(a),
		newEntryCommand(a),
		newHistoryCommand(a),
		newStatsCommand(a),
		newMigrateCommand(a),
	)

	return rootCmd
}

// load reads the dotenv file and environment, then applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	overrides := map[string]string{}
	if a.driver != "" {
		overrides["DB_DRIVER"] = a.driver
	}
	if a.databaseURL != "" {
		overrides["DATABASE_URL"] = a.databaseURL
	}
	if a.sqlitePath != "" {
		overrides["SQLITE_PATH"] = a.sqlitePath
	}

	cfg, err := config.LoadFrom(func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	// Logs go to stderr so command output stays pipeable.
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	return nil
}

// withService opens the configured store for the duration of fn.
func (a *app) withService(cmd *cobra.Command, fn func(*core.Service) error) error {
	st, err := store.Open(cmd.Context(), a.cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	return fn(core.NewService(st, a.cfg))
}
