// Package cli is the diagctl command line: the dashboard for one operator,
// with its session kept in a local SQLite file between invocations.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"diagdesk/internal/app"
	"diagdesk/internal/config"
	"diagdesk/internal/logging"
	"diagdesk/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultWorkspace = "cli"

// env is the state shared by every subcommand of one invocation.
type env struct {
	configPath string
	dbPath     string
	workspace  string
	verbose    bool

	rt        *app.Runtime
	logCloser io.Closer
	logger    *zerolog.Logger
}

// Execute runs diagctl with the process arguments.
func Execute(ctx context.Context) error {
	root, e := newRootCommand()
	defer e.close()
	return root.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, *env) {
	e := &env{}
	root := &cobra.Command{
		Use:           "diagctl",
		Short:         "Diagnostics clinic admin dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd)
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", configPath, "Path to the YAML config")
	root.PersistentFlags().StringVar(&e.dbPath, "db", "", "Local storage file (defaults to storage.sqlite_path or ~/.diagdesk/local.db)")
	root.PersistentFlags().StringVar(&e.workspace, "workspace", defaultWorkspace, "Session slot inside the local storage")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(
		e.loginCmd(),
		e.logoutCmd(),
		e.whoamiCmd(),
		e.guestsCmd(),
		e.guestCmd(),
		e.itemsCmd(),
		e.centersCmd(),
		e.slotsCmd(),
		e.bookCmd(),
		e.rescheduleCmd(),
		e.bookingStatusCmd(),
		e.statsCmd(),
		e.reportsCmd(),
		e.exportCmd(),
		e.monthlyCmd(),
	)
	return root, e
}

func (e *env) open(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}

	// A command line run is short lived: memory storage would forget the
	// session, so it is swapped for a local file.
	if cfg.Storage.Driver == "memory" || e.dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.SQLitePath = e.sqlitePath(cfg)
	}

	if e.verbose {
		logger, closer, err := logging.New(config.LoggingConfig{Level: cfg.Logging.Level, Format: "console", Output: "stderr"}, cfg.App)
		if err != nil {
			return err
		}
		e.logger, e.logCloser = logger, closer
	} else {
		nop := zerolog.Nop()
		e.logger = &nop
	}

	rt, err := app.Build(cmd.Context(), cfg, e.logger)
	if err != nil {
		return err
	}
	e.rt = rt
	return nil
}

func (e *env) sqlitePath(cfg *config.Config) string {
	if e.dbPath != "" {
		return e.dbPath
	}
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".diagdesk", "local.db")
	}
	return filepath.Join(".diagdesk", "local.db")
}

func (e *env) close() {
	if e.rt != nil {
		e.rt.Close()
		e.rt = nil
	}
	if e.logCloser != nil {
		_ = e.logCloser.Close()
		e.logCloser = nil
	}
}

// dashboard restores the signed-in dashboard of this workspace.
func (e *env) dashboard(cmd *cobra.Command) (*service.Dashboard, error) {
	if e.rt == nil {
		return nil, errors.New("runtime is not initialized")
	}
	return e.rt.Workspaces.Get(cmd.Context(), e.workspace)
}
