// Command proact serves PrOACT decision cycles to agents over MCP and
// offers maintenance commands for the cycle store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/expressions"
	"github.com/rendis/proact/internal/logging"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/internal/validation"
)

const annotationSkipConfig = "proact/skip-config"

// App carries configuration and shared dependencies for every command.
type App struct {
	Config Config
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer

	viper   *viper.Viper
	cfgFile string
}

// ExitError signals a non-zero exit code without printing anything more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func newApp(out, errOut io.Writer) *App {
	return &App{Out: out, Err: errOut, viper: viper.New()}
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "proact",
		Short:         "PrOACT decision cycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationSkipConfig] == "true" {
				return nil
			}
			return app.init()
		},
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "config file (default ~/.proact/settings.yaml)")
	flags.String("db", "", "database path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	_ = app.viper.BindPFlag("db_path", flags.Lookup("db"))
	_ = app.viper.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newServeCommand(app),
		newMigrateCommand(app),
		newStatusCommand(app),
		newSweepCommand(app),
		newVersionCommand(app),
	)
	return root
}

func (a *App) init() error {
	cfg, err := loadConfig(a.viper, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(a.Err, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = logger
	slog.SetDefault(logger)
	return nil
}

// openStore opens and migrates the configured database.
func (a *App) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if dir := dbDir(a.Config.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(a.Config.dsn())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// newService builds the cycle service with the configured policies.
func (a *App) newService(st store.Store, cfg engine.Config) (engine.Service, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	policies, err := validation.LoadPolicies(a.Config.PoliciesPath, cel)
	if err != nil {
		return nil, err
	}
	if policies.Len() > 0 {
		cfg.Policies = policies
		a.Logger.Info("completion policies loaded", slog.Int("count", policies.Len()))
	}
	cfg.Logger = a.Logger
	return engine.NewService(st, cfg)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	app := newApp(out, errOut)
	root := newRootCommand(app)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
