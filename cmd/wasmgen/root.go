package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/declsort"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// App carries the state shared by all commands.
type App struct {
	Config Config
	Log    *log.Logger

	// Debug is handed to the libraries when --verbose is set.
	Debug *zap.Logger

	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

func newApp(out, errOut io.Writer) *App {
	return &App{
		v:      viper.New(),
		out:    out,
		errOut: errOut,
		Log:    log.NewWithOptions(errOut, log.Options{Prefix: "wasmgen"}),
	}
}

// ExitError signals a non-zero exit code without calling os.Exit in RunE.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "wasmgen",
		Short: "Generate and maintain native runtime bindings",
		Long: `wasmgen generates Go bindings from WebAssembly runtime C headers.

Settings come from flags, WASMGEN_* environment variables and an optional
wasmgen.toml in the working directory, in that order of precedence.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ./wasmgen.toml)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("platform", "", "target triple, e.g. x86_64-linux (default: host)")

	root.AddCommand(newGenerateCommand(app))
	root.AddCommand(newSortCommand(app))
	root.AddCommand(newResolveCommand(app))

	root.SetOut(app.out)
	root.SetErr(app.errOut)
	return root
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// load reads configuration for the command being run and configures logging.
func (a *App) load(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, cmd.Flags())
	if err != nil {
		a.Log.Error("loading configuration", "err", err)
		return err
	}
	a.Config = cfg

	if cfg.Verbose {
		a.Log.SetLevel(log.DebugLevel)
		zl, err := zap.NewDevelopment()
		if err == nil {
			a.Debug = zl
			declsort.SetLogger(zl.Named("declsort"))
		}
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		a.Log.Debug("configuration loaded", "file", used)
	}
	return nil
}

func joinList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
