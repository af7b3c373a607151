package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/datastar/internal/config"
	dserrors "github.com/vango-dev/datastar/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	noColor    bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		dserrors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "datastar",
		Short: "Server for Datastar reactive applications",
		Long: `datastar serves hypermedia applications driven by the Datastar client.

Responses are server-sent event streams that patch elements and signals.
Locked signals are sealed in the session so clients cannot change them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flags.noColor || os.Getenv("NO_COLOR") != "" {
				dserrors.DisableColors()
			}
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default datastar.{json,yaml} in the working directory)")
	rootCmd.PersistentFlags().StringVarP(&flags.logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored error output")

	rootCmd.AddCommand(
		serveCmd(flags),
		keygenCmd(),
		configCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

func (f *globalFlags) load() (*config.Config, error) {
	return config.Load(f.configPath)
}

func (f *globalFlags) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(f.logLevel))); err != nil {
		return nil, dserrors.Newf(dserrors.CategoryConfig, "invalid log level %q", f.logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
