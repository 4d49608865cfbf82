package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/itsmostafa/replbridge/internal/version"
	"github.com/spf13/cobra"
)

var configPath string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "replbridge",
	Short: "Run scripts that call host tools in a sandboxed interpreter",
	Long: `replbridge runs code in a sandboxed interpreter (a Python-like dialect,
JavaScript or Tengo) over a series of turns. Scripts call host tools as plain
functions, keep values between turns with save() and clear(), and end a turn
with a structured answer through submit().`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("replbridge %s\n", version.String()))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $REPLBRIDGE_CONFIG or ./replbridge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
}

// exitError ends the process with code after its message was already
// shown.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
