/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/pkgscout/pkg/buildinfo"
	"github.com/fulmenhq/pkgscout/pkg/exitcode"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// newRunner builds the process runner used by every command. Tests replace it
// with a scripted runner.
var newRunner = func() runner.Runner { return runner.NewLocalRunner() }

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return exitcode.String(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// newRootCommand creates a fresh root command instance.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgscout",
		Short: "Find JavaScript projects and their outdated dependencies",
		Long: `pkgscout discovers npm, yarn and pnpm projects (including workspaces) and
reports direct dependencies that are behind the registry, with release dates and
deprecation flags.

Examples:
   pkgscout projects            # List projects under the current directory
   pkgscout outdated ./repo     # Report outdated dependencies
   pkgscout outdated --format markdown --output OUTDATED.md
   pkgscout version --json      # Show build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json-logs", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("pkgscout {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newProjectsCommand())
	cmd.AddCommand(newOutdatedCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

func init() {
	registerSubcommands(rootCmd)
}

// Execute runs the root command and exits with the code the command chose.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCodeFor(err)
		if code != exitcode.OutdatedFound {
			logger.Error("Command execution failed", logger.Err(err))
		}
		os.Exit(code)
	}
}

func exitCodeFor(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var execErr *runner.ExecError
	switch {
	case errors.As(err, &execErr):
		return exitcode.ExecError
	case errors.Is(err, context.DeadlineExceeded):
		return exitcode.TimeoutError
	default:
		return exitcode.GeneralError
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	noColor, _ := cmd.Flags().GetBool("no-color")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "pkgscout",
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(exitcode.ConfigError)
	}
}
