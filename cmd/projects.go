/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/pkgscout/pkg/exitcode"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/report"
)

func newProjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects [dir]",
		Short: "List npm, yarn and pnpm projects and their workspaces",
		Long: `Walk dir (default: current directory) and list every JavaScript project root,
identified by its lockfile, together with the workspaces its package manager reports.

Directories ignored by git are skipped. Use --ignore builtin to read .gitignore
files without the git binary, or --ignore none to walk everything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProjects,
	}
	cmd.Flags().String("format", "table", "Output format (table|json|yaml)")
	addDiscoveryFlags(cmd)
	return cmd
}

func runProjects(cmd *cobra.Command, args []string) error {
	formatStr, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatStr)
	if err != nil {
		return exitWith(exitcode.UnsupportedFormat, err)
	}

	dir, err := resolveTarget(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}
	eco, err := newEcosystem(cfg, dir)
	if err != nil {
		return err
	}

	projects, err := eco.FindProjects(cmd.Context(), dir, cfg.Discovery.AllowNoLockfile)
	if err != nil {
		return fmt.Errorf("project discovery failed: %w", err)
	}
	logger.Debug("Discovery complete", logger.Int("projects", len(projects)))

	out, err := report.NewFormatter(format).FormatProjects(projects)
	if err != nil {
		return exitWith(exitcode.UnsupportedFormat, err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
