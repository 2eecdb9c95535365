/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/pkgscout/pkg/cooling"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/policy"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/exitcode"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/report"
	"github.com/fulmenhq/pkgscout/pkg/safeio"
)

// now is the report clock; tests pin it.
var now = time.Now

func newOutdatedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outdated [dir]",
		Short: "Report outdated direct dependencies",
		Long: `Discover projects under dir (default: current directory) and report every direct
dependency whose installed version is behind the latest release, with the publish date
and deprecation flag of both versions.

A project whose package manager fails is reported with its error and the scan continues.

Exit codes:
  0   scan completed
  3   the policy denied one or more dependencies
  6   at least one project could not be scanned
  10  outdated dependencies found (with --fail-on-outdated)`,
		Args: cobra.MaximumNArgs(1),
		RunE: runOutdated,
	}
	cmd.Flags().String("format", "table", "Output format (table|json|yaml|markdown|xml)")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().String("policy", "", "Policy file (.yaml or .rego) evaluated against the results")
	cmd.Flags().Bool("fail-on-outdated", false, "Exit with a non-zero code when outdated dependencies are found")
	cmd.Flags().String("metadata-source", "", "Where release dates come from (cli|registry)")
	addDiscoveryFlags(cmd)
	return cmd
}

func runOutdated(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	formatStr, _ := flags.GetString("format")
	format, err := report.ParseFormat(formatStr)
	if err != nil {
		return exitWith(exitcode.UnsupportedFormat, err)
	}
	failOnOutdated, _ := flags.GetBool("fail-on-outdated")
	outputPath, _ := flags.GetString("output")

	dir, err := resolveTarget(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}

	// the policy is loaded before scanning so a broken file fails fast
	var engine *policy.OPAEngine
	if cfg.Policy.Path != "" {
		engine = policy.NewOPAEngine()
		if err := engine.LoadPolicy(cfg.Policy.Path); err != nil {
			return exitWith(exitcode.ConfigError, err)
		}
		logger.Debug("Loaded policy", logger.String("path", cfg.Policy.Path))
	}

	eco, err := newEcosystem(cfg, dir)
	if err != nil {
		return err
	}
	projects, err := eco.FindProjects(ctx, dir, cfg.Discovery.AllowNoLockfile)
	if err != nil {
		return fmt.Errorf("project discovery failed: %w", err)
	}
	logger.Info("Scanning projects", logger.Int("projects", len(projects)), logger.String("dir", dir))

	reports, err := eco.Scan(ctx, projects)
	if err != nil {
		return err
	}

	result := &report.Report{
		GeneratedAt: now().UTC(),
		Root:        dir,
		Projects:    reports,
	}

	coolingCfg := cfg.Cooling
	if engine != nil && engine.Cooling() != nil {
		coolingCfg = *engine.Cooling()
	}
	if coolingCfg.Enabled {
		findings, err := cooling.NewChecker(coolingCfg).WithClock(now).CheckReports(reports)
		if err != nil {
			return err
		}
		result.Cooling = findings
	}

	if engine != nil {
		denials, err := engine.Denials(ctx, policy.BuildInput(reports, now()))
		if err != nil {
			return exitWith(exitcode.ConfigError, fmt.Errorf("policy evaluation failed: %w", err))
		}
		result.PolicyDenials = denials
	}

	if err := writeReport(cmd, format, outputPath, result); err != nil {
		return err
	}

	return outdatedExit(result, failOnOutdated)
}

func writeReport(cmd *cobra.Command, format report.OutputFormat, outputPath string, r *report.Report) error {
	formatter := report.NewFormatter(format)
	if outputPath == "" {
		return formatter.WriteReport(cmd.OutOrStdout(), r)
	}

	out, err := formatter.FormatReport(r)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(outputPath)
	if err != nil {
		return exitWith(exitcode.FileSystemError, err)
	}
	if err := safeio.WriteFilePreservePerms(path, []byte(out)); err != nil {
		return exitWith(exitcode.FileSystemError, fmt.Errorf("failed to write report: %w", err))
	}
	logger.Info("Report written", logger.String("path", path), logger.String("format", string(format)))
	return nil
}

// outdatedExit picks the exit status: policy denials first, then scan
// failures, then outdated dependencies when requested.
func outdatedExit(r *report.Report, failOnOutdated bool) error {
	if n := len(r.PolicyDenials); n > 0 {
		return exitWith(exitcode.ValidationError, fmt.Errorf("policy denied %d dependencies", n))
	}
	if failed := r.FailedProjects(); len(failed) > 0 {
		return exitWith(exitcode.ExecError, fmt.Errorf("%d of %d projects could not be scanned (first: %s)",
			len(failed), len(r.Projects), projectLabel(failed[0])))
	}
	if n := r.OutdatedCount(); failOnOutdated && n > 0 {
		return exitWith(exitcode.OutdatedFound, fmt.Errorf("%d outdated dependencies found", n))
	}
	return nil
}

func projectLabel(p types.ProjectReport) string {
	if p.Project.Name != "" {
		return p.Project.Name
	}
	return p.Project.Path
}

