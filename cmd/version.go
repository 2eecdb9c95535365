/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/pkgscout/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show pkgscout build information",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	info := buildinfo.Current()
	out := cmd.OutOrStdout()

	if jsonOutput {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, _ = fmt.Fprintf(out, "pkgscout %s\n", info.Version)
	if info.ModuleVersion != "" && info.ModuleVersion != "(devel)" {
		_, _ = fmt.Fprintf(out, "Module: %s\n", info.ModuleVersion)
	}
	_, _ = fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
	_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", info.Platform, info.Arch)
	return nil
}
