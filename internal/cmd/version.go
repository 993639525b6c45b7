package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// No config needed to print a version.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "contentctl %s\n", versionInfo.Version)
		_, _ = fmt.Fprintf(out, "  commit:     %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(out, "  built:      %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(out, "  go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
