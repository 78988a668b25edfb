// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build-time variables (set via -ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("ZapLoad {{.Version}}\n")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, line := range versionLines() {
			fmt.Fprintln(out, line)
		}
	},
}

func versionLines() []string {
	return []string{
		fmt.Sprintf("ZapLoad %s", Version),
		fmt.Sprintf("  Git commit: %s", GitCommit),
		fmt.Sprintf("  Built:      %s", BuildDate),
		fmt.Sprintf("  Go version: %s", runtime.Version()),
		fmt.Sprintf("  OS/Arch:    %s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
