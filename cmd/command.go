// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapload",
	Short: "ZapLoad - chunked multipart uploads",
	Long: `ZapLoad splits large payloads into parts, uploads them to an
S3-compatible object store and assembles them into a single object.
Run "zapload serve" for the HTTP API, or use the upload commands as a client.`,
	PersistentPreRun: initializeLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	rootCmd.PersistentFlags().String("log_level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initializeLogging(cmd *cobra.Command, args []string) {
	if level, _ := cmd.Flags().GetString("log_level"); level != "" {
		logger.SetLevelString(level)
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
