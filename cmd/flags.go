// Package cmd provides the zapload CLI commands.
// This file contains reusable helpers for configuration loading with CLI flag precedence.
package cmd

import (
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagLoader provides methods for loading configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it takes precedence over config file and env vars.
// Otherwise viper's priority applies (env > config file), and the flag default
// is used when viper has no value.
type FlagLoader struct {
	cmd *cobra.Command
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

// fromFlag reports whether the value should be read from the flag set.
func (f *FlagLoader) fromFlag(flagName string) bool {
	flag := f.cmd.Flags().Lookup(flagName)
	if flag == nil {
		return false
	}
	return flag.Changed || !viper.IsSet(flagName)
}

func (f *FlagLoader) flags() *pflag.FlagSet {
	return f.cmd.Flags()
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.fromFlag(flagName) {
		val, _ := f.flags().GetString(flagName)
		return val
	}
	return viper.GetString(flagName)
}

// Int returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Int(flagName string) int {
	if f.fromFlag(flagName) {
		val, _ := f.flags().GetInt(flagName)
		return val
	}
	return viper.GetInt(flagName)
}

// Float64 returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Float64(flagName string) float64 {
	if f.fromFlag(flagName) {
		val, _ := f.flags().GetFloat64(flagName)
		return val
	}
	return viper.GetFloat64(flagName)
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.fromFlag(flagName) {
		val, _ := f.flags().GetBool(flagName)
		return val
	}
	return viper.GetBool(flagName)
}

// Duration returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Duration(flagName string) time.Duration {
	if f.fromFlag(flagName) {
		val, _ := f.flags().GetDuration(flagName)
		return val
	}
	return viper.GetDuration(flagName)
}

// Size parses a human-readable size ("5MiB", "64MB", "1048576").
func (f *FlagLoader) Size(flagName string) (int64, error) {
	n, err := utils.ParseSize(f.String(flagName))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", flagName, err)
	}
	return n, nil
}
