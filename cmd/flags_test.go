// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/env"
	"github.com/LeeDigitalWorks/zapload/pkg/inflight"
	"github.com/LeeDigitalWorks/zapload/pkg/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests share viper's global state and cannot run in parallel.

func newServeCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "serve"}
	addServerFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func setEnv(t *testing.T, value string) {
	t.Helper()
	old := env.Env
	env.Env = value
	t.Cleanup(func() { env.Env = old })
}

func TestFlagLoaderPrecedence(t *testing.T) {
	cmd := newServeCommand(t, "--http_port", "9000")
	viper.Set("http_port", 7000)
	viper.Set("debug_port", 7001)

	f := NewFlagLoader(cmd)
	assert.Equal(t, 9000, f.Int("http_port"), "explicit flag wins over config")
	assert.Equal(t, 7001, f.Int("debug_port"), "config wins over flag default")
	assert.Equal(t, 30*time.Second, f.Duration("shutdown_timeout"), "flag default when unset")
	assert.Equal(t, "", f.String("log_level"), "unknown flag reads viper")
}

func TestFlagLoaderSize(t *testing.T) {
	cmd := newServeCommand(t, "--chunk_size", "8MiB", "--max_part_size", "lots")
	f := NewFlagLoader(cmd)

	n, err := f.Size("chunk_size")
	require.NoError(t, err)
	assert.Equal(t, int64(8<<20), n)

	n, err = f.Size("min_part_size")
	require.NoError(t, err)
	assert.Equal(t, int64(5<<20), n)

	_, err = f.Size("max_part_size")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_part_size")
}

func TestLoadServerOptsDefaults(t *testing.T) {
	setEnv(t, env.Local)
	cmd := newServeCommand(t)

	opts, err := loadServerOpts(cmd)
	require.NoError(t, err)

	assert.Equal(t, 8090, opts.HTTPPort)
	assert.Equal(t, 8095, opts.DebugPort)
	assert.Equal(t, store.TypeMemory, opts.Store.Type)
	assert.Equal(t, int64(5<<20), opts.ChunkSize)
	assert.Equal(t, int64(5<<20), opts.Store.MinPartSize)
	assert.Equal(t, int64(512<<20), opts.MaxFileSize)
	assert.Equal(t, int64(64<<20), opts.MaxPartSize)
	assert.Equal(t, 3, opts.MaxPartAttempts)
	assert.Equal(t, 200*time.Millisecond, opts.RetryBackoff)
	assert.Equal(t, "uploads", opts.KeyPrefix)
	assert.Equal(t, "memory", opts.InflightBackend)
	assert.Equal(t, 24*time.Hour, opts.Redis.TTL)
	assert.Equal(t, 1, opts.StoreBurst)
}

func TestLoadServerOptsFromConfig(t *testing.T) {
	setEnv(t, env.Production)
	cmd := newServeCommand(t, "--s3_region", "eu-west-1")
	viper.Set("store", "S3")
	viper.Set("s3_bucket", "evidence")
	viper.Set("s3_region", "us-east-1")
	viper.Set("chunk_size", "16MiB")
	viper.Set("store_rps", 2.5)
	viper.Set("inflight_backend", "Redis")
	viper.Set("redis_addr", "redis:6379")

	opts, err := loadServerOpts(cmd)
	require.NoError(t, err)

	assert.Equal(t, store.TypeS3, opts.Store.Type)
	assert.Equal(t, "evidence", opts.Store.Bucket)
	assert.Equal(t, "eu-west-1", opts.Store.Region)
	assert.Equal(t, int64(16<<20), opts.ChunkSize)
	assert.Equal(t, 2.5, opts.StoreRPS)
	assert.Equal(t, 3, opts.StoreBurst)
	assert.Equal(t, "redis", opts.InflightBackend)
	assert.Equal(t, "redis:6379", opts.Redis.Addr)
}

func TestLoadServerOptsErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		args    []string
		wantErr string
	}{
		{name: "store required outside local", env: env.Production, wantErr: "store is required"},
		{name: "bucket required for s3", env: env.Local, args: []string{"--store", "s3"}, wantErr: "s3_bucket"},
		{name: "bad size", env: env.Local, args: []string{"--chunk_size", "big"}, wantErr: "chunk_size"},
		{
			name:    "chunk above part limit",
			env:     env.Local,
			args:    []string{"--chunk_size", "128MiB"},
			wantErr: "exceeds max_part_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			cmd := newServeCommand(t, tt.args...)

			_, err := loadServerOpts(cmd)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitializeTracker(t *testing.T) {
	tests := []struct {
		backend string
		want    inflight.Tracker
		wantErr bool
	}{
		{backend: "memory", want: &inflight.Memory{}},
		{backend: "", want: &inflight.Memory{}},
		{backend: "none", want: inflight.Nop{}},
		{backend: "etcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			tracker, closeTracker, err := initializeTracker(ServerOpts{
				InflightBackend: tt.backend,
				InflightTTL:     time.Hour,
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closeTracker()
			assert.IsType(t, tt.want, tracker)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "ZapLoad dev")
	assert.Contains(t, out.String(), "Go version:")
}
