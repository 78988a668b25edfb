// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitter(t *testing.T) {
	t.Parallel()

	base := time.Second
	for range 100 {
		d := Jitter(base, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	assert.Equal(t, base, Jitter(base, 0))
	assert.Equal(t, base, Jitter(base, -1))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		want    time.Duration
	}{
		{"first attempt", 100 * time.Millisecond, time.Second, 1, 100 * time.Millisecond},
		{"doubles", 100 * time.Millisecond, time.Second, 3, 400 * time.Millisecond},
		{"capped", 100 * time.Millisecond, time.Second, 10, time.Second},
		{"no cap", 100 * time.Millisecond, 0, 4, 800 * time.Millisecond},
		{"zero base", 0, time.Second, 5, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Backoff(tc.base, tc.max, tc.attempt))
		})
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"5MiB", 5 << 20, false},
		{"64MB", 64_000_000, false},
		{"1024", 1024, false},
		{"", 0, false},
		{"lots", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSize(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestJoinHostPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.0.0.0:8090", JoinHostPort("0.0.0.0", 8090))
	assert.Equal(t, "[::1]:8090", JoinHostPort("::1", 8090))
	assert.Equal(t, "[::1]:8090", JoinHostPort("[::1]", 8090))
}

func TestScaledTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Second, scaledTimeout(10*time.Second, 0))
	// 40KB per 10s window at the minimum rate
	assert.Equal(t, 30*time.Second, scaledTimeout(10*time.Second, 80_000))
}
