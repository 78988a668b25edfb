// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeETag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`"abc"`, "abc"},
		{"abc", "abc"},
		{` "abc" `, "abc"},
		{`""`, ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, store.NormalizeETag(tc.in), tc.in)
	}
}

func TestObjectURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://cdn.example.com/uploads/a.pdf", store.ObjectURL("https://cdn.example.com/", "/uploads/a.pdf"))
	assert.Equal(t, "https://cdn.example.com/uploads/a.pdf", store.ObjectURL("https://cdn.example.com", "uploads/a.pdf"))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "IN_PROGRESS", store.StateInProgress.String())
	assert.Equal(t, "UNKNOWN", store.State(42).String())
	assert.True(t, store.StateAborted.Terminal())
	assert.True(t, store.StateCompleted.Terminal())
	assert.False(t, store.StateInitiated.Terminal())
}

func TestMetricsStore(t *testing.T) {
	t.Parallel()

	mem := memory.New(memory.WithMinPartSize(1))
	ms := store.NewMetricsStore(mem)
	assert.Same(t, mem, ms.Unwrap())

	ctx := context.Background()
	id, err := ms.CreateMultipartUpload(ctx, "k", "")
	require.NoError(t, err)
	etag, err := ms.UploadPart(ctx, id, "k", 1, []byte("abc"))
	require.NoError(t, err)
	parts, err := ms.ListParts(ctx, id, "k")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	_, err = ms.CompleteMultipartUpload(ctx, id, "k", []store.CompletedPart{{PartNumber: 1, ETag: etag}})
	require.NoError(t, err)

	err = ms.AbortMultipartUpload(ctx, id, "k")
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)

	// Registered collectors are process wide, so only check they are populated.
	for _, c := range store.StoreMetrics() {
		assert.Positive(t, testutil.CollectAndCount(c))
	}
}

func TestRateLimitedStore(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	assert.Same(t, mem, store.NewRateLimited(mem, 0, 0), "non-positive rate disables limiting")

	limited := store.NewRateLimited(mem, 1, 1)
	rl, ok := limited.(*store.RateLimitedStore)
	require.True(t, ok)
	assert.Same(t, mem, rl.Unwrap())

	ctx := context.Background()
	id, err := limited.CreateMultipartUpload(ctx, "k", "")
	require.NoError(t, err)

	// The single token is spent; a short deadline cannot wait a full second.
	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = limited.ListParts(short, id, "k")
	assert.ErrorIs(t, err, uploaderr.Throttled)

	// Abort bypasses the limiter.
	require.NoError(t, limited.AbortMultipartUpload(short, id, "k"))
}
