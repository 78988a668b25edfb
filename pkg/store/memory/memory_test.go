// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "uploads/files/object.bin"

func newSession(t *testing.T, s *Store) string {
	t.Helper()
	id, err := s.CreateMultipartUpload(context.Background(), key, "application/octet-stream")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func uploadPart(t *testing.T, s *Store, id string, n int, data string) store.CompletedPart {
	t.Helper()
	etag, err := s.UploadPart(context.Background(), id, key, n, []byte(data))
	require.NoError(t, err)
	return store.CompletedPart{PartNumber: n, ETag: etag}
}

func TestCompleteConcatenatesInPartOrder(t *testing.T) {
	t.Parallel()

	s := New(WithMinPartSize(4))
	id := newSession(t, s)
	assert.Equal(t, store.StateInitiated, s.State(id))

	p3 := uploadPart(t, s, id, 3, "cc")
	p1 := uploadPart(t, s, id, 1, "aaaa")
	p2 := uploadPart(t, s, id, 2, "bbbb")
	assert.Equal(t, store.StateInProgress, s.State(id))

	loc, err := s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1, p2, p3})
	require.NoError(t, err)
	assert.Equal(t, "memory://zapload/"+key, loc)

	obj, ok := s.Object(key)
	require.True(t, ok)
	assert.Equal(t, "aaaabbbbcc", string(obj.Data))
	assert.Equal(t, 3, obj.Parts)
	assert.True(t, strings.HasSuffix(obj.ETag, "-3"))
	assert.Equal(t, store.StateCompleted, s.State(id))
	assert.Zero(t, s.OpenUploads())

	_, err = s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1, p2, p3})
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)
}

func TestUploadPartLastWriteWins(t *testing.T) {
	t.Parallel()

	s := New(WithMinPartSize(1))
	id := newSession(t, s)

	first := uploadPart(t, s, id, 1, "old")
	second := uploadPart(t, s, id, 1, "new")
	assert.NotEqual(t, first.ETag, second.ETag)

	parts, err := s.ListParts(context.Background(), id, key)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, second.ETag, parts[0].ETag)
	assert.EqualValues(t, 3, parts[0].Size)

	_, err = s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{first})
	assert.ErrorIs(t, err, uploaderr.ManifestMismatch)

	_, err = s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{second})
	require.NoError(t, err)
	obj, _ := s.Object(key)
	assert.Equal(t, "new", string(obj.Data))
}

func TestTimestampsFollowClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithMinPartSize(1), WithClock(func() time.Time { return now }))
	id := newSession(t, s)

	p1 := uploadPart(t, s, id, 1, "aa")
	now = now.Add(time.Minute)
	p2 := uploadPart(t, s, id, 2, "bb")

	parts, err := s.ListParts(context.Background(), id, key)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, now.Add(-time.Minute), parts[0].LastModified)
	assert.Equal(t, now, parts[1].LastModified)

	now = now.Add(time.Hour)
	_, err = s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1, p2})
	require.NoError(t, err)
	obj, ok := s.Object(key)
	require.True(t, ok)
	assert.Equal(t, now, obj.Created)
}

func TestCompleteValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest func(p1, p2 store.CompletedPart) []store.CompletedPart
		wantKind uploaderr.Kind
	}{
		{
			name:     "empty manifest",
			manifest: func(p1, p2 store.CompletedPart) []store.CompletedPart { return nil },
			wantKind: uploaderr.IncompleteManifest,
		},
		{
			name: "out of order",
			manifest: func(p1, p2 store.CompletedPart) []store.CompletedPart {
				return []store.CompletedPart{p2, p1}
			},
			wantKind: uploaderr.ManifestMismatch,
		},
		{
			name: "duplicate",
			manifest: func(p1, p2 store.CompletedPart) []store.CompletedPart {
				return []store.CompletedPart{p1, p1}
			},
			wantKind: uploaderr.ManifestMismatch,
		},
		{
			name: "part never uploaded",
			manifest: func(p1, p2 store.CompletedPart) []store.CompletedPart {
				return []store.CompletedPart{p1, p2, {PartNumber: 3, ETag: "abc"}}
			},
			wantKind: uploaderr.IncompleteManifest,
		},
		{
			name: "wrong etag",
			manifest: func(p1, p2 store.CompletedPart) []store.CompletedPart {
				p2.ETag = `"0000"`
				return []store.CompletedPart{p1, p2}
			},
			wantKind: uploaderr.ManifestMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := New(WithMinPartSize(4))
			id := newSession(t, s)
			p1 := uploadPart(t, s, id, 1, "aaaa")
			p2 := uploadPart(t, s, id, 2, "bbbb")

			_, err := s.CompleteMultipartUpload(context.Background(), id, key, tc.manifest(p1, p2))
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, uploaderr.KindOf(err))

			_, ok := s.Object(key)
			assert.False(t, ok, "failed completion must not create an object")
			assert.Equal(t, store.StateInProgress, s.State(id), "session stays open")
			assert.NoError(t, s.AbortMultipartUpload(context.Background(), id, key))
		})
	}
}

func TestCompleteRejectsSmallNonFinalPart(t *testing.T) {
	t.Parallel()

	s := New(WithMinPartSize(4))
	id := newSession(t, s)
	p1 := uploadPart(t, s, id, 1, "aa")
	p2 := uploadPart(t, s, id, 2, "bbbb")

	_, err := s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1, p2})
	assert.ErrorIs(t, err, uploaderr.PartTooSmall)

	// A short final part is fine.
	p1 = uploadPart(t, s, id, 1, "aaaa")
	p2 = uploadPart(t, s, id, 2, "b")
	_, err = s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1, p2})
	require.NoError(t, err)
}

func TestETagQuotesIgnored(t *testing.T) {
	t.Parallel()

	s := New()
	id := newSession(t, s)
	p1 := uploadPart(t, s, id, 1, "x")
	p1.ETag = store.NormalizeETag(p1.ETag)

	_, err := s.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{p1})
	require.NoError(t, err)
}

func TestAbort(t *testing.T) {
	t.Parallel()

	s := New()
	id := newSession(t, s)
	uploadPart(t, s, id, 1, "data")

	require.NoError(t, s.AbortMultipartUpload(context.Background(), id, key))
	assert.Equal(t, store.StateAborted, s.State(id))

	err := s.AbortMultipartUpload(context.Background(), id, key)
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)

	_, err = s.ListParts(context.Background(), id, key)
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)

	_, err = s.UploadPart(context.Background(), id, key, 2, []byte("late"))
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)
}

func TestSessionBoundToKey(t *testing.T) {
	t.Parallel()

	s := New()
	id := newSession(t, s)

	_, err := s.UploadPart(context.Background(), id, "uploads/other", 1, []byte("x"))
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)
	assert.Equal(t, store.StateUnknown, s.State("nope"))
}

func TestUploadPartValidation(t *testing.T) {
	t.Parallel()

	s := New()
	id := newSession(t, s)

	for _, n := range []int{0, -1, store.MaxPartNumber + 1} {
		_, err := s.UploadPart(context.Background(), id, key, n, []byte("x"))
		assert.ErrorIs(t, err, uploaderr.InvalidRequest, "part %d", n)
	}
}

func TestUploadPartCopiesInput(t *testing.T) {
	t.Parallel()

	s := New(WithMinPartSize(1))
	id := newSession(t, s)

	buf := []byte("hello")
	p := uploadPart(t, s, id, 1, string(buf))
	etag, err := s.UploadPart(context.Background(), id, key, 2, buf)
	require.NoError(t, err)
	copy(buf, "XXXXX")

	_, err = s.CompleteMultipartUpload(context.Background(), id, key,
		[]store.CompletedPart{p, {PartNumber: 2, ETag: etag}})
	require.NoError(t, err)
	obj, _ := s.Object(key)
	assert.True(t, bytes.Equal([]byte("hellohello"), obj.Data))
}

func TestFailNext(t *testing.T) {
	t.Parallel()

	s := New()
	boom := uploaderr.New(uploaderr.StoreUnavailable, OpUpload, "injected")
	s.FailNext(OpUpload, boom)
	id := newSession(t, s)

	_, err := s.UploadPart(context.Background(), id, key, 1, []byte("x"))
	assert.True(t, errors.Is(err, boom))

	_, err = s.UploadPart(context.Background(), id, key, 1, []byte("x"))
	assert.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().CreateMultipartUpload(ctx, key, "")
	assert.ErrorIs(t, err, uploaderr.StoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	st, err := store.New(context.Background(), store.Config{
		Type:          store.TypeMemory,
		PublicBaseURL: "https://cdn.example.com/",
		MinPartSize:   1,
	})
	require.NoError(t, err)
	ms, ok := st.(*Store)
	require.True(t, ok)

	id, err := ms.CreateMultipartUpload(context.Background(), key, "text/plain")
	require.NoError(t, err)
	etag, err := ms.UploadPart(context.Background(), id, key, 1, []byte("z"))
	require.NoError(t, err)
	loc, err := ms.CompleteMultipartUpload(context.Background(), id, key, []store.CompletedPart{{PartNumber: 1, ETag: etag}})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+key, loc)

	_, err = store.New(context.Background(), store.Config{Type: "tape"})
	assert.Error(t, err)
}
