// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records inputs and serves canned outputs.
type fakeAPI struct {
	err error

	createIn   *s3.CreateMultipartUploadInput
	uploadIn   *s3.UploadPartInput
	uploadBody []byte
	completeIn *s3.CompleteMultipartUploadInput
	abortIn    *s3.AbortMultipartUploadInput
	location   string

	// listPages are served in order; each page but the last is truncated.
	listPages  [][]types.Part
	listMarker []string
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.createIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeAPI) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.uploadIn = in
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.uploadBody = body
	return &s3.UploadPartOutput{ETag: aws.String(`"etag-` + strconv.Itoa(int(aws.ToInt32(in.PartNumber))) + `"`)}, nil
}

func (f *fakeAPI) ListParts(_ context.Context, in *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := 0
	if m := aws.ToString(in.PartNumberMarker); m != "" {
		for i, marker := range f.listMarker {
			if marker == m {
				page = i + 1
			}
		}
	}
	out := &s3.ListPartsOutput{Parts: f.listPages[page], IsTruncated: aws.Bool(page < len(f.listPages)-1)}
	if page < len(f.listPages)-1 {
		out.NextPartNumberMarker = aws.String(f.listMarker[page])
	}
	return out, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.completeIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.CompleteMultipartUploadOutput{Location: aws.String(f.location)}, nil
}

func (f *fakeAPI) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.abortIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeAPI) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadBucketOutput{}, nil
}

func part(n int32, etag string, size int64) types.Part {
	return types.Part{PartNumber: aws.Int32(n), ETag: aws.String(etag), Size: aws.Int64(size)}
}

func TestCreateMultipartUpload(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewWithClient(api, "evidence", "")

	id, err := s.CreateMultipartUpload(context.Background(), "uploads/a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "upload-1", id)
	assert.Equal(t, "evidence", aws.ToString(api.createIn.Bucket))
	assert.Equal(t, "uploads/a.pdf", aws.ToString(api.createIn.Key))
	assert.Equal(t, "application/pdf", aws.ToString(api.createIn.ContentType))
}

func TestUploadPart(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewWithClient(api, "b", "")

	etag, err := s.UploadPart(context.Background(), "upload-1", "k", 7, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"etag-7"`, etag)
	assert.EqualValues(t, 7, aws.ToInt32(api.uploadIn.PartNumber))
	assert.EqualValues(t, 5, aws.ToInt64(api.uploadIn.ContentLength))
	assert.Equal(t, "XUFAKrxLKna5cZ2REBfFkg==", aws.ToString(api.uploadIn.ContentMD5))
	assert.Equal(t, "hello", string(api.uploadBody))

	_, err = s.UploadPart(context.Background(), "upload-1", "k", 0, []byte("x"))
	assert.ErrorIs(t, err, uploaderr.InvalidRequest)
}

func TestListPartsPaginates(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listPages: [][]types.Part{
			{part(1, `"a"`, 5), part(2, `"b"`, 5)},
			{part(3, `"c"`, 1)},
		},
		listMarker: []string{"2"},
	}
	s := NewWithClient(api, "b", "")

	parts, err := s.ListParts(context.Background(), "upload-1", "k")
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, store.Part{PartNumber: 3, ETag: `"c"`, Size: 1}, parts[2])
}

func TestCompleteMultipartUpload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		baseURL  string
		location string
		want     string
	}{
		{"store location", "", "https://b.s3.amazonaws.com/k", "https://b.s3.amazonaws.com/k"},
		{"public base url wins", "https://cdn.example.com", "https://b.s3.amazonaws.com/k", "https://cdn.example.com/k"},
		{"fallback", "", "", "s3://b/k"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{location: tc.location}
			s := NewWithClient(api, "b", tc.baseURL)
			loc, err := s.CompleteMultipartUpload(context.Background(), "upload-1", "k", []store.CompletedPart{
				{PartNumber: 1, ETag: "a"},
				{PartNumber: 2, ETag: "b"},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc)

			got := api.completeIn.MultipartUpload.Parts
			require.Len(t, got, 2)
			assert.EqualValues(t, 2, aws.ToInt32(got[1].PartNumber))
			assert.Equal(t, "b", aws.ToString(got[1].ETag))
		})
	}
}

func TestAbortMultipartUpload(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewWithClient(api, "b", "")
	require.NoError(t, s.AbortMultipartUpload(context.Background(), "upload-1", "k"))
	assert.Equal(t, "upload-1", aws.ToString(api.abortIn.UploadId))

	api.err = &types.NoSuchUpload{Message: aws.String("gone")}
	err := s.AbortMultipartUpload(context.Background(), "upload-1", "k")
	assert.ErrorIs(t, err, uploaderr.SessionNotFound)
}

func responseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("http failure"),
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want uploaderr.Kind
	}{
		{"typed no such upload", &types.NoSuchUpload{}, uploaderr.SessionNotFound},
		{"no such upload code", &smithy.GenericAPIError{Code: "NoSuchUpload"}, uploaderr.SessionNotFound},
		{"entity too small", &smithy.GenericAPIError{Code: "EntityTooSmall"}, uploaderr.PartTooSmall},
		{"invalid part", &smithy.GenericAPIError{Code: "InvalidPart"}, uploaderr.ManifestMismatch},
		{"invalid part order", &smithy.GenericAPIError{Code: "InvalidPartOrder"}, uploaderr.ManifestMismatch},
		{"malformed manifest", &smithy.GenericAPIError{Code: "MalformedXML"}, uploaderr.IncompleteManifest},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, uploaderr.Unauthorized},
		{"bad signature", &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, uploaderr.Unauthorized},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, uploaderr.Throttled},
		{"internal error", &smithy.GenericAPIError{Code: "InternalError"}, uploaderr.StoreUnavailable},
		{"unknown code", &smithy.GenericAPIError{Code: "Weird"}, uploaderr.StoreUnavailable},
		{"forbidden status", responseError(http.StatusForbidden), uploaderr.Unauthorized},
		{"not found status", responseError(http.StatusNotFound), uploaderr.SessionNotFound},
		{"too many requests", responseError(http.StatusTooManyRequests), uploaderr.Throttled},
		{"bad gateway", responseError(http.StatusBadGateway), uploaderr.StoreUnavailable},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), uploaderr.StoreUnavailable},
		{"plain", errors.New("dial tcp: connection refused"), uploaderr.StoreUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := classify("UploadPart", fmt.Errorf("operation error S3: %w", tc.err))
			assert.Equal(t, tc.want, uploaderr.KindOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.NoError(t, classify("UploadPart", nil))
}

func TestErrorsSurfaceKinds(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: &smithy.GenericAPIError{Code: "SlowDown"}}
	s := NewWithClient(api, "b", "")

	_, err := s.CreateMultipartUpload(context.Background(), "k", "")
	assert.ErrorIs(t, err, uploaderr.Throttled)
	_, err = s.UploadPart(context.Background(), "u", "k", 1, []byte("x"))
	assert.ErrorIs(t, err, uploaderr.Throttled)
	_, err = s.ListParts(context.Background(), "u", "k")
	assert.ErrorIs(t, err, uploaderr.Throttled)
	_, err = s.CompleteMultipartUpload(context.Background(), "u", "k", nil)
	assert.ErrorIs(t, err, uploaderr.Throttled)
	assert.ErrorIs(t, s.Ping(context.Background()), uploaderr.Throttled)
}

func TestNewRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), store.Config{Type: store.TypeS3})
	assert.Error(t, err)
}
