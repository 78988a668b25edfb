// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package s3store implements store.Store on S3-compatible object storage.
package s3store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func init() {
	store.Register(store.TypeS3, func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return New(ctx, cfg)
	})
}

// API is the subset of *s3.Client used by Store.
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store is a multipart store backed by one S3 bucket.
type Store struct {
	client  API
	bucket  string
	baseURL string
}

// New builds an S3 client from cfg. Credentials fall back to the default AWS
// chain when no static key pair is configured.
func New(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for S3 store")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Only send the checksums an operation requires.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return NewWithClient(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket, baseURL string) *Store {
	return &Store{client: client, bucket: bucket, baseURL: baseURL}
}

func (s *Store) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	const op = "CreateMultipartUpload"
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := s.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", classify(op, err)
	}
	if aws.ToString(out.UploadId) == "" {
		return "", uploaderr.New(uploaderr.StoreUnavailable, op, "store returned no upload id")
	}
	return aws.ToString(out.UploadId), nil
}

func (s *Store) UploadPart(ctx context.Context, uploadID, key string, partNumber int, data []byte) (string, error) {
	const op = "UploadPart"
	if partNumber < 1 || partNumber > store.MaxPartNumber {
		return "", uploaderr.Newf(uploaderr.InvalidRequest, op, "part number %d out of range", partNumber)
	}
	sum := md5.Sum(data)
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentMD5:    aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		return "", classify(op, err)
	}
	if aws.ToString(out.ETag) == "" {
		return "", uploaderr.New(uploaderr.StoreUnavailable, op, "store returned no etag")
	}
	return aws.ToString(out.ETag), nil
}

func (s *Store) ListParts(ctx context.Context, uploadID, key string) ([]store.Part, error) {
	const op = "ListParts"
	paginator := s3.NewListPartsPaginator(s.client, &s3.ListPartsInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})

	var parts []store.Part
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(op, err)
		}
		for _, p := range page.Parts {
			parts = append(parts, store.Part{
				PartNumber:   int(aws.ToInt32(p.PartNumber)),
				ETag:         aws.ToString(p.ETag),
				Size:         aws.ToInt64(p.Size),
				LastModified: aws.ToTime(p.LastModified),
			})
		}
	}
	return parts, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []store.CompletedPart) (string, error) {
	const op = "CompleteMultipartUpload"
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		})
	}

	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", classify(op, err)
	}

	switch {
	case s.baseURL != "":
		return store.ObjectURL(s.baseURL, key), nil
	case aws.ToString(out.Location) != "":
		return aws.ToString(out.Location), nil
	default:
		return "s3://" + s.bucket + "/" + key, nil
	}
}

func (s *Store) AbortMultipartUpload(ctx context.Context, uploadID, key string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return classify("AbortMultipartUpload", err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return classify("HeadBucket", err)
	}
	return nil
}
