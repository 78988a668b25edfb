// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"golang.org/x/time/rate"
)

// RateLimitedStore caps the request rate sent to the wrapped Store so the
// engine backs off before the store starts answering SlowDown.
type RateLimitedStore struct {
	store   Store
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst. A
// non-positive rps returns s unchanged.
func NewRateLimited(s Store, rps float64, burst int) Store {
	if rps <= 0 {
		return s
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedStore{
		store:   s,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Unwrap returns the underlying Store
func (r *RateLimitedStore) Unwrap() Store {
	return r.store
}

func (r *RateLimitedStore) wait(ctx context.Context, op string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return uploaderr.Wrap(uploaderr.Throttled, op, err, "local store rate limit")
	}
	return nil
}

func (r *RateLimitedStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := r.wait(ctx, "CreateMultipartUpload"); err != nil {
		return "", err
	}
	return r.store.CreateMultipartUpload(ctx, key, contentType)
}

func (r *RateLimitedStore) UploadPart(ctx context.Context, uploadID, key string, partNumber int, data []byte) (string, error) {
	if err := r.wait(ctx, "UploadPart"); err != nil {
		return "", err
	}
	return r.store.UploadPart(ctx, uploadID, key, partNumber, data)
}

func (r *RateLimitedStore) ListParts(ctx context.Context, uploadID, key string) ([]Part, error) {
	if err := r.wait(ctx, "ListParts"); err != nil {
		return nil, err
	}
	return r.store.ListParts(ctx, uploadID, key)
}

func (r *RateLimitedStore) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []CompletedPart) (string, error) {
	if err := r.wait(ctx, "CompleteMultipartUpload"); err != nil {
		return "", err
	}
	return r.store.CompleteMultipartUpload(ctx, uploadID, key, parts)
}

// AbortMultipartUpload is never rate limited so cleanup always reaches the store.
func (r *RateLimitedStore) AbortMultipartUpload(ctx context.Context, uploadID, key string) error {
	return r.store.AbortMultipartUpload(ctx, uploadID, key)
}
