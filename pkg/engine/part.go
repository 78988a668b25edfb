// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
	"github.com/LeeDigitalWorks/zapload/pkg/utils"
)

// PartRequest carries one chunk of a session.
type PartRequest struct {
	UploadID   string
	Key        string
	PartNumber int
	Data       []byte
}

// PartResult is the fingerprint the store assigned to a part.
type PartResult struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
	Size       int64  `json:"sizeBytes"`
}

// UploadPart sends one part. Retryable store failures are retried in place
// with exponential backoff. Re-sending a part number replaces the earlier
// part, so retries are always safe.
func (e *Engine) UploadPart(ctx context.Context, req PartRequest) (*PartResult, error) {
	const op = "UploadPart"
	if err := e.checkSession(op, req.UploadID, req.Key); err != nil {
		return nil, err
	}
	if req.PartNumber < 1 || req.PartNumber > store.MaxPartNumber {
		return nil, uploaderr.Newf(uploaderr.InvalidRequest, op,
			"part number %d outside 1..%d", req.PartNumber, store.MaxPartNumber)
	}
	if len(req.Data) == 0 {
		return nil, uploaderr.Newf(uploaderr.InvalidRequest, op, "part %d is empty", req.PartNumber)
	}

	for attempt := 1; ; attempt++ {
		etag, err := e.cfg.Store.UploadPart(ctx, req.UploadID, req.Key, req.PartNumber, req.Data)
		if err == nil {
			logger.Ctx(ctx).Debug().
				Str("upload_id", req.UploadID).
				Int("part_number", req.PartNumber).
				Int("size", len(req.Data)).
				Int("attempt", attempt).
				Msg("part uploaded")
			return &PartResult{
				PartNumber: req.PartNumber,
				ETag:       store.NormalizeETag(etag),
				Size:       int64(len(req.Data)),
			}, nil
		}

		err = uploaderr.WithOp(op, err)
		if !uploaderr.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt >= e.cfg.MaxPartAttempts {
			return nil, fmt.Errorf("part %d failed after %d attempts: %w", req.PartNumber, attempt, err)
		}

		delay := utils.Jitter(utils.Backoff(e.cfg.RetryBackoff, e.cfg.MaxRetryBackoff, attempt), 0.2)
		partRetries.Inc()
		logger.Ctx(ctx).Warn().Err(err).
			Str("upload_id", req.UploadID).
			Int("part_number", req.PartNumber).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying part upload")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, uploaderr.Wrap(uploaderr.StoreUnavailable, op, ctx.Err(), "canceled while retrying part")
		case <-timer.C:
		}
	}
}
