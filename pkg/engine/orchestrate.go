// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/chunk"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

// abortTimeout bounds the cleanup abort issued when UploadFile fails.
const abortTimeout = 30 * time.Second

// FileRequest is a whole in-memory payload.
type FileRequest struct {
	FileName    string
	ContentType string
	Category    Category
	Data        []byte
}

// FileResult describes an object uploaded by UploadFile.
type FileResult struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Parts    int    `json:"parts"`
}

// UploadFile splits req.Data into ChunkSize parts, uploads them in order and
// completes the session. Once a session exists, any failure aborts it before
// the error is returned, even when ctx is canceled.
func (e *Engine) UploadFile(ctx context.Context, req FileRequest) (_ *FileResult, err error) {
	const op = "UploadFile"
	if len(req.Data) == 0 {
		return nil, uploaderr.New(uploaderr.InvalidRequest, op, "file is empty")
	}
	if n := chunk.Count(int64(len(req.Data)), e.cfg.ChunkSize); n > store.MaxPartNumber {
		return nil, uploaderr.Newf(uploaderr.InvalidRequest, op,
			"file needs %d parts of %d bytes, more than the %d allowed", n, e.cfg.ChunkSize, store.MaxPartNumber)
	}

	sess, err := e.Init(ctx, InitRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(req.Data)),
		Category:    req.Category,
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		if err == nil {
			return
		}
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		defer cancel()
		if aerr := e.Abort(abortCtx, sess.UploadID, sess.Key); aerr != nil {
			logger.Ctx(ctx).Error().Err(aerr).
				Str("upload_id", sess.UploadID).
				Str("key", sess.Key).
				Msg("failed to abort upload after error")
		}
	}()

	var manifest []store.CompletedPart
	for n, data := range chunk.Split(req.Data, int(e.cfg.ChunkSize)) {
		res, err := e.UploadPart(ctx, PartRequest{
			UploadID:   sess.UploadID,
			Key:        sess.Key,
			PartNumber: n,
			Data:       data,
		})
		if err != nil {
			return nil, fmt.Errorf("upload part %d: %w", n, err)
		}
		manifest = append(manifest, store.CompletedPart{PartNumber: res.PartNumber, ETag: res.ETag})
	}

	res, err := e.Complete(ctx, CompleteRequest{UploadID: sess.UploadID, Key: sess.Key, Parts: manifest})
	if err != nil {
		return nil, err
	}

	return &FileResult{
		UploadID: sess.UploadID,
		Key:      res.Key,
		Location: res.Location,
		Size:     res.Size,
		Parts:    res.Parts,
	}, nil
}
