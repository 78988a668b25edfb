// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"mime"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/inflight"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/dustin/go-humanize"
)

const defaultContentType = "application/octet-stream"

// InitRequest opens an upload session.
type InitRequest struct {
	FileName    string
	ContentType string
	// Size is informational only.
	Size     int64
	Category Category
}

// Session identifies an open upload. Both fields are needed by every later
// operation.
type Session struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// Init opens a multipart session under a freshly generated key.
func (e *Engine) Init(ctx context.Context, req InitRequest) (*Session, error) {
	const op = "Init"
	if strings.TrimSpace(req.FileName) == "" {
		return nil, uploaderr.New(uploaderr.InvalidRequest, op, "file name is required")
	}
	category, err := ParseCategory(string(req.Category))
	if err != nil {
		return nil, uploaderr.WithOp(op, err)
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(extension(req.FileName))
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	key := e.newKey(category, req.FileName)
	uploadID, err := e.cfg.Store.CreateMultipartUpload(ctx, key, contentType)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to initiate multipart upload")
		return nil, uploaderr.WithOp(op, err)
	}

	entry := inflight.Entry{
		UploadID:    uploadID,
		Key:         key,
		FileName:    req.FileName,
		ContentType: contentType,
		Size:        req.Size,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.cfg.Tracker.Track(ctx, entry); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to track in-flight upload")
	}

	ev := logger.Ctx(ctx).Info().
		Str("upload_id", uploadID).
		Str("key", key).
		Str("content_type", contentType).
		Str("category", string(category))
	if req.Size > 0 {
		ev = ev.Int64("size", req.Size).Str("size_human", humanize.IBytes(uint64(req.Size)))
	}
	ev.Msg("multipart upload initiated")

	return &Session{UploadID: uploadID, Key: key}, nil
}
