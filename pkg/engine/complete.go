// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/dustin/go-humanize"
)

// CompleteRequest commits a session.
type CompleteRequest struct {
	UploadID string
	Key      string
	Parts    []store.CompletedPart
}

// CompleteResult describes the assembled object.
type CompleteResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Parts    int    `json:"parts"`
}

// Complete validates the manifest against the parts the store holds and
// asks the store to assemble them. A rejected manifest leaves the session
// open and abortable; no object is written.
func (e *Engine) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	const op = "Complete"
	if err := e.checkSession(op, req.UploadID, req.Key); err != nil {
		return nil, err
	}
	if err := checkManifestShape(req.Parts); err != nil {
		return nil, err
	}

	committed, err := e.listParts(ctx, req.UploadID, req.Key)
	if err != nil {
		return nil, uploaderr.WithOp(op, err)
	}
	manifest, size, err := e.matchManifest(req.Parts, committed)
	if err != nil {
		return nil, err
	}

	location, err := e.cfg.Store.CompleteMultipartUpload(ctx, req.UploadID, req.Key, manifest)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("upload_id", req.UploadID).
			Str("key", req.Key).
			Msg("store rejected multipart completion")
		return nil, uploaderr.WithOp(op, err)
	}

	if err := e.cfg.Tracker.Forget(ctx, req.UploadID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", req.UploadID).Msg("failed to forget in-flight upload")
	}
	uploadsFinished.WithLabelValues(store.StateCompleted.String()).Inc()
	uploadedBytes.Add(float64(size))

	logger.Ctx(ctx).Info().
		Str("upload_id", req.UploadID).
		Str("key", req.Key).
		Int("parts", len(manifest)).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("multipart upload completed")

	return &CompleteResult{
		Key:      req.Key,
		Location: location,
		Size:     size,
		Parts:    len(manifest),
	}, nil
}

// checkManifestShape rejects manifests that cannot be valid whatever the
// store holds: empty, unordered, duplicated or with gaps.
func checkManifestShape(parts []store.CompletedPart) error {
	const op = "Complete"
	if len(parts) == 0 {
		return uploaderr.New(uploaderr.IncompleteManifest, op, "manifest lists no parts")
	}
	for i, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > store.MaxPartNumber {
			return uploaderr.Newf(uploaderr.ManifestMismatch, op, "part number %d out of range", p.PartNumber)
		}
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return uploaderr.Newf(uploaderr.ManifestMismatch, op,
				"part %d listed after part %d; parts must be strictly ascending", p.PartNumber, parts[i-1].PartNumber)
		}
	}
	for i, p := range parts {
		if p.PartNumber != i+1 {
			return uploaderr.Newf(uploaderr.IncompleteManifest, op, "part %d missing from manifest", i+1)
		}
	}
	return nil
}

// matchManifest checks every manifest entry against the committed parts and
// returns the normalized manifest and total object size.
func (e *Engine) matchManifest(parts []store.CompletedPart, committed []store.Part) ([]store.CompletedPart, int64, error) {
	const op = "Complete"
	byNumber := make(map[int]store.Part, len(committed))
	for _, p := range committed {
		byNumber[p.PartNumber] = p
	}

	manifest := make([]store.CompletedPart, len(parts))
	var size int64
	for i, p := range parts {
		c, ok := byNumber[p.PartNumber]
		if !ok {
			return nil, 0, uploaderr.Newf(uploaderr.IncompleteManifest, op, "part %d was never uploaded", p.PartNumber)
		}
		if store.NormalizeETag(p.ETag) != c.ETag {
			return nil, 0, uploaderr.Newf(uploaderr.ManifestMismatch, op, "etag mismatch for part %d", p.PartNumber)
		}
		if i < len(parts)-1 && c.Size < e.cfg.MinPartSize {
			return nil, 0, uploaderr.Newf(uploaderr.PartTooSmall, op,
				"part %d is %d bytes, minimum for a non-final part is %d", p.PartNumber, c.Size, e.cfg.MinPartSize)
		}
		manifest[i] = store.CompletedPart{PartNumber: p.PartNumber, ETag: c.ETag}
		size += c.Size
		delete(byNumber, p.PartNumber)
	}

	for _, c := range committed {
		if _, left := byNumber[c.PartNumber]; left {
			return nil, 0, uploaderr.Newf(uploaderr.IncompleteManifest, op,
				"committed part %d is not in the manifest", c.PartNumber)
		}
	}
	return manifest, size, nil
}
