// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

// Abort discards a session and its parts. Aborting a session that is
// already aborted, completed or unknown succeeds.
func (e *Engine) Abort(ctx context.Context, uploadID, key string) error {
	const op = "Abort"
	if err := e.checkSession(op, uploadID, key); err != nil {
		return err
	}

	err := e.cfg.Store.AbortMultipartUpload(ctx, uploadID, key)
	switch {
	case err == nil:
		uploadsFinished.WithLabelValues(store.StateAborted.String()).Inc()
		logger.Ctx(ctx).Info().Str("upload_id", uploadID).Str("key", key).Msg("multipart upload aborted")
	case uploaderr.KindOf(err) == uploaderr.SessionNotFound:
		logger.Ctx(ctx).Debug().Str("upload_id", uploadID).Msg("abort of closed or unknown upload")
		err = nil
	default:
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to abort multipart upload")
		return uploaderr.WithOp(op, err)
	}

	if ferr := e.cfg.Tracker.Forget(ctx, uploadID); ferr != nil {
		logger.Ctx(ctx).Warn().Err(ferr).Str("upload_id", uploadID).Msg("failed to forget in-flight upload")
	}
	return err
}
