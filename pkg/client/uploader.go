// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/chunk"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// abortTimeout bounds the cleanup abort after a failed upload.
const abortTimeout = 30 * time.Second

// ErrCompletionUnknown is returned when the complete request got no
// response and the session state could not be read back. The session is
// not aborted because the object may already exist.
var ErrCompletionUnknown = errors.New("completion outcome unknown")

// maxParts is the largest part number the API accepts.
const maxParts = 10000

// UploaderConfig tunes an Uploader.
type UploaderConfig struct {
	// Concurrency is the maximum number of parts in flight.
	// Default: min(NumCPU * 2, 16), minimum 2
	Concurrency int

	// ChunkSize is the part size. Default: 5 MiB.
	ChunkSize int64

	// KeepOnFailure leaves a failed session open so it can be resumed.
	KeepOnFailure bool

	// Category and ContentType are passed to Init.
	Category    string
	ContentType string

	// OnPart, when set, is called after every part is committed. It may be
	// called concurrently.
	OnPart func(part apitypes.PartRef, size int64)
}

// DefaultConcurrency derives the part concurrency from the CPU count.
func DefaultConcurrency() int {
	return max(2, min(runtime.NumCPU()*2, 16))
}

func (c *UploaderConfig) setDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunk.DefaultSize
	}
}

// SessionError is returned when an upload fails after its session was
// opened. When Aborted is false the session is still open and can be passed
// to Resume.
type SessionError struct {
	Session apitypes.Session
	Aborted bool
	Err     error
}

func (e *SessionError) Error() string {
	state := "left open"
	if e.Aborted {
		state = "aborted"
	}
	return fmt.Sprintf("upload %s (%s) %s: %v", e.Session.UploadID, e.Session.Key, state, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Uploader uploads files as parallel parts through a Client.
type Uploader struct {
	client *Client
	cfg    UploaderConfig
}

// NewUploader returns an Uploader using c.
func NewUploader(c *Client, cfg UploaderConfig) *Uploader {
	cfg.setDefaults()
	return &Uploader{client: c, cfg: cfg}
}

// Upload opens a session for fileName and uploads size bytes of r.
func (u *Uploader) Upload(ctx context.Context, fileName string, r io.ReaderAt, size int64) (*apitypes.Completed, error) {
	if err := u.check(size); err != nil {
		return nil, err
	}
	sess, err := u.client.Init(ctx, apitypes.InitRequest{
		FileName:    fileName,
		ContentType: u.cfg.ContentType,
		Size:        size,
		Category:    u.cfg.Category,
	})
	if err != nil {
		return nil, err
	}
	return u.finish(ctx, *sess, r, size, nil)
}

// Resume continues sess. Parts the server already holds with the expected
// size are not sent again.
func (u *Uploader) Resume(ctx context.Context, sess apitypes.Session, r io.ReaderAt, size int64) (*apitypes.Completed, error) {
	if err := u.check(size); err != nil {
		return nil, err
	}
	progress, err := u.client.Progress(ctx, sess, 0)
	if err != nil {
		return nil, err
	}
	return u.finish(ctx, sess, r, size, progress.Parts)
}

func (u *Uploader) check(size int64) error {
	if size <= 0 {
		return uploaderr.New(uploaderr.InvalidRequest, "Upload", "file is empty")
	}
	if n := chunk.Count(size, u.cfg.ChunkSize); n > maxParts {
		return uploaderr.Newf(uploaderr.InvalidRequest, "Upload",
			"%s needs %d parts of %s, more than the %d allowed",
			humanize.IBytes(uint64(size)), n, humanize.IBytes(uint64(u.cfg.ChunkSize)), maxParts)
	}
	return nil
}

// finish uploads the parts missing from committed and completes the session.
// On failure the session is aborted unless KeepOnFailure is set.
func (u *Uploader) finish(ctx context.Context, sess apitypes.Session, r io.ReaderAt, size int64, committed []apitypes.Part) (*apitypes.Completed, error) {
	res, err := u.uploadParts(ctx, sess, r, size, committed)
	if err == nil {
		return res, nil
	}

	serr := &SessionError{Session: sess, Err: err}
	if !u.cfg.KeepOnFailure && !errors.Is(err, ErrCompletionUnknown) {
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		defer cancel()
		if aerr := u.client.Abort(abortCtx, sess); aerr != nil {
			logger.Ctx(ctx).Warn().Err(aerr).Str("upload_id", sess.UploadID).Msg("failed to abort upload")
		} else {
			serr.Aborted = true
		}
	}
	return nil, serr
}

func (u *Uploader) uploadParts(ctx context.Context, sess apitypes.Session, r io.ReaderAt, size int64, committed []apitypes.Part) (*apitypes.Completed, error) {
	total := chunk.Count(size, u.cfg.ChunkSize)
	have := make(map[int]apitypes.Part, len(committed))
	for _, p := range committed {
		if p.PartNumber > total {
			return nil, uploaderr.Newf(uploaderr.InvalidRequest, "Resume",
				"session holds part %d but the file only has %d parts of %d bytes", p.PartNumber, total, u.cfg.ChunkSize)
		}
		have[p.PartNumber] = p
	}

	// Each goroutine writes only its own manifest slot.
	manifest := make([]apitypes.PartRef, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Concurrency)
	for n, rng := range chunk.Ranges(size, u.cfg.ChunkSize) {
		if p, ok := have[n]; ok && p.Size == rng.Length {
			manifest[n-1] = apitypes.PartRef{PartNumber: n, ETag: p.ETag}
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			buf := make([]byte, rng.Length)
			if read, err := r.ReadAt(buf, rng.Offset); read != len(buf) {
				return fmt.Errorf("read part %d: %w", n, cmp.Or(err, io.ErrUnexpectedEOF))
			}
			ref, err := u.client.UploadPart(gctx, sess, n, buf)
			if err != nil {
				return fmt.Errorf("upload part %d: %w", n, err)
			}
			manifest[n-1] = *ref
			if u.cfg.OnPart != nil {
				u.cfg.OnPart(*ref, rng.Length)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return u.complete(ctx, sess, manifest, size)
}

// complete sends the manifest once. When the response is lost the session
// is read back: a closed session means the completion was applied, an open
// one means it was not and the manifest is sent again.
func (u *Uploader) complete(ctx context.Context, sess apitypes.Session, manifest []apitypes.PartRef, size int64) (*apitypes.Completed, error) {
	res, err := u.client.Complete(ctx, sess, manifest)
	if err == nil || !errors.Is(err, ErrNoResponse) {
		return res, err
	}

	l := logger.Ctx(ctx).With().Str("upload_id", sess.UploadID).Str("key", sess.Key).Logger()
	_, perr := u.client.Progress(ctx, sess, 0)
	switch {
	case errors.Is(perr, uploaderr.SessionNotFound):
		l.Warn().Err(err).Msg("complete response lost; session is closed, treating upload as completed")
		return &apitypes.Completed{Key: sess.Key, Size: size, Parts: len(manifest)}, nil
	case perr == nil:
		l.Warn().Err(err).Msg("complete response lost; session still open, sending manifest again")
		res, err = u.client.Complete(ctx, sess, manifest)
		if errors.Is(err, ErrNoResponse) {
			return nil, fmt.Errorf("%w: %w", ErrCompletionUnknown, err)
		}
		return res, err
	default:
		return nil, fmt.Errorf("%w: %w (progress: %w)", ErrCompletionUnknown, err, perr)
	}
}
