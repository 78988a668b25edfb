// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process multipart Store with S3 semantics, used for
// tests and local development.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/google/uuid"
)

// Operation names accepted by FailNext.
const (
	OpCreate   = "CreateMultipartUpload"
	OpUpload   = "UploadPart"
	OpList     = "ListParts"
	OpComplete = "CompleteMultipartUpload"
	OpAbort    = "AbortMultipartUpload"
)

func init() {
	store.Register(store.TypeMemory, func(_ context.Context, cfg store.Config) (store.Store, error) {
		opts := []Option{WithBucket(cfg.Bucket), WithBaseURL(cfg.PublicBaseURL)}
		if cfg.MinPartSize > 0 {
			opts = append(opts, WithMinPartSize(cfg.MinPartSize))
		}
		return New(opts...), nil
	})
}

// Object is a completed upload.
type Object struct {
	Key         string
	ContentType string
	ETag        string
	Data        []byte
	Parts       int
	Created     time.Time
}

type part struct {
	data     []byte
	etag     string
	modified time.Time
}

type upload struct {
	key         string
	contentType string
	created     time.Time
	parts       map[int]*part
}

// Store implements store.Store in memory.
type Store struct {
	mu      sync.Mutex
	uploads map[string]*upload
	closed  map[string]store.State
	objects map[string]*Object
	faults  map[string][]error

	bucket      string
	baseURL     string
	minPartSize int64
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMinPartSize sets the minimum size of every part but the last.
func WithMinPartSize(n int64) Option {
	return func(s *Store) { s.minPartSize = n }
}

// WithBucket names the bucket used in memory:// locations.
func WithBucket(bucket string) Option {
	return func(s *Store) {
		if bucket != "" {
			s.bucket = bucket
		}
	}
}

// WithBaseURL reports locations as baseURL/key instead of memory://bucket/key.
func WithBaseURL(baseURL string) Option {
	return func(s *Store) { s.baseURL = baseURL }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		uploads:     make(map[string]*upload),
		closed:      make(map[string]store.State),
		objects:     make(map[string]*Object),
		faults:      make(map[string][]error),
		bucket:      "zapload",
		minPartSize: store.MinPartSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext queues errors returned by the next calls of op, one per call,
// before the operation touches any state.
func (s *Store) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

// fault pops a queued error for op. Caller holds s.mu.
func (s *Store) fault(op string) error {
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	s.faults[op] = q[1:]
	return q[0]
}

// session returns the open upload for id, checking the key. Caller holds s.mu.
func (s *Store) session(op, uploadID, key string) (*upload, error) {
	u, ok := s.uploads[uploadID]
	if !ok || u.key != key {
		return nil, uploaderr.Newf(uploaderr.SessionNotFound, op, "upload %s not found", uploadID)
	}
	return u, nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", uploaderr.Wrap(uploaderr.StoreUnavailable, OpCreate, err, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpCreate); err != nil {
		return "", err
	}

	id := uuid.New()
	uploadID := base64.RawURLEncoding.EncodeToString(id[:])
	s.uploads[uploadID] = &upload{
		key:         key,
		contentType: contentType,
		created:     s.now(),
		parts:       make(map[int]*part),
	}
	return uploadID, nil
}

func (s *Store) UploadPart(ctx context.Context, uploadID, key string, partNumber int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", uploaderr.Wrap(uploaderr.StoreUnavailable, OpUpload, err, "")
	}
	if partNumber < 1 || partNumber > store.MaxPartNumber {
		return "", uploaderr.Newf(uploaderr.InvalidRequest, OpUpload, "part number %d out of range", partNumber)
	}

	sum := md5.Sum(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	buf := slices.Clone(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpUpload); err != nil {
		return "", err
	}
	u, err := s.session(OpUpload, uploadID, key)
	if err != nil {
		return "", err
	}
	u.parts[partNumber] = &part{data: buf, etag: etag, modified: s.now()}
	return etag, nil
}

func (s *Store) ListParts(ctx context.Context, uploadID, key string) ([]store.Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, uploaderr.Wrap(uploaderr.StoreUnavailable, OpList, err, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpList); err != nil {
		return nil, err
	}
	u, err := s.session(OpList, uploadID, key)
	if err != nil {
		return nil, err
	}

	parts := make([]store.Part, 0, len(u.parts))
	for n, p := range u.parts {
		parts = append(parts, store.Part{
			PartNumber:   n,
			ETag:         p.etag,
			Size:         int64(len(p.data)),
			LastModified: p.modified,
		})
	}
	slices.SortFunc(parts, func(a, b store.Part) int { return a.PartNumber - b.PartNumber })
	return parts, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []store.CompletedPart) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", uploaderr.Wrap(uploaderr.StoreUnavailable, OpComplete, err, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpComplete); err != nil {
		return "", err
	}
	u, err := s.session(OpComplete, uploadID, key)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", uploaderr.New(uploaderr.IncompleteManifest, OpComplete, "manifest lists no parts")
	}

	var size int
	etags := make([]string, 0, len(parts))
	for i, cp := range parts {
		if i > 0 && cp.PartNumber <= parts[i-1].PartNumber {
			return "", uploaderr.Newf(uploaderr.ManifestMismatch, OpComplete,
				"part %d listed after part %d", cp.PartNumber, parts[i-1].PartNumber)
		}
		p, ok := u.parts[cp.PartNumber]
		if !ok {
			return "", uploaderr.Newf(uploaderr.IncompleteManifest, OpComplete, "part %d not uploaded", cp.PartNumber)
		}
		if store.NormalizeETag(cp.ETag) != store.NormalizeETag(p.etag) {
			return "", uploaderr.Newf(uploaderr.ManifestMismatch, OpComplete, "etag mismatch for part %d", cp.PartNumber)
		}
		if i < len(parts)-1 && int64(len(p.data)) < s.minPartSize {
			return "", uploaderr.Newf(uploaderr.PartTooSmall, OpComplete,
				"part %d is %d bytes, minimum is %d", cp.PartNumber, len(p.data), s.minPartSize)
		}
		size += len(p.data)
		etags = append(etags, store.NormalizeETag(p.etag))
	}

	data := make([]byte, 0, size)
	for _, cp := range parts {
		data = append(data, u.parts[cp.PartNumber].data...)
	}
	sum := md5.Sum([]byte(strings.Join(etags, "")))

	s.objects[key] = &Object{
		Key:         key,
		ContentType: u.contentType,
		ETag:        hex.EncodeToString(sum[:]) + "-" + strconv.Itoa(len(parts)),
		Data:        data,
		Parts:       len(parts),
		Created:     s.now(),
	}
	delete(s.uploads, uploadID)
	s.closed[uploadID] = store.StateCompleted

	return s.location(key), nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, uploadID, key string) error {
	if err := ctx.Err(); err != nil {
		return uploaderr.Wrap(uploaderr.StoreUnavailable, OpAbort, err, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpAbort); err != nil {
		return err
	}
	if _, err := s.session(OpAbort, uploadID, key); err != nil {
		return err
	}
	delete(s.uploads, uploadID)
	s.closed[uploadID] = store.StateAborted
	return nil
}

func (s *Store) location(key string) string {
	if s.baseURL != "" {
		return store.ObjectURL(s.baseURL, key)
	}
	return "memory://" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

// Object returns a copy of the completed object at key.
func (s *Store) Object(key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	cp := *o
	cp.Data = slices.Clone(o.Data)
	return cp, true
}

// State reports the lifecycle state of uploadID.
func (s *Store) State(uploadID string) store.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.uploads[uploadID]; ok {
		if len(u.parts) == 0 {
			return store.StateInitiated
		}
		return store.StateInProgress
	}
	return s.closed[uploadID]
}

// OpenUploads returns the number of sessions neither completed nor aborted.
func (s *Store) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}
