// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the multipart object store contract the upload
// engine depends on, plus a registry of implementations and wrappers that add
// metrics and rate limiting.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// MinPartSize is the smallest size S3 accepts for a non-final part.
	MinPartSize = 5 << 20
	// MaxPartNumber is the highest part number S3 accepts.
	MaxPartNumber = 10000
)

// Part is a part committed to an open upload session.
type Part struct {
	PartNumber   int       `json:"partNumber"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"sizeBytes"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// CompletedPart is one manifest entry.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// State is the lifecycle state of an upload session.
type State int

const (
	StateUnknown State = iota
	StateInitiated
	StateInProgress
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateCompleted:
		return "COMPLETED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Store is a remote blob store speaking a multipart upload protocol.
// Implementations return *uploaderr.Error values so callers can branch on
// the failure kind. The store is the only source of truth for which parts
// of a session are committed.
type Store interface {
	// CreateMultipartUpload opens a session for key and returns its id.
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	// UploadPart stores data as partNumber, replacing any earlier upload of the
	// same number, and returns the part fingerprint.
	UploadPart(ctx context.Context, uploadID, key string, partNumber int, data []byte) (string, error)
	// ListParts returns every committed part in ascending part number order.
	ListParts(ctx context.Context, uploadID, key string) ([]Part, error)
	// CompleteMultipartUpload assembles the listed parts into the object at
	// key and returns its location.
	CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []CompletedPart) (string, error)
	// AbortMultipartUpload discards the session and its parts.
	AbortMultipartUpload(ctx context.Context, uploadID, key string) error
}

// Type names a store implementation.
type Type string

const (
	TypeS3     Type = "s3"
	TypeMemory Type = "memory"
)

// Config selects and configures a store implementation.
type Config struct {
	Type Type

	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// PublicBaseURL, when set, is joined with the key to build the location
	// reported after completion.
	PublicBaseURL string

	// MinPartSize overrides the minimum non-final part size (memory store).
	MinPartSize int64
}

// Factory creates a Store from config.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Type]Factory)
)

// Register adds a factory for a store type.
func Register(t Type, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates a Store from config.
func New(ctx context.Context, cfg Config) (Store, error) {
	registryMu.RLock()
	f, ok := registry[Type(strings.ToLower(string(cfg.Type)))]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
	return f(ctx, cfg)
}

// Types returns the registered store types.
func Types() []Type {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// NormalizeETag strips the surrounding quotes S3 puts on ETag values.
func NormalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}

// ObjectURL joins base and key with a single slash.
func ObjectURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
