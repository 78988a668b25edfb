// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine drives chunked multipart uploads against a store.Store.
//
// Every operation is a stateless call: the engine keeps no session state
// between calls and asks the store whenever it needs to know what has been
// committed, so a restarted process can resume any session it has the
// upload id and key for.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/chunk"
	"github.com/LeeDigitalWorks/zapload/pkg/inflight"
	"github.com/LeeDigitalWorks/zapload/pkg/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultKeyPrefix       = "uploads"
	DefaultMaxPartAttempts = 3
	DefaultRetryBackoff    = 200 * time.Millisecond
	DefaultMaxRetryBackoff = 5 * time.Second
)

var (
	partRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zapload_part_retries_total",
		Help: "Part uploads retried after a transient store failure",
	})

	uploadsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zapload_uploads_finished_total",
		Help: "Upload sessions that reached a terminal state",
	}, []string{"state"})

	uploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zapload_uploaded_bytes_total",
		Help: "Bytes in completed objects",
	})
)

func init() {
	prometheus.MustRegister(partRetries, uploadsFinished, uploadedBytes)
}

// Config holds the engine dependencies and tuning.
type Config struct {
	// Store is required.
	Store store.Store
	// Tracker receives advisory in-flight notifications. Optional.
	Tracker inflight.Tracker

	// KeyPrefix is the first path segment of every generated key.
	KeyPrefix string
	// ChunkSize is the part size used by UploadFile.
	ChunkSize int64
	// MinPartSize is the smallest allowed non-final part.
	MinPartSize int64

	// MaxPartAttempts bounds UploadPart attempts on retryable failures.
	MaxPartAttempts int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	// NewID generates the random part of object keys.
	NewID func() string
}

func (c *Config) setDefaults() {
	if c.Tracker == nil {
		c.Tracker = inflight.Nop{}
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.MinPartSize <= 0 {
		c.MinPartSize = store.MinPartSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = max(chunk.DefaultSize, c.MinPartSize)
	}
	if c.MaxPartAttempts <= 0 {
		c.MaxPartAttempts = DefaultMaxPartAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// Engine implements the upload operations.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	cfg.setDefaults()
	if cfg.ChunkSize < cfg.MinPartSize {
		return nil, fmt.Errorf("chunk size %d is below the minimum part size %d", cfg.ChunkSize, cfg.MinPartSize)
	}
	return &Engine{cfg: cfg}, nil
}

// ChunkSize returns the part size UploadFile splits payloads into.
func (e *Engine) ChunkSize() int64 {
	return e.cfg.ChunkSize
}

// MinPartSize returns the minimum non-final part size.
func (e *Engine) MinPartSize() int64 {
	return e.cfg.MinPartSize
}

// Tracker returns the advisory in-flight tracker.
func (e *Engine) Tracker() inflight.Tracker {
	return e.cfg.Tracker
}
