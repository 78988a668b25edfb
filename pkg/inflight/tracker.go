// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package inflight keeps an advisory list of upload sessions believed to be
// open, for showing "upload in progress" to users. Nothing in the engine
// reads it back to decide anything: the object store stays the only source
// of truth, and every backend may lose or expire entries at will.
package inflight

import (
	"context"
	"slices"
	"time"
)

// DefaultTTL bounds how long an entry survives without Forget.
const DefaultTTL = 24 * time.Hour

// Entry describes one upload session.
type Entry struct {
	UploadID    string    `json:"uploadId"`
	Key         string    `json:"key"`
	FileName    string    `json:"fileName,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// Tracker records Entry values keyed by upload id.
type Tracker interface {
	Track(ctx context.Context, e Entry) error
	Forget(ctx context.Context, uploadID string) error
	List(ctx context.Context) ([]Entry, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Track(context.Context, Entry) error { return nil }
func (Nop) Forget(context.Context, string) error { return nil }
func (Nop) List(context.Context) ([]Entry, error) { return nil, nil }

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		if a.UploadID < b.UploadID {
			return -1
		}
		if a.UploadID > b.UploadID {
			return 1
		}
		return 0
	})
}
