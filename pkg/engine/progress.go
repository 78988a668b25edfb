// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"slices"

	"github.com/LeeDigitalWorks/zapload/pkg/store"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

// Progress asks the store which parts of the session are committed. The
// result is ascending by part number with normalized etags.
func (e *Engine) Progress(ctx context.Context, uploadID, key string) ([]store.Part, error) {
	const op = "Progress"
	if err := e.checkSession(op, uploadID, key); err != nil {
		return nil, err
	}
	parts, err := e.listParts(ctx, uploadID, key)
	if err != nil {
		return nil, uploaderr.WithOp(op, err)
	}
	return parts, nil
}

func (e *Engine) listParts(ctx context.Context, uploadID, key string) ([]store.Part, error) {
	parts, err := e.cfg.Store.ListParts(ctx, uploadID, key)
	if err != nil {
		return nil, err
	}

	out := make([]store.Part, len(parts))
	for i, p := range parts {
		p.ETag = store.NormalizeETag(p.ETag)
		out[i] = p
	}
	slices.SortFunc(out, func(a, b store.Part) int { return a.PartNumber - b.PartNumber })
	return out, nil
}

// MissingParts returns the part numbers in 1..total absent from parts.
func MissingParts(parts []store.Part, total int) []int {
	have := make(map[int]struct{}, len(parts))
	for _, p := range parts {
		have[p.PartNumber] = struct{}{}
	}
	var missing []int
	for n := 1; n <= total; n++ {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
