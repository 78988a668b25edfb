// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// requestIDGenerator issues ids made of a per-process prefix and a counter.
type requestIDGenerator struct {
	counter atomic.Uint64
	prefix  string
}

func newRequestIDGenerator() *requestIDGenerator {
	return &requestIDGenerator{prefix: uuid.New().String()[0:8]}
}

func (g *requestIDGenerator) next() string {
	return g.prefix + strconv.FormatUint(g.counter.Add(1), 10)
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
