// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCtxFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, &globalLogger, Ctx(context.Background()))
	//nolint:staticcheck // nil context is tolerated
	assert.Equal(t, &globalLogger, Ctx(nil))
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("upload_id", "abc").Logger()
	ctx := WithLogger(context.Background(), &l)

	Ctx(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"upload_id":"abc"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLeveledAdapter(t *testing.T) {
	var buf bytes.Buffer
	saved := globalLogger
	globalLogger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { globalLogger = saved })

	a := LeveledAdapter{Component: "client"}
	a.Warn("retrying request", "url", "http://x/api", "attempt", 2)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"component":"client"`)
	assert.Contains(t, out, `"url":"http://x/api"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"message":"retrying request"`)
}
