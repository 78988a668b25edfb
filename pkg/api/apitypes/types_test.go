// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package apitypes

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultEnvelope(t *testing.T) {
	t.Parallel()

	ok, err := json.Marshal(Ok(PartRef{PartNumber: 2, ETag: "abc"}, "req1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"data":{"partNumber":2,"etag":"abc"},"requestId":"req1"}`, string(ok))

	fail, err := json.Marshal(Fail[PartRef](uploaderr.New(uploaderr.Throttled, "UploadPart", "slow down"), "req2"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"ok":false,"error":{"kind":"Throttled","message":"UploadPart: slow down","retryable":true},"requestId":"req2"}`,
		string(fail))
}

func TestErrorBodyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		kind uploaderr.Kind
	}{
		{uploaderr.New(uploaderr.SessionNotFound, "Progress", "gone"), uploaderr.SessionNotFound},
		{fmt.Errorf("wrapped: %w", uploaderr.New(uploaderr.ManifestMismatch, "", "bad etag")), uploaderr.ManifestMismatch},
		{fmt.Errorf("dial tcp: refused"), uploaderr.StoreUnavailable},
	}
	for _, tc := range tests {
		body := NewErrorBody(tc.err)
		assert.Equal(t, tc.kind.String(), body.Kind)
		assert.Equal(t, tc.kind.Retryable(), body.Retryable)

		back := body.Err("client")
		assert.ErrorIs(t, back, tc.kind)
		assert.Equal(t, "client", back.Op)
	}

	unknown := (&ErrorBody{Kind: "SomethingNew", Message: "?"}).Err("")
	assert.Equal(t, uploaderr.StoreUnavailable, unknown.Kind)
}
