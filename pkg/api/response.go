// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

// retryAfterSeconds is advertised on throttled responses.
const retryAfterSeconds = "1"

type wrappedResponseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *wrappedResponseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *wrappedResponseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *wrappedResponseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// writeResult writes res as JSON with status and the request id filled in.
func writeResult[T any](w http.ResponseWriter, r *http.Request, status int, res apitypes.Result[T]) {
	res.RequestID = requestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Msg("failed to write response")
	}
}

func writeData[T any](w http.ResponseWriter, r *http.Request, status int, data T) {
	writeResult(w, r, status, apitypes.Ok(data, ""))
}

// writeError maps err to its HTTP status and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := uploaderr.KindOf(err).HTTPStatus()
	res := apitypes.Fail[struct{}](err, "")

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		res = apitypes.Fail[struct{}](uploaderr.Newf(uploaderr.InvalidRequest, "",
			"request body exceeds %d bytes", tooLarge.Limit), "")
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	ev := logger.Ctx(r.Context()).Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Ctx(r.Context()).Warn()
	}
	ev.Err(err).Int("status", status).Str("kind", res.Error.Kind).Msg("request failed")

	writeResult(w, r, status, res)
}

func invalid(op, format string, args ...any) error {
	return uploaderr.Newf(uploaderr.InvalidRequest, op, format, args...)
}
