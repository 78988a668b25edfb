// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package apitypes holds the JSON wire types of the upload HTTP API.
package apitypes

import (
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

const (
	// PathPrefix is the root of every API route.
	PathPrefix = "/api/v1"

	// HeaderRequestID carries the server-assigned request id.
	HeaderRequestID = "X-Request-Id"

	// FormFieldChunk and FormFieldFile name the multipart form fields of
	// part and whole-file uploads.
	FormFieldChunk    = "chunk"
	FormFieldFile     = "file"
	FormFieldCategory = "category"
)

// Result is the envelope of every response. Exactly one of Data and Error
// is set, selected by OK.
type Result[T any] struct {
	OK        bool       `json:"ok"`
	Data      *T         `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
}

// ErrorBody describes a failed operation.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Ok wraps data in a successful result.
func Ok[T any](data T, requestID string) Result[T] {
	return Result[T]{OK: true, Data: &data, RequestID: requestID}
}

// Fail wraps err in a failed result.
func Fail[T any](err error, requestID string) Result[T] {
	return Result[T]{Error: NewErrorBody(err), RequestID: requestID}
}

// NewErrorBody classifies err.
func NewErrorBody(err error) *ErrorBody {
	kind := uploaderr.KindOf(err)
	return &ErrorBody{
		Kind:      kind.String(),
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}
}

// Err rebuilds an *uploaderr.Error from a decoded error body.
func (b *ErrorBody) Err(op string) *uploaderr.Error {
	kind, ok := uploaderr.ParseKind(b.Kind)
	if !ok {
		kind = uploaderr.StoreUnavailable
	}
	return uploaderr.New(kind, op, b.Message)
}

// InitRequest opens an upload session.
type InitRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Session identifies an open upload.
type Session struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// Part is a committed part as reported by the store.
type Part struct {
	PartNumber   int       `json:"partNumber"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"sizeBytes"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// PartRef identifies a part in a manifest or an upload response.
type PartRef struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// Progress lists the committed parts of a session. Missing is only set when
// the caller asked for a part count.
type Progress struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
	Parts    []Part `json:"parts"`
	Missing  []int  `json:"missing,omitempty"`
}

// CompleteRequest commits a manifest.
type CompleteRequest struct {
	Key   string    `json:"key"`
	Parts []PartRef `json:"parts"`
}

// Completed describes an assembled object.
type Completed struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Parts    int    `json:"parts"`
}

// Aborted acknowledges an abort.
type Aborted struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// FileUploaded describes an object uploaded in a single request.
type FileUploaded struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Parts    int    `json:"parts"`
}

// InProgress is an advisory entry for an upload that has not finished.
type InProgress struct {
	UploadID    string    `json:"uploadId"`
	Key         string    `json:"key"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}
