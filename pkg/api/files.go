// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/engine"
)

const (
	// maxFieldSize bounds non-file form fields.
	maxFieldSize = 1 << 10

	genericContentType = "application/octet-stream"
)

// handleUploadFile uploads a whole file in one request (form fields "file"
// and optional "category") through the orchestrator.
// POST /api/v1/files
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	const op = "UploadFile"
	if !isMultipart(r) {
		writeError(w, r, invalid(op, "expected a multipart/form-data body"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+formOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, invalid(op, "malformed multipart body: %v", err))
		return
	}

	var (
		req     engine.FileRequest
		hasFile bool
	)
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, r, multipartError(op, err))
			return
		}

		switch p.FormName() {
		case apitypes.FormFieldFile:
			data, err := readLimited(p, s.maxFileSize)
			if err != nil {
				writeError(w, r, multipartError(op, err))
				return
			}
			req.FileName = p.FileName()
			// Form encoders send octet-stream for unknown types; let the
			// engine infer one from the extension instead.
			if ct := p.Header.Get("Content-Type"); ct != genericContentType {
				req.ContentType = ct
			}
			req.Data = data
			hasFile = true
		case apitypes.FormFieldCategory:
			v, err := readLimited(p, maxFieldSize)
			if err != nil {
				writeError(w, r, invalid(op, "category field too long"))
				return
			}
			req.Category = engine.Category(v)
		}
	}
	if !hasFile {
		writeError(w, r, invalid(op, "multipart body has no %q field", apitypes.FormFieldFile))
		return
	}
	if req.FileName == "" {
		req.FileName = "upload"
	}

	res, err := s.engine.UploadFile(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, apitypes.FileUploaded{
		UploadID: res.UploadID,
		Key:      res.Key,
		Location: res.Location,
		Size:     res.Size,
		Parts:    res.Parts,
	})
}
