// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/engine"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
)

// handleInit opens a session.
// POST /api/v1/uploads
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req apitypes.InitRequest
	if err := decodeJSON(w, r, "Init", &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.engine.Init(r.Context(), engine.InitRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.Size,
		Category:    engine.Category(req.Category),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, apitypes.Session{UploadID: sess.UploadID, Key: sess.Key})
}

// handleUploadPart stores one part. The body is either the raw chunk or a
// multipart form carrying it in the "chunk" field.
// PUT /api/v1/uploads/{uploadId}/parts/{partNumber}?key=
func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	const op = "UploadPart"
	partNumber, err := strconv.Atoi(r.PathValue("partNumber"))
	if err != nil {
		writeError(w, r, invalid(op, "part number %q is not an integer", r.PathValue("partNumber")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxPartSize+formOverhead)
	data, err := readPartBody(r, s.maxPartSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.engine.UploadPart(r.Context(), engine.PartRequest{
		UploadID:   r.PathValue("uploadId"),
		Key:        r.URL.Query().Get("key"),
		PartNumber: partNumber,
		Data:       data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", `"`+res.ETag+`"`)
	writeData(w, r, http.StatusOK, apitypes.PartRef{PartNumber: res.PartNumber, ETag: res.ETag})
}

// handleProgress lists committed parts, and the missing ones when
// totalParts is given.
// GET /api/v1/uploads/{uploadId}/parts?key=&totalParts=
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "Progress"
	uploadID := r.PathValue("uploadId")
	key := r.URL.Query().Get("key")

	total := 0
	if v := r.URL.Query().Get("totalParts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxPartNumber {
			writeError(w, r, invalid(op, "totalParts must be between 1 and %d", store.MaxPartNumber))
			return
		}
		total = n
	}

	parts, err := s.engine.Progress(r.Context(), uploadID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := apitypes.Progress{UploadID: uploadID, Key: key, Parts: make([]apitypes.Part, len(parts))}
	for i, p := range parts {
		out.Parts[i] = apitypes.Part{PartNumber: p.PartNumber, ETag: p.ETag, Size: p.Size, LastModified: p.LastModified}
	}
	if total > 0 {
		out.Missing = engine.MissingParts(parts, total)
	}
	writeData(w, r, http.StatusOK, out)
}

// handleComplete assembles the object.
// POST /api/v1/uploads/{uploadId}/complete
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req apitypes.CompleteRequest
	if err := decodeJSON(w, r, "Complete", &req); err != nil {
		writeError(w, r, err)
		return
	}

	manifest := make([]store.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		manifest[i] = store.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	res, err := s.engine.Complete(r.Context(), engine.CompleteRequest{
		UploadID: r.PathValue("uploadId"),
		Key:      req.Key,
		Parts:    manifest,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, apitypes.Completed{
		Key:      res.Key,
		Location: res.Location,
		Size:     res.Size,
		Parts:    res.Parts,
	})
}

// handleAbort discards a session.
// DELETE /api/v1/uploads/{uploadId}?key=
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("uploadId")
	key := r.URL.Query().Get("key")
	if err := s.engine.Abort(r.Context(), uploadID, key); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, apitypes.Aborted{UploadID: uploadID, Key: key})
}

// handleListInProgress returns the advisory in-flight list.
// GET /api/v1/uploads
func (s *Server) handleListInProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Tracker().List(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("list in-flight uploads: %w", err))
		return
	}
	out := make([]apitypes.InProgress, len(entries))
	for i, e := range entries {
		out[i] = apitypes.InProgress{
			UploadID:    e.UploadID,
			Key:         e.Key,
			FileName:    e.FileName,
			ContentType: e.ContentType,
			Size:        e.Size,
			StartedAt:   e.StartedAt,
		}
	}
	writeData(w, r, http.StatusOK, out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return invalid(op, "malformed JSON body: %v", err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// readPartBody returns the chunk bytes of an upload-part request.
func readPartBody(r *http.Request, limit int64) ([]byte, error) {
	if !isMultipart(r) {
		return readLimited(r.Body, limit)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, invalid("UploadPart", "malformed multipart body: %v", err)
	}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, invalid("UploadPart", "multipart body has no %q field", apitypes.FormFieldChunk)
		}
		if err != nil {
			return nil, multipartError("UploadPart", err)
		}
		if p.FormName() == apitypes.FormFieldChunk {
			return readLimited(p, limit)
		}
	}
}

// readLimited reads r fully, failing with a MaxBytesError past limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return data, nil
}

func multipartError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return invalid(op, "malformed multipart body: %v", err)
}
