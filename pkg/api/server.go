// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the upload engine over HTTP with JSON envelopes.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/engine"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultMaxFileSize = 512 << 20
	DefaultMaxPartSize = 64 << 20

	// maxJSONBody bounds the init and complete request bodies.
	maxJSONBody = 4 << 20
	// formOverhead is allowed on top of MaxFileSize for multipart framing.
	formOverhead = 64 << 10
)

// Config holds the server dependencies.
type Config struct {
	Engine *engine.Engine
	// MaxFileSize bounds POST /files payloads.
	MaxFileSize int64
	// MaxPartSize bounds a single part body.
	MaxPartSize int64
	// Registerer receives request metrics. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Server routes API requests to the engine.
type Server struct {
	engine      *engine.Engine
	mux         *http.ServeMux
	requestIDs  *requestIDGenerator
	maxFileSize int64
	maxPartSize int64

	metricsRequest         *prometheus.CounterVec
	metricsRequestDuration *prometheus.HistogramVec
}

// NewServer builds a Server and registers its metrics.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxPartSize <= 0 {
		cfg.MaxPartSize = DefaultMaxPartSize
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	s := &Server{
		engine:      cfg.Engine,
		mux:         http.NewServeMux(),
		requestIDs:  newRequestIDGenerator(),
		maxFileSize: cfg.MaxFileSize,
		maxPartSize: cfg.MaxPartSize,
		metricsRequest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zapload_api_requests_total",
			Help: "Number of upload API requests",
		}, []string{"route", "status_code"}),
		metricsRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zapload_api_request_duration_seconds",
			Help:    "Duration of upload API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status_code"}),
	}
	for _, c := range []prometheus.Collector{s.metricsRequest, s.metricsRequestDuration} {
		if err := cfg.Registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register api metrics: %w", err)
		}
	}

	p := apitypes.PathPrefix
	s.mux.HandleFunc("POST "+p+"/uploads", s.handleInit)
	s.mux.HandleFunc("GET "+p+"/uploads", s.handleListInProgress)
	s.mux.HandleFunc("PUT "+p+"/uploads/{uploadId}/parts/{partNumber}", s.handleUploadPart)
	s.mux.HandleFunc("GET "+p+"/uploads/{uploadId}/parts", s.handleProgress)
	s.mux.HandleFunc("POST "+p+"/uploads/{uploadId}/complete", s.handleComplete)
	s.mux.HandleFunc("DELETE "+p+"/uploads/{uploadId}", s.handleAbort)
	s.mux.HandleFunc("POST "+p+"/files", s.handleUploadFile)
	s.mux.HandleFunc("/", s.handleNotFound)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wrapped := &wrappedResponseRecorder{ResponseWriter: w}

	requestID := s.requestIDs.next()
	wrapped.Header().Set(apitypes.HeaderRequestID, requestID)
	l := logger.With().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Logger()
	r = r.WithContext(withRequestID(logger.WithLogger(r.Context(), &l), requestID))

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			sentry.CaptureException(err)
			l.Error().Err(err).Msg("recovered from panic")
			if !wrapped.wroteHeader {
				writeResult(wrapped, r, http.StatusInternalServerError,
					apitypes.Result[struct{}]{Error: &apitypes.ErrorBody{Kind: "Internal", Message: "internal error"}})
			}
		}

		route := r.Pattern
		if route == "" || route == "/" {
			route = "unmatched"
		}
		status := strconv.Itoa(wrapped.statusCode)
		s.metricsRequest.WithLabelValues(route, status).Inc()
		s.metricsRequestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
		l.Debug().
			Int("status", wrapped.statusCode).
			Int64("bytes", wrapped.bytesWritten).
			Dur("duration", time.Since(start)).
			Msg("request served")
	}()

	s.mux.ServeHTTP(wrapped, r)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, http.StatusNotFound, apitypes.Result[struct{}]{Error: &apitypes.ErrorBody{
		Kind:    "NotFound",
		Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
	}})
}
