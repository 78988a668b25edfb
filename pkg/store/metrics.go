// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for store operations
var (
	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapload_store_operation_duration_seconds",
			Help:    "Duration of object store operations in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation", "status"},
	)

	storeOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapload_store_operations_total",
			Help: "Total number of object store operations",
		},
		[]string{"operation", "status"},
	)

	storePartBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zapload_store_part_bytes_total",
			Help: "Bytes sent to the object store as multipart parts",
		},
	)
)

func init() {
	prometheus.MustRegister(
		storeOperationDuration,
		storeOperationTotal,
		storePartBytes,
	)
}

// StoreMetrics returns the Prometheus collectors for store metrics
func StoreMetrics() []prometheus.Collector {
	return []prometheus.Collector{
		storeOperationDuration,
		storeOperationTotal,
		storePartBytes,
	}
}

func recordMetric(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = uploaderr.KindOf(err).String()
	}
	storeOperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	storeOperationTotal.WithLabelValues(operation, status).Inc()
}

// MetricsStore records latency and outcome of every call to the wrapped Store.
type MetricsStore struct {
	store Store
}

// NewMetricsStore wraps s with Prometheus instrumentation.
func NewMetricsStore(s Store) *MetricsStore {
	return &MetricsStore{store: s}
}

// Unwrap returns the underlying Store
func (m *MetricsStore) Unwrap() Store {
	return m.store
}

func (m *MetricsStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	start := time.Now()
	id, err := m.store.CreateMultipartUpload(ctx, key, contentType)
	recordMetric("CreateMultipartUpload", start, err)
	return id, err
}

func (m *MetricsStore) UploadPart(ctx context.Context, uploadID, key string, partNumber int, data []byte) (string, error) {
	start := time.Now()
	etag, err := m.store.UploadPart(ctx, uploadID, key, partNumber, data)
	recordMetric("UploadPart", start, err)
	if err == nil {
		storePartBytes.Add(float64(len(data)))
	}
	return etag, err
}

func (m *MetricsStore) ListParts(ctx context.Context, uploadID, key string) ([]Part, error) {
	start := time.Now()
	parts, err := m.store.ListParts(ctx, uploadID, key)
	recordMetric("ListParts", start, err)
	return parts, err
}

func (m *MetricsStore) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []CompletedPart) (string, error) {
	start := time.Now()
	location, err := m.store.CompleteMultipartUpload(ctx, uploadID, key, parts)
	recordMetric("CompleteMultipartUpload", start, err)
	return location, err
}

func (m *MetricsStore) AbortMultipartUpload(ctx context.Context, uploadID, key string) error {
	start := time.Now()
	err := m.store.AbortMultipartUpload(ctx, uploadID, key)
	recordMetric("AbortMultipartUpload", start, err)
	return err
}
