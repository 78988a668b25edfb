package debug

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Not parallel: readiness state is package global.
func TestReadyEndpoint(t *testing.T) {
	mux := GetMux()

	get := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	SetNotReady()
	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))

	SetReady()
	assert.Equal(t, http.StatusOK, get("/ready"))

	var storeErr error
	AddReadyCheck("store", func() error { return storeErr })
	assert.Equal(t, http.StatusOK, get("/ready"))

	storeErr = errors.New("bucket unreachable")
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))
	assert.False(t, IsReady())
	assert.Equal(t, map[string]string{"store": "bucket unreachable"}, Failing())

	storeErr = nil
	assert.True(t, IsReady())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_build_info")
}
