package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	checksMu sync.RWMutex
	checks   = make(map[string]func() error)

	// Registry for zapload metrics, exported on /metrics next to the defaults.
	globalRegistry = prometheus.NewRegistry()
)

func init() {
	globalRegistry.MustRegister(collectors.NewBuildInfoCollector())
}

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// AddReadyCheck registers a named dependency check consulted by /ready.
func AddReadyCheck(name string, check func() error) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = check
}

// Failing runs every registered check and returns the failures by name.
func Failing() map[string]string {
	checksMu.RLock()
	defer checksMu.RUnlock()

	failed := make(map[string]string)
	for name, check := range checks {
		if err := check(); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// IsReady reports whether SetReady was called and every check passes.
func IsReady() bool {
	return ready.Load() && len(Failing()) == 0
}

// Registry returns the Prometheus registerer for zapload metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/", pprof.Index)
	mux.Handle("/debug/allocs/", pprof.Handler("allocs"))
	mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
	mux.Handle("/debug/heap/", pprof.Handler("heap"))
	mux.HandleFunc("/debug/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/profile", pprof.Profile)
	mux.HandleFunc("/debug/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/trace", pprof.Trace)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		failed := Failing()
		if ready.Load() && len(failed) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":  ready.Load(),
			"failed": names,
			"errors": failed,
		})
	})

	return mux
}
