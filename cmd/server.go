// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/api"
	"github.com/LeeDigitalWorks/zapload/pkg/debug"
	"github.com/LeeDigitalWorks/zapload/pkg/engine"
	"github.com/LeeDigitalWorks/zapload/pkg/env"
	"github.com/LeeDigitalWorks/zapload/pkg/inflight"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/store"
	_ "github.com/LeeDigitalWorks/zapload/pkg/store/memory"
	_ "github.com/LeeDigitalWorks/zapload/pkg/store/s3store"
	"github.com/LeeDigitalWorks/zapload/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	inflightMemory = "memory"
	inflightRedis  = "redis"
	inflightNone   = "none"
)

type ServerOpts struct {
	IP              string
	HTTPPort        int
	DebugPort       int
	LogLevel        string
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Store store.Config

	KeyPrefix       string
	ChunkSize       int64
	MaxPartAttempts int
	RetryBackoff    time.Duration
	MaxFileSize     int64
	MaxPartSize     int64
	StoreRPS        float64
	StoreBurst      int

	InflightBackend string
	InflightTTL     time.Duration
	Redis           inflight.RedisConfig
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload API server",
	Long: `Start the HTTP upload API backed by an S3-compatible object store.
Metrics, pprof, /health and /ready are served on the debug port.`,
	Run: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd.Flags())
}

func addServerFlags(f *pflag.FlagSet) {
	f.String("ip", "", "IP address to bind to")
	f.Int("http_port", 8090, "HTTP port for the upload API")
	f.Int("debug_port", 8095, "Port for metrics, pprof and health checks")
	f.Duration("idle_timeout", 60*time.Second, "Per-connection read/write idle timeout")
	f.Duration("shutdown_timeout", 30*time.Second, "Grace period for in-flight requests on shutdown")

	// Object store
	f.String("store", "", "Object store backend (s3, memory); memory is the default when ENV=local")
	f.String("s3_bucket", "", "Bucket that receives uploaded objects")
	f.String("s3_region", "", "S3 region")
	f.String("s3_endpoint", "", "Custom S3 endpoint (MinIO, R2, ...)")
	f.String("s3_access_key_id", "", "Static access key id (default: AWS credential chain)")
	f.String("s3_secret_access_key", "", "Static secret access key")
	f.Bool("s3_path_style", false, "Use path-style bucket addressing")
	f.String("public_base_url", "", "Base URL used to build object locations")
	f.Float64("store_rps", 0, "Maximum object store requests per second (0 = unlimited)")
	f.Int("store_burst", 0, "Burst for store_rps (default: store_rps rounded up)")

	// Engine
	f.String("key_prefix", engine.DefaultKeyPrefix, "First path segment of generated object keys")
	f.String("chunk_size", "5MiB", "Part size for whole-file uploads")
	f.String("min_part_size", "5MiB", "Minimum size of every part except the last")
	f.Int("max_part_attempts", engine.DefaultMaxPartAttempts, "Attempts per part on transient store failures")
	f.Duration("part_retry_backoff", engine.DefaultRetryBackoff, "Initial backoff between part attempts")
	f.String("max_file_size", "512MiB", "Largest accepted whole-file upload")
	f.String("max_part_size", "64MiB", "Largest accepted single part")

	// In-flight tracker
	f.String("inflight_backend", inflightMemory, "In-flight upload list backend (memory, redis, none)")
	f.Duration("inflight_ttl", inflight.DefaultTTL, "Lifetime of in-flight entries")
	f.String("redis_addr", inflight.DefaultRedisConfig().Addr, "Redis address for the redis in-flight backend")
	f.String("redis_password", "", "Redis password")
	f.Int("redis_db", 0, "Redis database")
}

func runServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("zapload", false)

	opts, err := loadServerOpts(cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.SetLevelString(opts.LogLevel)

	debug.SetNotReady()

	ctx := context.Background()
	raw, err := store.New(ctx, opts.Store)
	if err != nil {
		logger.Fatal().Err(err).Str("store", string(opts.Store.Type)).Msg("failed to create object store")
	}
	addPingCheck("store", raw)
	st := store.NewRateLimited(store.NewMetricsStore(raw), opts.StoreRPS, opts.StoreBurst)

	tracker, closeTracker, err := initializeTracker(opts)
	if err != nil {
		logger.Fatal().Err(err).Str("inflight_backend", opts.InflightBackend).Msg("failed to create in-flight tracker")
	}
	defer closeTracker()

	eng, err := engine.New(engine.Config{
		Store:           st,
		Tracker:         tracker,
		KeyPrefix:       opts.KeyPrefix,
		ChunkSize:       opts.ChunkSize,
		MinPartSize:     opts.Store.MinPartSize,
		MaxPartAttempts: opts.MaxPartAttempts,
		RetryBackoff:    opts.RetryBackoff,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upload engine")
	}

	handler, err := api.NewServer(api.Config{
		Engine:      eng,
		MaxFileSize: opts.MaxFileSize,
		MaxPartSize: opts.MaxPartSize,
		Registerer:  debug.Registry(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create API server")
	}

	logger.Info().
		Str("store", string(opts.Store.Type)).
		Str("bucket", opts.Store.Bucket).
		Str("key_prefix", opts.KeyPrefix).
		Str("chunk_size", humanize.IBytes(uint64(eng.ChunkSize()))).
		Str("min_part_size", humanize.IBytes(uint64(eng.MinPartSize()))).
		Str("inflight_backend", opts.InflightBackend).
		Msg("upload engine configured")

	httpServer := startHTTPServer(handler, opts.IP, opts.HTTPPort, opts.IdleTimeout)
	debugServer := startHTTPServer(debug.GetMux(), opts.IP, opts.DebugPort, 0)

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := debugServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("debug server shutdown")
	}
}

func loadServerOpts(cmd *cobra.Command) (ServerOpts, error) {
	f := NewFlagLoader(cmd)

	storeType := store.Type(strings.ToLower(f.String("store")))
	if storeType == "" {
		if !env.IsLocal() {
			return ServerOpts{}, errors.New("store is required outside ENV=local")
		}
		storeType = store.TypeMemory
	}
	if storeType == store.TypeS3 && f.String("s3_bucket") == "" {
		return ServerOpts{}, errors.New("s3_bucket is required for the s3 store")
	}

	opts := ServerOpts{
		IP:              f.String("ip"),
		HTTPPort:        f.Int("http_port"),
		DebugPort:       f.Int("debug_port"),
		LogLevel:        f.String("log_level"),
		IdleTimeout:     f.Duration("idle_timeout"),
		ShutdownTimeout: f.Duration("shutdown_timeout"),
		Store: store.Config{
			Type:            storeType,
			Bucket:          f.String("s3_bucket"),
			Region:          f.String("s3_region"),
			Endpoint:        f.String("s3_endpoint"),
			AccessKeyID:     f.String("s3_access_key_id"),
			SecretAccessKey: f.String("s3_secret_access_key"),
			PathStyle:       f.Bool("s3_path_style"),
			PublicBaseURL:   f.String("public_base_url"),
		},
		KeyPrefix:       f.String("key_prefix"),
		MaxPartAttempts: f.Int("max_part_attempts"),
		RetryBackoff:    f.Duration("part_retry_backoff"),
		StoreRPS:        f.Float64("store_rps"),
		StoreBurst:      f.Int("store_burst"),
		InflightBackend: strings.ToLower(f.String("inflight_backend")),
		InflightTTL:     f.Duration("inflight_ttl"),
	}
	if opts.StoreBurst <= 0 {
		opts.StoreBurst = max(1, int(opts.StoreRPS+0.999))
	}

	var err error
	if opts.ChunkSize, err = f.Size("chunk_size"); err != nil {
		return ServerOpts{}, err
	}
	if opts.Store.MinPartSize, err = f.Size("min_part_size"); err != nil {
		return ServerOpts{}, err
	}
	if opts.MaxFileSize, err = f.Size("max_file_size"); err != nil {
		return ServerOpts{}, err
	}
	if opts.MaxPartSize, err = f.Size("max_part_size"); err != nil {
		return ServerOpts{}, err
	}
	if opts.MaxPartSize > 0 && opts.ChunkSize > opts.MaxPartSize {
		return ServerOpts{}, fmt.Errorf("chunk_size %s exceeds max_part_size %s",
			humanize.IBytes(uint64(opts.ChunkSize)), humanize.IBytes(uint64(opts.MaxPartSize)))
	}

	opts.Redis = inflight.DefaultRedisConfig()
	opts.Redis.Addr = f.String("redis_addr")
	opts.Redis.Password = f.String("redis_password")
	opts.Redis.DB = f.Int("redis_db")
	opts.Redis.TTL = opts.InflightTTL

	return opts, nil
}

func initializeTracker(opts ServerOpts) (inflight.Tracker, func(), error) {
	switch opts.InflightBackend {
	case inflightMemory, "":
		return inflight.NewMemory(inflight.WithTTL(opts.InflightTTL)), func() {}, nil
	case inflightRedis:
		r, err := inflight.NewRedis(opts.Redis)
		if err != nil {
			return nil, nil, err
		}
		addPingCheck("redis", r)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis tracker")
			}
		}, nil
	case inflightNone:
		return inflight.Nop{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown inflight_backend %q", opts.InflightBackend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// addPingCheck registers v with /ready when it can be pinged.
func addPingCheck(name string, v any) {
	p, ok := v.(pinger)
	if !ok {
		return
	}
	debug.AddReadyCheck(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	})
}

func startHTTPServer(handler http.Handler, ip string, port int, idleTimeout time.Duration) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := utils.NewListener(addr, idleTimeout)
	if err != nil {
		logger.Fatal().Err(err).Str("http_addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	<-stopChan
}
