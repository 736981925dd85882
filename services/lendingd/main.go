package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	markets "lendcore/config"
	"lendcore/core/events"
	"lendcore/gateway/middleware"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/observability"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/rpc"
	"lendcore/services/lendingd/config"
	"lendcore/storage"
	"lendcore/storage/journal"
)

const serviceName = "lendingd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser, err := logging.SetupWithOptions(serviceName, cfg.Environment, cfg.Log.Logging())
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	defer logCloser.Close()
	logger.Info("configuration loaded", "config", cfg.Sanitized())

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		fatal(logger, "init telemetry", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, logger); err != nil {
		fatal(logger, "lendingd stopped", err)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()
	store := lending.NewStore(db)
	restored, found, err := store.Load()
	if err != nil {
		return fmt.Errorf("load pool state: %w", err)
	}

	market, err := markets.Load(cfg.MarketsPath)
	if err != nil {
		return err
	}
	strategies, err := market.Registry()
	if err != nil {
		return err
	}
	oracle, err := market.Oracle()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	poolMetrics, err := observability.NewLendingMetrics(registry)
	if err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	sinks := events.Fanout{observability.NewEventLogger(logger)}
	var hub *rpc.EventHub
	if cfg.Stream.Enabled {
		hub = rpc.NewEventHub(cfg.Stream.Buffer)
		sinks = append(sinks, hub)
	}
	var history *journal.Journal
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		if history, err = journal.New(db, logger); err != nil {
			return err
		}
		defer history.Close()
		sinks = append(sinks, history)
		logger.Info("event journal enabled", "driver", cfg.Journal.Driver)
	}
	emitter, err := observability.NewEventCounter(registry, sinks)
	if err != nil {
		return fmt.Errorf("register event metrics: %w", err)
	}
	rpcMetrics, err := observability.NewRPCMetrics(registry)
	if err != nil {
		return fmt.Errorf("register rpc metrics: %w", err)
	}

	pauses := nativecommon.NewPauses()
	opts := []lending.Option{
		lending.WithMetrics(poolMetrics),
		lending.WithEmitter(emitter),
		lending.WithSnapshotter(store),
		lending.WithPauses(pauses),
		lending.WithLogger(logger),
	}
	if found {
		opts = append(opts, lending.WithState(restored))
		logger.Info("restored pool state", "reserves", len(restored.ReserveList))
	}
	pool := lending.NewPool(oracle, strategies, market.ACL(), opts...)
	listed, err := market.Apply(pool)
	if err != nil {
		return fmt.Errorf("apply markets: %w", err)
	}
	logger.Info("markets applied", "listed", listed, "reserves", len(pool.ReservesList()))

	limiter := middleware.NewRateLimiter(rateLimits(cfg.RateLimit), logger)
	limiter.OnReject(rpcMetrics.RecordThrottle)
	httpObs, err := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: serviceName,
		LogRequests: true,
		Enabled:     true,
	}, registry, logger)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	server, err := rpc.NewServer(rpc.Config{
		Pool:                pool,
		Pauses:              pauses,
		Logger:              logger,
		Metrics:             rpcMetrics,
		Gatherer:            registry,
		Auth:                middleware.NewAuthenticator(cfg.Auth.Middleware(), logger),
		RateLimiter:         limiter,
		Observability:       httpObs,
		CORS:                middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Events:              hub,
		Journal:             history,
		AllowExplicitCaller: !cfg.Auth.Enabled,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if !cfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(cfg.Environment, "dev") && !loopback {
			listener.Close()
			return errors.New("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "address", cfg.ListenAddress, "tls", cfg.TLS.Enabled())
		if cfg.TLS.Enabled() {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.StorageLevelDB:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.NewLevelDB(cfg.DataDir, cfg.SyncWrites)
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case config.StorageBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "lending.db"), cfg.SyncWrites)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	default:
		return storage.NewMemDB(), nil
	}
}

func rateLimits(cfg config.RateLimitConfig) map[string]middleware.RateLimit {
	if cfg.PerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.PerMinute)
	}
	return map[string]middleware.RateLimit{"rpc": {RequestsPerMinute: cfg.PerMinute, Burst: burst}}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
