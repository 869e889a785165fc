// Command cems-server starts the calendar event management gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/cems/internal/cache"
	"github.com/and161185/cems/internal/config"
	pkgcrypto "github.com/and161185/cems/internal/crypto"
	"github.com/and161185/cems/internal/kv"
	"github.com/and161185/cems/internal/limiter"
	"github.com/and161185/cems/internal/migrate"
	"github.com/and161185/cems/internal/repository/postgres"
	grpcserver "github.com/and161185/cems/internal/server/grpc"
	"github.com/and161185/cems/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the gRPC and metrics servers.
func main() {
	// Flags override values from the config file.
	cfgPath := flag.String("config", "", "path to YAML config")
	addr := flag.String("addr", "", "listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN")
	jwtKey := flag.String("jwt-key", "", "HS256 signing key")
	accessTTL := flag.Duration("access-ttl", 0, "access token TTL")
	maxBatch := flag.Int("max-batch", 0, "max createEventsBatch size")
	kvPath := flag.String("kv-path", "", "badger directory (empty: in-memory)")
	certFile := flag.String("tls-cert", "", "TLS certificate (PEM)")
	keyFile := flag.String("tls-key", "", "TLS private key (PEM)")
	dev := flag.Bool("dev", false, "development logging and server reflection")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Listen = *addr
		case "dsn":
			cfg.DSN = *dsn
		case "jwt-key":
			cfg.JWTKey = *jwtKey
		case "access-ttl":
			cfg.AccessTTL = *accessTTL
		case "max-batch":
			cfg.MaxBatch = *maxBatch
		case "kv-path":
			cfg.KVPath = *kvPath
		case "tls-cert":
			cfg.TLSCert = *certFile
		case "tls-key":
			cfg.TLSKey = *keyFile
		case "dev":
			cfg.Dev = *dev
		}
	})
	if env := os.Getenv("CEMS_JWT_KEY"); env != "" && cfg.JWTKey == "" {
		cfg.JWTKey = env
	}
	cfg.Normalize()

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Listen),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()
	store := postgres.NewStore(db)

	// Expiring state: revocations, read cache, limiter counters.
	kvs, err := kv.Open(kv.Config{Path: cfg.KVPath}, logger.Named("kv"))
	if err != nil {
		logger.Fatal("kv open", zap.Error(err))
	}
	defer func() { _ = kvs.Close() }()

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.KVGCSchedule, kvs.RunGC); err != nil {
		logger.Fatal("kv gc schedule", zap.String("spec", cfg.KVGCSchedule), zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	lim := limiter.NewKV(kvs, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)
	readCache := cache.New(kvs, cfg.CacheTTL, logger.Named("cache"))

	// Services
	authSvc := service.NewAuthService(store.Users(), []byte(cfg.JWTKey), cfg.AccessTTL, lim, kvs, logger.Named("auth")).
		WithPasswordParams(pkgcrypto.Params{
			Time:      cfg.Password.Time,
			MemoryKiB: cfg.Password.MemoryKiB,
			Threads:   cfg.Password.Threads,
		})
	eventSvc := service.NewEventService(store, cfg.MaxBatch,
		service.ListLimits{Default: cfg.List.DefaultLimit, Max: cfg.List.MaxLimit}, logger.Named("events"))
	sharingSvc := service.NewSharingService(store, logger.Named("sharing"))
	historySvc := service.NewHistoryService(store, readCache)

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.MetricsUnary(),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(authSvc),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; tokens travel in clear text")
	}
	s := grpc.NewServer(opts...)

	// App service
	app := grpcserver.New(authSvc, eventSvc, sharingSvc, historySvc)
	grpcserver.RegisterCalendarServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsListen))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	// graceful shutdown
	hs.Shutdown()
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(sctx)
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Stop()
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
