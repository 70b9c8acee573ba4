// Command fk-server starts the FormKeeper gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/formkeeper/internal/api"
	"github.com/and161185/formkeeper/internal/config"
	"github.com/and161185/formkeeper/internal/crypto"
	"github.com/and161185/formkeeper/internal/limiter"
	"github.com/and161185/formkeeper/internal/migrate"
	"github.com/and161185/formkeeper/internal/oauth"
	"github.com/and161185/formkeeper/internal/repository"
	"github.com/and161185/formkeeper/internal/repository/memory"
	"github.com/and161185/formkeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/formkeeper/internal/server/grpc"
	"github.com/and161185/formkeeper/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens the token store, and serves gRPC plus /metrics.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Token store
	var (
		tokens repository.TokenRepository
		lim    limiter.Limiter
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("memory token store: sessions do not survive restarts")
		tokens = memory.NewTokenRepo()
		lim = limiter.NewMemory(limiter.DefaultPolicy)
	default:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("postgres", zap.Error(err))
		}
		defer db.Close()

		sealer, err := crypto.NewSealer(cfg.SealSecret())
		if err != nil {
			logger.Fatal("token sealer", zap.Error(err))
		}
		tokens = postgres.NewTokenRepo(db, sealer)
		lim = limiter.NewPG(db.Pool, limiter.DefaultPolicy)
	}

	// Services
	exchanger := oauth.NewHTTPExchanger(oauth.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, &http.Client{Timeout: cfg.RefreshTimeout})
	sessions := service.NewSessionTokens([]byte(cfg.JWTKey), cfg.SessionTTL)
	creds := service.NewCredentialService(tokens, exchanger, sessions, logger.Named("credentials"),
		service.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	forms := service.NewFormService(creds, logger.Named("forms"))

	app := grpcserver.New(creds, forms, sessions, []byte(cfg.SignInKey), grpcserver.WithLimiter(lim), grpcserver.WithLogger(logger.Named("grpc")))

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			app.AuthUnary(),
		),
	}
	if cfg.Plaintext {
		logger.Warn("serving without TLS")
	} else {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	api.RegisterFormKeeperServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Plaintext))
		errCh <- s.Serve(lis)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsSrv.Shutdown(shutdownCtx)
			cancel()
		}
		// graceful shutdown
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
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
