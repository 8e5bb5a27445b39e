package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/api"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/auth"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/wstail"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/ratelimit"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/circuitbreaker"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/config"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/decoder"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/escrowview"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/indexer"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/metrics"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store/postgres"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/tracing"
)

const (
	escrowViewRefreshInterval = 5 * time.Minute
	dbPoolStatsInterval       = 15 * time.Second
	serviceName               = "clawed-escrow-indexer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting clawed-escrow indexer",
		"chain_rpc", cfg.Chain.RPCURL,
		"chain_id", cfg.Chain.ChainID,
		"contract", cfg.Escrow.ContractAddress,
		"api_port", cfg.Server.APIPort,
		"health_port", cfg.Server.HealthPort,
	)

	shutdownTracing, err := tracing.Init(context.Background(), serviceName, cfg.Escrow.TracingEndpoint, cfg.Escrow.TracingInsecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Escrow.TracingEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Escrow.TracingEndpoint)
	}

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.RunMigrations(cfg.Chain.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	cursorRepo := postgres.NewCursorRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	taskRepo := postgres.NewTaskRepo(db)
	submissionRepo := postgres.NewSubmissionRepo(db)
	proofRepo := postgres.NewProofRepo(db)
	metadataRepo := postgres.NewMetadataRepo(db)
	nonceRepo := postgres.NewNonceRepo(db)
	projectionWriter := postgres.NewProjectionWriter(db)

	rpcClient := rpc.NewClient(cfg.Chain.RPCURL, logger.With("component", "rpc_client"))
	dec, err := decoder.New(cfg.Chain.ChainID, cfg.Escrow.ContractAddress)
	if err != nil {
		logger.Error("failed to build log decoder", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewLimiter(20, 40, fmt.Sprintf("%d", cfg.Chain.ChainID))
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.IndexerCircuitState.Set(float64(to))
			logger.Warn("rpc circuit breaker state changed", "from", from, "to", to)
		},
	})

	engine := indexer.New(rpcClient, dec, cursorRepo, projectionWriter, limiter, breaker, logger, indexer.Config{
		ChainID:             cfg.Chain.ChainID,
		ContractAddress:     cfg.Escrow.ContractAddress,
		Confirmations:       cfg.Escrow.Confirmations,
		BatchBlocks:         cfg.Escrow.BatchBlocks,
		FarBehindThreshold:  cfg.Escrow.FarBehindThreshold,
		BootstrapTailBlocks: cfg.Escrow.BootstrapTailBlocks,
		ForceFromBlock:      cfg.Escrow.ForceFromBlock,
	})

	verifier := auth.New(nonceRepo).WithWindows(cfg.Auth.SignatureWindow, cfg.Auth.NonceTTL)

	viewCache := escrowview.NewCache(rpcClient, cfg.Escrow.ContractAddress, logger.With("component", "escrow_view"))

	apiServer := &api.Server{
		ChainID:         cfg.Chain.ChainID,
		ContractAddress: cfg.Escrow.ContractAddress,
		Tasks:           taskRepo,
		Submissions:     submissionRepo,
		Events:          eventRepo,
		Proofs:          proofRepo,
		Metadata:        metadataRepo,
		Verifier:        verifier,
		Engine:          engine,
		View:            viewCache,
		Logger:          logger.With("component", "api"),
		RateLimitWindow: cfg.API.RateLimitWindow,
		RateLimitMax:    cfg.API.RateLimitMax,
		TrustProxy:      cfg.API.TrustProxy,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gCtx, cfg.Escrow.PollInterval)
	})

	if cfg.Chain.WSURL != "" {
		tail := wstail.New(cfg.Chain.WSURL, cfg.Escrow.ContractAddress, engine.Topics(), logger.With("component", "live_tail"))
		g.Go(func() error {
			return tail.Run(gCtx, func(log *rpc.Log) {
				if err := engine.ApplyTailLog(gCtx, log); err != nil {
					logger.Warn("live tail log apply failed", "error", err)
				}
			})
		})
	}

	g.Go(func() error {
		viewCache.Run(gCtx, escrowViewRefreshInterval)
		return nil
	})

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		return runAPIServer(gCtx, cfg.Server.APIPort, apiServer, logger)
	})

	startDBPoolStatsPump(gCtx, db.DB, dbPoolStatsInterval, logger)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("indexer shut down gracefully")
}

func runAPIServer(ctx context.Context, port int, apiServer *api.Server, logger *slog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: apiServer.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("api server shutdown error", "error", err)
		}
	}()

	logger.Info("api server started", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

type dbStatsProvider interface {
	Stats() sql.DBStats
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBPoolOpen.Set(float64(stats.OpenConnections))
				metrics.DBPoolInUse.Set(float64(stats.InUse))
				metrics.DBPoolIdle.Set(float64(stats.Idle))
				metrics.DBPoolWaitCount.Set(float64(stats.WaitCount))
				metrics.DBPoolWaitDurationSeconds.Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}
