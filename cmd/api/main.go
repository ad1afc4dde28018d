package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/wallet-engine/internal/api"
	"github.com/example/wallet-engine/internal/config"
	"github.com/example/wallet-engine/internal/security"
	"github.com/example/wallet-engine/internal/wallet"
	"github.com/example/wallet-engine/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, cleanup, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	allowlist, err := security.ParseCIDRAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	var rateLimiter *security.RedisTokenBucket
	var redisClient *redis.Client
	if cfg.RateLimitCapacity > 0 {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "wallet_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillPerSec,
		}
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		Service:      wallet.NewService(store),
		Auditor:      audit.NewChainLogger(),
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}

	if cfg.TLSEnabled() {
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile:          cfg.TLSCertFile,
			KeyFile:           cfg.TLSKeyFile,
			CAFile:            cfg.TLSClientCAFile,
			RequireClientAuth: cfg.RequireClientCert,
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("wallet engine listening", "addr", cfg.ListenAddr, "backend", cfg.StorageBackend, "tls", cfg.TLSEnabled())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (wallet.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := wallet.NewPostgresStore(pool, cfg.LockTimeout)
		if err := store.Migrate(context.Background()); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case config.BackendSqlite:
		store, err := wallet.OpenSqlite(cfg.SqlitePath, cfg.LockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return wallet.NewMemoryStore(cfg.LockTimeout), func() {}, nil
	}
}
