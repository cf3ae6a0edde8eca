package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/cache"
	"github.com/nikolayk812/booksettle/internal/config"
	"github.com/nikolayk812/booksettle/internal/delivery"
	"github.com/nikolayk812/booksettle/internal/events"
	"github.com/nikolayk812/booksettle/internal/gateway"
	"github.com/nikolayk812/booksettle/internal/httpapi"
	"github.com/nikolayk812/booksettle/internal/migrations"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/nikolayk812/booksettle/internal/reconcile"
	"github.com/nikolayk812/booksettle/internal/repository"
	"github.com/nikolayk812/booksettle/internal/settlement"
	"github.com/nikolayk812/booksettle/internal/storage"
	"github.com/nikolayk812/booksettle/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	listenAddr := flag.String("addr", cfg.ListenAddr, "HTTP listen address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "booksettle", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry.Setup: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return fmt.Errorf("migrations.Apply: %w", err)
	}

	orders := repository.NewOrder(pool)
	listingRepo := repository.NewListing(pool)
	library := repository.NewLibrary(pool)
	payments := repository.NewPayment(pool)
	settlements := repository.NewSettlement(pool)

	var (
		listings    port.ListingReader      = listingRepo
		invalidator port.ListingInvalidator = cache.NoopInvalidator
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis.ParseURL: %w", err)
		}

		client := redis.NewClient(opts)
		defer client.Close()

		listingCache, err := cache.NewListingCache(client, listingRepo, cfg.CacheTTL, logger)
		if err != nil {
			return fmt.Errorf("cache.NewListingCache: %w", err)
		}

		listings = listingCache
		invalidator = listingCache
	}

	publisher := events.Discard
	if cfg.RabbitMQURL != "" {
		p, err := events.Dial(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("events.Dial: %w", err)
		}
		defer p.Close()

		publisher = p
	}

	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayBaseURL,
		ServerKey: cfg.GatewayServerKey,
		Timeout:   cfg.GatewayTimeout,
		MaxTries:  cfg.GatewayMaxTries,
	}, logger)
	if err != nil {
		return fmt.Errorf("gateway.NewClient: %w", err)
	}

	settler, err := settlement.NewSettler(listingRepo, library, settlements, invalidator, logger)
	if err != nil {
		return fmt.Errorf("settlement.NewSettler: %w", err)
	}

	intake, err := settlement.NewIntake(orders, listings, payments, settlements, settler, publisher, logger)
	if err != nil {
		return fmt.Errorf("settlement.NewIntake: %w", err)
	}

	reconciler, err := reconcile.New(orders, payments, gw, settler, publisher, logger)
	if err != nil {
		return fmt.Errorf("reconcile.New: %w", err)
	}

	signer, err := storage.NewSigner(cfg.ContentBaseURL, []byte(cfg.ContentSecret), nil)
	if err != nil {
		return fmt.Errorf("storage.NewSigner: %w", err)
	}

	gate, err := delivery.NewGate(library, listings, signer, cfg.ReadURLTTL, logger)
	if err != nil {
		return fmt.Errorf("delivery.NewGate: %w", err)
	}

	sessions, err := httpapi.NewSessionVerifier([]byte(cfg.SessionSecret), nil)
	if err != nil {
		return fmt.Errorf("httpapi.NewSessionVerifier: %w", err)
	}

	handler, err := httpapi.NewRouter(httpapi.Config{
		Orders:   intake,
		Payments: reconciler,
		Library:  gate,
		Sessions: sessions,
		Content:  storage.ContentHandler(signer, os.DirFS(cfg.ContentRoot)),
	})
	if err != nil {
		return fmt.Errorf("httpapi.NewRouter: %w", err)
	}

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", *listenAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server.ListenAndServe: %w", err)
	}
}
