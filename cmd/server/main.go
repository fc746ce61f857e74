// Package main initializes and starts the stamp verification server,
// setting up configuration, logging, database connections, repositories,
// the token issuer, services, handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/smartstamp/internal/config"
	"github.com/atinyakov/smartstamp/internal/credential"
	"github.com/atinyakov/smartstamp/internal/db"
	"github.com/atinyakov/smartstamp/internal/logger"
	"github.com/atinyakov/smartstamp/internal/matcher"
	"github.com/atinyakov/smartstamp/internal/metrics"
	"github.com/atinyakov/smartstamp/internal/repository"
	"github.com/atinyakov/smartstamp/internal/server/handler/http"
	"github.com/atinyakov/smartstamp/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line, config file and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	if options.AuditRetention > 0 {
		db.StartAuditLogCleaner(ctx, postgresDB,
			options.AuditCleanupInterval,
			options.AuditRetention,
			zapLogger,
		)
	}

	// Load the signing key and build the token issuer.
	key, err := credential.LoadOrGenerate(options.PrivateKeyPath, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot load signing key", zap.Error(err))
	}
	issuer, err := credential.NewIssuer(key)
	if err != nil {
		zapLogger.Fatal("cannot create token issuer", zap.Error(err))
	}
	zapLogger.Info("token issuer ready", zap.String("kid", issuer.KeyID()))
	go reloadKeyOnHangup(ctx, issuer, options.PrivateKeyPath, zapLogger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize repositories.
	verifyRepo := repository.NewPostgresVerifyRepository(postgresDB)
	adminRepo := repository.NewPostgresAdminRepository(postgresDB)

	// Initialize business-logic services.
	verifyService := service.NewVerifyService(verifyRepo, issuer, service.VerifyConfig{
		Tolerance: matcher.Tolerance{
			MSE:      options.ToleranceMSE,
			MaxError: options.ToleranceMax,
		},
		TokenTTL:       options.TokenTTL,
		StorageTimeout: options.StorageTimeout,
	}, zapLogger, m)
	adminService := service.NewAdminService(adminRepo)

	handlers := http.Handlers{
		Verify:  &http.VerifyHandler{VerifyService: verifyService},
		Keys:    &http.KeysHandler{Keys: issuer},
		Health:  &http.HealthHandler{DB: postgresDB, Version: cmp.Or(version, "dev")},
		Metrics: promhttp.Handler(),
	}
	if options.AdminToken != "" {
		handlers.Admin = &http.AdminHandler{AdminService: adminService}
	} else {
		zapLogger.Warn("admin token not set, admin API disabled")
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(handlers, options.AdminToken, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	useTLS := options.TLSCert != "" && options.TLSKey != ""
	zapLogger.Info("starting server", zap.String("addr", options.Address), zap.Bool("tls", useTLS))
	if useTLS {
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// reloadKeyOnHangup re-reads the signing key from path on every SIGHUP and
// swaps it into issuer. A failed reload keeps the current key.
func reloadKeyOnHangup(ctx context.Context, issuer *credential.Issuer, path string, log *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			key, err := credential.LoadPrivateKey(path)
			if err != nil {
				log.Error("signing key reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := issuer.Rotate(key); err != nil {
				log.Error("signing key rotation failed", zap.Error(err))
				continue
			}
			log.Info("signing key rotated", zap.String("kid", issuer.KeyID()))
		}
	}
}
