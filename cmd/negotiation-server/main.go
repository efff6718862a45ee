// Command negotiation-server runs the data-exchange negotiation service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dataspace-foundry/negotiation/internal/app"
	"github.com/dataspace-foundry/negotiation/internal/app/httpapi"
	"github.com/dataspace-foundry/negotiation/internal/app/metrics"
	"github.com/dataspace-foundry/negotiation/internal/app/storage/postgres"
	"github.com/dataspace-foundry/negotiation/internal/config"
	"github.com/dataspace-foundry/negotiation/internal/contract"
	"github.com/dataspace-foundry/negotiation/internal/httputil"
	"github.com/dataspace-foundry/negotiation/internal/middleware"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// A missing .env is fine; environment variables may come from the runtime.
	_ = godotenv.Load()

	log := logger.NewDefault("negotiation-server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		defer db.Close()

		pg := postgres.New(db)
		stores = app.Stores{
			Exchanges:    pg,
			Negotiations: pg,
			Ecosystems:   pg,
			Offerings:    pg,
			Participants: pg,
		}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database DSN configured, using in-memory storage")
	}

	m := metrics.New()

	contractClient := contract.NewClient(httputil.NewServiceClient(httputil.ServiceClientConfig{
		BaseURL:       cfg.ContractService.Endpoint,
		ServiceKey:    cfg.ContractService.ServiceKey,
		ServiceSecret: cfg.ContractService.ServiceSecret,
		Timeout:       cfg.ContractService.Timeout,
	}), contract.WithRecorder(m))

	application := app.New(app.Options{
		Stores:         stores,
		Contracts:      contractClient,
		PolicyInjector: contractClient,
		EcosystemGW:    contractClient,
		CatalogBaseURL: cfg.Catalog.BaseURL,
		Metrics:        m,
		Logger:         log,
	})

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware(application.Metrics))

	cors := middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins)
	router.Use(cors.Handler)

	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, log, []string{"/health", "/metrics"})
	router.Use(auth.Handler)

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		router.Use(limiter.Handler)
	}

	router.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	handler := httpapi.NewHandler(application.Exchanges, application.Ecosystems, application.Metrics, log.WithField("component", "httpapi"))
	handler.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("negotiation service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
