package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/haggle/haggle-api/internal/config"
	"github.com/haggle/haggle-api/internal/domain/ledger"
	"github.com/haggle/haggle-api/internal/domain/oracle"
	"github.com/haggle/haggle-api/internal/domain/pricing"
	"github.com/haggle/haggle-api/internal/domain/settlement"
	"github.com/haggle/haggle-api/internal/middleware"
	"github.com/haggle/haggle-api/internal/pkg/database"
	"github.com/haggle/haggle-api/internal/pkg/jwt"
	pkgresponse "github.com/haggle/haggle-api/internal/pkg/response"
	"github.com/haggle/haggle-api/internal/pkg/x402"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Haggle API")

	// ---------- Stores ----------
	var ledgerStore ledger.Store
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)

		pg := ledger.NewPostgresStore(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure ledger schema")
		}
		ledgerStore = pg
	} else {
		log.Warn().Msg("DATABASE_URL not configured, using in-memory ledger")
		ledgerStore = ledger.NewMemoryStore()
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	var pricingStore pricing.Store
	var settlementCache settlement.Cache
	if redis != nil {
		pricingStore = pricing.NewRedisStore(redis, 0)
		settlementCache = settlement.NewRedisCache(redis, 0)
	} else {
		pricingStore = pricing.NewMemoryStore()
		settlementCache = settlement.NewMemoryCache()
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTTTL)

	// ---------- Services ----------
	ledgerService := ledger.NewService(ledgerStore)
	pricingService := pricing.NewService(pricingStore, nil)

	var advisor pricing.Advisor
	if cfg.OracleAPIKey != "" {
		advisor = oracle.NewClient(oracle.Config{
			BaseURL: cfg.OracleBaseURL,
			APIKey:  cfg.OracleAPIKey,
			Model:   cfg.OracleModel,
			Timeout: cfg.OracleTimeout,
		})
	} else {
		log.Warn().Msg("Oracle API key not configured, negotiation uses fallback policy")
	}

	railConfig := x402.RailConfig{
		Network:       cfg.SettlementNetwork,
		PayTo:         cfg.SettlementPayTo,
		Asset:         cfg.SettlementAsset,
		AssetDecimals: cfg.SettlementDecimals,
	}
	facilitator := x402.NewClient(x402.Config{
		BaseURL: cfg.FacilitatorURL,
		APIKey:  cfg.FacilitatorAPIKey,
	})
	rail := settlement.NewX402Rail(facilitator, railConfig)
	settlementService := settlement.NewService(ledgerService, rail, settlementCache, cfg.RecoveryWindow)

	// ---------- Handlers ----------
	ledgerHandler := ledger.NewHandler(ledgerService)
	pricingHandler := pricing.NewHandler(pricingService, advisor)
	settlementHandler := settlement.NewHandler(settlementService, pricingService)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))
	r.Use(middleware.Timeout(45 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/credits", ledgerHandler.Routes(authMiddleware))
		r.Mount("/pricing", pricingHandler.Routes(authMiddleware))
		r.Mount("/content", settlementHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
