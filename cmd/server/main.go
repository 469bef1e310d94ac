package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/config"
	"github.com/glamgo/marketplace/internal/handler"
	"github.com/glamgo/marketplace/internal/middleware"
	"github.com/glamgo/marketplace/internal/repository"
	"github.com/glamgo/marketplace/internal/service"
	"github.com/glamgo/marketplace/pkg/cache"
	"github.com/glamgo/marketplace/pkg/db"
	"github.com/glamgo/marketplace/pkg/logger"
	"github.com/glamgo/marketplace/pkg/queue"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	pol, err := buildPolicies(cfg)
	if err != nil {
		zl.Fatal("invalid pricing or dispatch policy", zap.Error(err))
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres, zl)
	if err != nil {
		zl.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, zl)
	if err != nil {
		zl.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// ── Connect to RabbitMQ ─────────────────────────────
	broker, err := queue.Connect(ctx, cfg.RabbitMQ, zl)
	if err != nil {
		zl.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer broker.Close()

	// ── Initialize layers ───────────────────────────────
	catalogRepo := repository.NewCatalogRepository(pgPool, redisClient, cfg.Redis.CatalogCacheTTL, pol.commissionRate)
	providerRepo := repository.NewProviderRepository(pgPool)
	jobRepo := repository.NewJobRepository(pgPool)
	offerRepo := repository.NewOfferRepository(redisClient)
	notifier := service.NewQueueNotifier(broker)
	clock := service.SystemClock{}

	aggregator := service.NewPriceAggregator(pol.night, pol.pricing.Currency)
	pricingSvc := service.NewPricingService(catalogRepo, providerRepo, catalogRepo, aggregator, clock, pol.pricing, zl)
	scheduler := service.NewDispatchScheduler(pol.classifier, jobRepo, notifier, notifier, offerRepo, clock, zl)
	jobSvc := service.NewJobService(jobRepo, catalogRepo, providerRepo, scheduler, clock, cfg.Dispatch.JobTTL, zl)

	quoteHandler := handler.NewQuoteHandler(pricingSvc, zl)
	providerHandler := handler.NewProviderHandler(providerRepo, pol.classifier, zl)
	jobHandler := handler.NewJobHandler(jobSvc, offerRepo, zl)
	catalogHandler := handler.NewCatalogHandler(catalogRepo, zl)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	router.HandleFunc("/health", healthHandler(pgPool, redisClient, broker)).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	// Pricing
	api.HandleFunc("/quotes", quoteHandler.CreateQuote).Methods(http.MethodPost)
	api.HandleFunc("/providers/{provider_id}/dispatch-status", providerHandler.DispatchStatus).Methods(http.MethodGet)
	// Catalog
	api.HandleFunc("/services/{service_id}", catalogHandler.GetService).Methods(http.MethodGet)
	api.HandleFunc("/services/{service_id}/cache", catalogHandler.InvalidateCache).Methods(http.MethodDelete)
	// Dispatch jobs
	api.HandleFunc("/jobs", jobHandler.CreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/dispatch", jobHandler.Dispatch).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/claim", jobHandler.Claim).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/cancel", jobHandler.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/offers", jobHandler.Offers).Methods(http.MethodGet)

	limiter, err := middleware.NewRateLimiter(cfg.RateLimit, zl)
	if err != nil {
		zl.Fatal("invalid rate limit config", zap.Error(err))
	}
	api.Use(limiter.Middleware)

	var h http.Handler = router
	h = middleware.CORS(h)
	h = middleware.RequestLogger(zl)(h)
	h = middleware.Recoverer(zl)(h)

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("server listening",
			zap.String("addr", cfg.Server.ServerAddr()),
			zap.String("currency", pol.pricing.Currency),
			zap.String("timezone", cfg.Pricing.Timezone))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
		return
	}

	zl.Info("server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG, Redis and RabbitMQ connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client, broker *queue.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		check := func(name string, err error) {
			if err != nil {
				resp.Status = "degraded"
				resp.Services[name] = "unhealthy: " + err.Error()
				return
			}
			resp.Services[name] = "healthy"
		}
		check("postgres", db.HealthCheck(r.Context(), pgPool))
		check("redis", cache.HealthCheck(r.Context(), redisClient))
		check("rabbitmq", broker.HealthCheck())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
