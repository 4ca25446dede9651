package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/routes"
	"github.com/angelmondragon/partyshop-backend/internal/cron"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/metrics"
	"github.com/angelmondragon/partyshop-backend/pkg/migrate"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
	"github.com/angelmondragon/partyshop-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.FromConfig("api", cfg.App)
	responses.SetDebugDetails(!cfg.App.IsProd())

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	svcs, err := buildServices(cfg, logg, dbClient, redisClient, squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	refresher, err := newCategoriesRefresher(cfg, logg, svcs.products, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to create categories refresher", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:    cfg,
			Logger:    logg,
			Resolver:  svcs.resolver,
			Redis:     redisClient,
			DB:        dbClient,
			Metrics:   metrics.NewHTTPMetrics(registry),
			Gatherer:  registry,
			Auth:      svcs.auth,
			Users:     svcs.users,
			Products:  svcs.products,
			Cart:      svcs.cart,
			Favorites: svcs.favorites,
			Migration: svcs.migration,
			Checkout:  svcs.checkout,
			Orders:    svcs.orders,
		}),
	}

	go func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "categories refresher stopped", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
}

// newCategoriesRefresher runs the category refresh inside the API process,
// where the cache it warms lives.
func newCategoriesRefresher(cfg *config.Config, logg *logger.Logger, catalog interface {
	RefreshCategories(ctx context.Context) ([]string, error)
}, reg prometheus.Registerer) (*cron.Service, error) {
	job, err := cron.NewCategoriesRefreshJob(cron.CategoriesRefreshJobParams{Logger: logg, Catalog: catalog})
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry()
	if err := registry.Register(job, cfg.Cron.CategoriesCacheTTL); err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cron.NewLocalLock(),
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.CategoriesCacheTTL,
	})
}
