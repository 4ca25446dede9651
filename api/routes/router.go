package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/partyshop-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/partyshop-backend/api/controllers/cart"
	favoritescontrollers "github.com/angelmondragon/partyshop-backend/api/controllers/favorites"
	ordercontrollers "github.com/angelmondragon/partyshop-backend/api/controllers/orders"
	"github.com/angelmondragon/partyshop-backend/api/middleware"
	"github.com/angelmondragon/partyshop-backend/internal/auth"
	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/checkout"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/guestmigration"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/orders"
	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/internal/users"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/partyshop-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer needs for
// rate limiting and idempotent replays.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// IdentityResolver turns request credentials into a caller identity.
type IdentityResolver interface {
	Resolve(bearer, guestToken string) (identity.Identity, error)
}

// Dependencies carries everything the router mounts. Nil services produce
// 500 responses from their handlers. A nil Redis disables rate limiting and
// idempotent replays.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Resolver IdentityResolver
	Redis    RedisStore
	DB       controllers.Pinger
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer

	Auth      auth.Service
	Users     users.Service
	Products  products.Service
	Cart      cart.Service
	Favorites favorites.Service
	Migration guestmigration.Service
	Checkout  checkout.Service
	Orders    orders.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
	)
	if deps.Metrics != nil {
		r.Use(middleware.Logging(logg, deps.Metrics))
	} else {
		// A typed nil would defeat the observer nil check.
		r.Use(middleware.Logging(logg, nil))
	}
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		if pinger, ok := deps.Redis.(controllers.Pinger); ok {
			checks["redis"] = pinger
		}
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks))
	})
	r.Handle("/metrics", metricsHandler(deps.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Redis, cfg.RateLimit.IPLimit, cfg.RateLimit.Window, logg))

		// Provider notifications carry no caller identity.
		r.Post("/cart/webhook", cartcontrollers.CheckoutWebhook(deps.Checkout, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity(deps.Resolver, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Route("/auth", func(r chi.Router) {
				r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
				r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
				r.Post("/guest", controllers.AuthGuest(deps.Auth, logg))
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.ProductList(deps.Products, logg))
				r.Get("/categories", controllers.ProductCategories(deps.Products, logg))
				r.Get("/{productId}", controllers.ProductGet(deps.Products, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin(logg))
					r.Post("/", controllers.ProductCreate(deps.Products, logg))
					r.Put("/{productId}", controllers.ProductUpdate(deps.Products, logg))
					r.Delete("/{productId}", controllers.ProductDelete(deps.Products, logg))
				})
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartGet(deps.Cart, logg))
				r.Post("/add", cartcontrollers.CartAdd(deps.Cart, logg))
				r.Post("/remove", cartcontrollers.CartRemove(deps.Cart, logg))
				r.Put("/update-quantity", cartcontrollers.CartUpdateQuantity(deps.Cart, logg))
				r.Post("/clear", cartcontrollers.CartClear(deps.Cart, logg))
				r.Get("/participants", cartcontrollers.ParticipantsList(deps.Cart, logg))
				r.Post("/participants/add", cartcontrollers.ParticipantsAdd(deps.Cart, logg))
				r.Post("/participants/remove", cartcontrollers.ParticipantsRemove(deps.Cart, logg))
				r.Post("/checkout", cartcontrollers.CartCheckout(deps.Checkout, logg))
				r.With(middleware.RequireAuth(logg)).Post("/migrate", cartcontrollers.CartMigrate(deps.Migration, logg))
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoritescontrollers.FavoritesGet(deps.Favorites, logg))
				r.Get("/check/{productId}", favoritescontrollers.FavoritesCheck(deps.Favorites, logg))
				r.Post("/add", favoritescontrollers.FavoritesAdd(deps.Favorites, logg))
				r.Post("/remove", favoritescontrollers.FavoritesRemove(deps.Favorites, logg))
				r.Post("/clear", favoritescontrollers.FavoritesClear(deps.Favorites, logg))
				r.With(middleware.RequireAuth(logg)).Post("/migrate", favoritescontrollers.FavoritesMigrate(deps.Migration, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(middleware.RequireAuth(logg))
				r.Post("/create", ordercontrollers.Create(deps.Orders, logg))
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/stats", ordercontrollers.Stats(deps.Orders, logg))
				r.With(middleware.RequireAdmin(logg)).Get("/stats/admin", ordercontrollers.AdminStats(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Get(deps.Orders, logg))
				r.Put("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.With(middleware.RequireAdmin(logg)).Put("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.With(middleware.RequireAdmin(logg)).Delete("/{orderId}", ordercontrollers.Delete(deps.Orders, logg))
			})

			r.Route("/profile", func(r chi.Router) {
				r.Use(middleware.RequireAuth(logg))
				r.Get("/", controllers.ProfileGet(deps.Users, logg))
				r.Put("/", controllers.ProfileUpdate(deps.Users, logg))
				r.Delete("/", controllers.ProfileDelete(deps.Users, logg))
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Get("/", controllers.UsersList(deps.Users, logg))
				r.Post("/{userId}/admin", controllers.UsersToggleAdmin(deps.Users, logg))
				r.Delete("/{userId}", controllers.UsersDelete(deps.Users, logg))
			})
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
