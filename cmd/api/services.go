package main

import (
	"github.com/angelmondragon/partyshop-backend/internal/auth"
	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/checkout"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/guestmigration"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/orders"
	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/internal/users"
	pkgauth "github.com/angelmondragon/partyshop-backend/pkg/auth"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
	"github.com/angelmondragon/partyshop-backend/pkg/square"
)

type services struct {
	resolver  *identity.Resolver
	auth      auth.Service
	users     users.Service
	products  products.Service
	cart      cart.Service
	favorites favorites.Service
	migration guestmigration.Service
	checkout  checkout.Service
	orders    orders.Service
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, squareClient *square.Client) (*services, error) {
	gdb := dbClient.DB()

	resolver, err := identity.NewResolver(pkgauth.NewVerifier(cfg.JWT))
	if err != nil {
		return nil, err
	}

	locker, err := redis.NewLocker(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockWait)
	if err != nil {
		return nil, err
	}

	userRepo := users.NewRepository(gdb)
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(userRepo, dbClient, logg)
	if err != nil {
		return nil, err
	}

	productService, err := products.NewService(products.NewRepository(gdb), logg, products.CacheOptions{
		Size: cfg.Cache.Size,
		TTL:  cfg.Cache.TTL,
	})
	if err != nil {
		return nil, err
	}

	cartRepo := cart.NewRepository(gdb)
	cartService, err := cart.NewService(cartRepo, dbClient, productService, locker, logg)
	if err != nil {
		return nil, err
	}

	favoritesRepo := favorites.NewRepository(gdb)
	favoritesService, err := favorites.NewService(favorites.ServiceParams{
		Repo:    favoritesRepo,
		Tx:      dbClient,
		Catalog: productService,
		Locker:  locker,
	})
	if err != nil {
		return nil, err
	}

	migrationService, err := guestmigration.NewService(guestmigration.Params{
		Tx:            dbClient,
		Locker:        locker,
		CartRepo:      cartRepo,
		FavoritesRepo: favoritesRepo,
		Carts:         cartService,
		Favorites:     favoritesService,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	provider, err := checkout.NewSquareProvider(squareClient)
	if err != nil {
		return nil, err
	}
	checkoutService, err := checkout.NewService(cartService, productService, provider, cfg.Checkout, cfg.Payments.Timeout, logg)
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gdb),
		CartRepo: cartRepo,
		Tx:       dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(gdb), logg),
		Locker:   locker,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		resolver:  resolver,
		auth:      authService,
		users:     userService,
		products:  productService,
		cart:      cartService,
		favorites: favoritesService,
		migration: migrationService,
		checkout:  checkoutService,
		orders:    orderService,
	}, nil
}
