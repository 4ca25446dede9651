// Package guestmigration folds a guest's cart and favorites into the
// authenticated user's, then retires the guest rows.
package guestmigration

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/ownerlock"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	ReasonAuthRequired       = "AUTH_REQUIRED"
	ReasonGuestTokenRequired = "GUEST_TOKEN_REQUIRED"
)

type Mode string

const (
	ModeNoop    Mode = "noop"
	ModeRekeyed Mode = "rekeyed"
	ModeMerged  Mode = "merged"
)

// errAlreadyClaimed aborts the transaction when a concurrent caller retired
// the guest row first.
var errAlreadyClaimed = errors.New("guest entity already migrated")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	Get(ctx context.Context, owner identity.Owner) (*cart.View, error)
}

type favoritesReader interface {
	Get(ctx context.Context, owner identity.Owner) (*favorites.View, error)
}

type CartResult struct {
	Migrated bool       `json:"migrated"`
	Mode     Mode       `json:"mode"`
	Cart     *cart.View `json:"cart"`
}

type FavoritesResult struct {
	Migrated  bool            `json:"migrated"`
	Mode      Mode            `json:"mode"`
	Favorites *favorites.View `json:"favorites"`
}

// Service runs guest-to-user migrations.
type Service interface {
	MigrateCart(ctx context.Context, caller identity.Identity, guestToken string) (*CartResult, error)
	MigrateFavorites(ctx context.Context, caller identity.Identity, guestToken string) (*FavoritesResult, error)
}

type Params struct {
	Tx            txRunner
	Locker        ownerlock.Locker
	CartRepo      *cart.Repository
	FavoritesRepo *favorites.Repository
	Carts         cartReader
	Favorites     favoritesReader
	Logger        *logger.Logger
}

type service struct {
	tx        txRunner
	locker    ownerlock.Locker
	cartRepo  *cart.Repository
	favRepo   *favorites.Repository
	carts     cartReader
	favorites favoritesReader
	logg      *logger.Logger
}

func NewService(p Params) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, errors.New("transaction runner required")
	case p.Locker == nil:
		return nil, errors.New("owner locker required")
	case p.CartRepo == nil || p.Carts == nil:
		return nil, errors.New("cart repository and reader required")
	case p.FavoritesRepo == nil || p.Favorites == nil:
		return nil, errors.New("favorites repository and reader required")
	}
	return &service{
		tx:        p.Tx,
		locker:    p.Locker,
		cartRepo:  p.CartRepo,
		favRepo:   p.FavoritesRepo,
		carts:     p.Carts,
		favorites: p.Favorites,
		logg:      p.Logger,
	}, nil
}

func (s *service) MigrateCart(ctx context.Context, caller identity.Identity, guestToken string) (*CartResult, error) {
	user, guest, err := preconditions(caller, guestToken)
	if err != nil {
		return nil, err
	}

	mode := ModeNoop
	err = s.withLocks(ctx, ownerlock.ScopeCart, guest, user, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			mode, err = mergeCart(ctx, s.cartRepo.WithTx(tx), guest, user)
			return err
		})
	})
	if errors.Is(err, errAlreadyClaimed) {
		mode, err = ModeNoop, nil
	}
	if err != nil {
		return nil, wrap(err, "migrate cart")
	}
	s.logResult(ctx, "cart", mode, user)

	view, err := s.carts.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	return &CartResult{Migrated: mode != ModeNoop, Mode: mode, Cart: view}, nil
}

func (s *service) MigrateFavorites(ctx context.Context, caller identity.Identity, guestToken string) (*FavoritesResult, error) {
	user, guest, err := preconditions(caller, guestToken)
	if err != nil {
		return nil, err
	}

	mode := ModeNoop
	err = s.withLocks(ctx, ownerlock.ScopeFavorites, guest, user, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			mode, err = mergeFavorites(ctx, s.favRepo.WithTx(tx), guest, user)
			return err
		})
	})
	if errors.Is(err, errAlreadyClaimed) {
		mode, err = ModeNoop, nil
	}
	if err != nil {
		return nil, wrap(err, "migrate favorites")
	}
	s.logResult(ctx, "favorites", mode, user)

	view, err := s.favorites.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	return &FavoritesResult{Migrated: mode != ModeNoop, Mode: mode, Favorites: view}, nil
}

// withLocks holds the guest lock, then the user lock, so a migration cannot
// interleave with another migration of the same token or with the user's own
// writes. Single-owner writers take one lock, so the order cannot deadlock.
func (s *service) withLocks(ctx context.Context, scope string, guest, user identity.Owner, fn func(ctx context.Context) error) error {
	return ownerlock.Run(ctx, s.locker, scope, guest, func(ctx context.Context) error {
		return ownerlock.Run(ctx, s.locker, scope, user, fn)
	})
}

func (s *service) logResult(ctx context.Context, kind string, mode Mode, user identity.Owner) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"migration": kind,
		"mode":      string(mode),
		"owner":     user.String(),
	})
	s.logg.Info(ctx, "guest migration finished")
}

func preconditions(caller identity.Identity, guestToken string) (identity.Owner, identity.Owner, error) {
	if !caller.IsAuthenticated() {
		return identity.Owner{}, identity.Owner{}, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, ReasonAuthRequired,
			"login required to migrate guest data")
	}
	guestToken = strings.TrimSpace(guestToken)
	if guestToken == "" {
		return identity.Owner{}, identity.Owner{}, pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonGuestTokenRequired,
			"guest token is required")
	}
	if err := identity.ValidateGuestToken(guestToken); err != nil {
		return identity.Owner{}, identity.Owner{}, err
	}
	return identity.ForUser(caller.UserID()), identity.ForGuest(guestToken), nil
}

func wrap(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
