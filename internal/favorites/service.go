package favorites

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/ownerlock"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

const (
	ReasonFavoritesNotFound = "FAVORITES_NOT_FOUND"
	ReasonProductNotFound   = "PRODUCT_NOT_FOUND"
	ReasonAlreadyFavorited  = "ALREADY_FAVORITED"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ServiceParams groups dependencies for the favorites service.
type ServiceParams struct {
	Repo    *Repository
	Tx      txRunner
	Catalog productCatalog
	Locker  ownerlock.Locker
}

// Service exposes owner-scoped favorites operations.
type Service interface {
	Get(ctx context.Context, owner identity.Owner) (*View, error)
	AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error)
	RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, owner identity.Owner) (*View, error)
	Check(ctx context.Context, owner identity.Owner, productID uuid.UUID) (CheckResult, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog productCatalog
	locker  ownerlock.Locker
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("favorites repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, errors.New("product catalog required")
	}
	if params.Locker == nil {
		return nil, errors.New("owner locker required")
	}
	return &service{repo: params.Repo, tx: params.Tx, catalog: params.Catalog, locker: params.Locker}, nil
}

func (s *service) Get(ctx context.Context, owner identity.Owner) (*View, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	list, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return emptyView(), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load favorites")
	}
	catalog, err := s.catalog.FindByIDs(ctx, productIDs(list))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load favorite products")
	}
	return buildView(list, catalog), nil
}

func (s *service) AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	ok, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product")
	}
	if !ok {
		return nil, pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonProductNotFound, "product not found")
	}
	return s.mutate(ctx, owner, true, func(ctx context.Context, repo *Repository, list *models.FavoriteList) error {
		for _, item := range list.Items {
			if item.ProductID == productID {
				return alreadyFavorited()
			}
		}
		if err := repo.CreateItem(ctx, &models.FavoriteItem{ListID: list.ID, ProductID: productID}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return alreadyFavorited()
			}
			return err
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error) {
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, list *models.FavoriteList) error {
		return repo.DeleteItem(ctx, list.ID, productID)
	})
}

func (s *service) Clear(ctx context.Context, owner identity.Owner) (*View, error) {
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, list *models.FavoriteList) error {
		return repo.ClearItems(ctx, list.ID)
	})
}

// Check never fails for a missing list; it simply reports false.
func (s *service) Check(ctx context.Context, owner identity.Owner, productID uuid.UUID) (CheckResult, error) {
	if err := requireOwner(owner); err != nil {
		return CheckResult{}, err
	}
	list, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return CheckResult{}, nil
		}
		return CheckResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load favorites")
	}
	for _, item := range list.Items {
		if item.ProductID == productID {
			return CheckResult{IsFavorite: true}, nil
		}
	}
	return CheckResult{}, nil
}

func (s *service) mutate(ctx context.Context, owner identity.Owner, create bool, fn func(ctx context.Context, repo *Repository, list *models.FavoriteList) error) (*View, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	err := ownerlock.Run(ctx, s.locker, ownerlock.ScopeFavorites, owner, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			list, err := repo.FindByOwner(ctx, owner)
			switch {
			case err == nil:
			case db.IsNotFound(err) && create:
				if list, err = repo.Create(ctx, owner); err != nil {
					return err
				}
			case db.IsNotFound(err):
				return NotFound()
			default:
				return err
			}
			if err := fn(ctx, repo, list); err != nil {
				return err
			}
			return repo.Touch(ctx, list.ID)
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update favorites")
	}
	return s.Get(ctx, owner)
}

// NotFound is returned when the owner has no favorites list.
func NotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonFavoritesNotFound, "favorites not found")
}

func alreadyFavorited() error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, ReasonAlreadyFavorited, "product already in favorites")
}

func requireOwner(owner identity.Owner) error {
	if owner.Valid() {
		return nil
	}
	_, err := identity.Anonymous().Owner()
	return err
}
