package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/ownerlock"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	ReasonCartNotFound         = "CART_NOT_FOUND"
	ReasonItemNotFound         = "ITEM_NOT_FOUND"
	ReasonInvalidQuantity      = "INVALID_QUANTITY"
	ReasonProductNotFound      = "PRODUCT_NOT_FOUND"
	ReasonInvalidParticipant   = "INVALID_PARTICIPANT"
	ReasonDuplicateParticipant = "DUPLICATE_PARTICIPANT"
	ReasonParticipantNotFound  = "PARTICIPANT_NOT_FOUND"

	maxParticipantName = 120
	maxQuantity        = 10000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service exposes owner-scoped cart operations.
type Service interface {
	Get(ctx context.Context, owner identity.Owner) (*View, error)
	AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error)
	UpdateQuantity(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*View, error)
	Clear(ctx context.Context, owner identity.Owner) (*View, error)
	AddParticipant(ctx context.Context, owner identity.Owner, name string) (*View, error)
	RemoveParticipant(ctx context.Context, owner identity.Owner, name string) (*View, error)
	ListParticipants(ctx context.Context, owner identity.Owner) ([]string, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog productCatalog
	locker  ownerlock.Locker
	logg    *logger.Logger
}

// NewService builds the cart service. Every mutation runs in a transaction
// while holding the owner's lock.
func NewService(repo *Repository, tx txRunner, catalog productCatalog, locker ownerlock.Locker, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("cart repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if catalog == nil {
		return nil, errors.New("product catalog required")
	}
	if locker == nil {
		return nil, errors.New("owner locker required")
	}
	return &service{repo: repo, tx: tx, catalog: catalog, locker: locker, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, owner identity.Owner) (*View, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return emptyView(), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return s.render(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*View, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, true, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		found, err := repo.IncrementItem(ctx, cart.ID, productID, quantity)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		return repo.CreateItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity})
	})
}

func (s *service) RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*View, error) {
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		return repo.DeleteItem(ctx, cart.ID, productID)
	})
}

func (s *service) UpdateQuantity(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*View, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		found, err := repo.SetItemQuantity(ctx, cart.ID, productID, quantity)
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonItemNotFound, "product not found in cart")
		}
		return nil
	})
}

func (s *service) Clear(ctx context.Context, owner identity.Owner) (*View, error) {
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		return repo.ClearItems(ctx, cart.ID)
	})
}

func (s *service) AddParticipant(ctx context.Context, owner identity.Owner, name string) (*View, error) {
	name, err := normalizeParticipant(name)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, true, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		for _, existing := range cart.Participants {
			if existing.Name == name {
				return duplicateParticipant()
			}
		}
		if err := repo.AppendParticipant(ctx, cart.ID, name); err != nil {
			if db.IsUniqueViolation(err, "") {
				return duplicateParticipant()
			}
			return err
		}
		return nil
	})
}

func (s *service) RemoveParticipant(ctx context.Context, owner identity.Owner, name string) (*View, error) {
	name, err := normalizeParticipant(name)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, false, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		found, err := repo.DeleteParticipant(ctx, cart.ID, name)
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonParticipantNotFound, "participant not found")
		}
		return nil
	})
}

func (s *service) ListParticipants(ctx context.Context, owner identity.Owner) ([]string, error) {
	view, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	return view.Participants, nil
}

// mutate loads the owner's cart inside a locked transaction and applies fn.
// With create set, a missing cart is created first; otherwise it is CartNotFound.
func (s *service) mutate(ctx context.Context, owner identity.Owner, create bool, fn func(ctx context.Context, repo *Repository, cart *models.Cart) error) (*View, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	err := ownerlock.Run(ctx, s.locker, ownerlock.ScopeCart, owner, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			cart, err := repo.FindByOwner(ctx, owner)
			switch {
			case err == nil:
			case db.IsNotFound(err) && create:
				if cart, err = repo.Create(ctx, owner); err != nil {
					return err
				}
			case db.IsNotFound(err):
				return CartNotFound()
			default:
				return err
			}
			if err := fn(ctx, repo, cart); err != nil {
				return err
			}
			return repo.Touch(ctx, cart.ID)
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart")
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "owner", owner.String()), "cart updated")
	}
	return s.Get(ctx, owner)
}

func (s *service) render(ctx context.Context, cart *models.Cart) (*View, error) {
	catalog, err := s.catalog.FindByIDs(ctx, ProductIDs(cart))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	return buildView(cart, catalog), nil
}

func (s *service) ensureProduct(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonProductNotFound, "product id is required")
	}
	ok, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product")
	}
	if !ok {
		return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonProductNotFound, "product not found")
	}
	return nil
}

// CartNotFound is returned by operations that never create a cart.
func CartNotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonCartNotFound, "cart not found")
}

func requireOwner(owner identity.Owner) error {
	if owner.Valid() {
		return nil
	}
	_, err := identity.Anonymous().Owner()
	return err
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidQuantity, "quantity must be greater than 0")
	}
	if quantity > maxQuantity {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidQuantity, "quantity is too large")
	}
	return nil
}

func normalizeParticipant(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidParticipant, "participant name is required")
	}
	if len(name) > maxParticipantName {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidParticipant, "participant name is too long")
	}
	return name, nil
}

func duplicateParticipant() error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, ReasonDuplicateParticipant, "participant already added")
}
