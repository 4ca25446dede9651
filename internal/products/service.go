package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/pkg/cache"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	ReasonProductNotFound = "PRODUCT_NOT_FOUND"
	ReasonInvalidProduct  = "INVALID_PRODUCT"

	categoriesKey = "categories"
	listPrefix    = "list:"
)

// Service exposes the product catalog.
type Service interface {
	List(ctx context.Context, filter ListFilter) ([]ProductDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Create(ctx context.Context, input CreateInput) (*ProductDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Categories(ctx context.Context) ([]string, error)
	RefreshCategories(ctx context.Context) ([]string, error)

	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo       *Repository
	logg       *logger.Logger
	items      *cache.Cache[models.Product]
	lists      *cache.Cache[[]models.Product]
	categories *cache.Cache[[]string]
}

// CacheOptions sizes the read-through caches. Zero values use the cache defaults.
type CacheOptions struct {
	Size int
	TTL  time.Duration
}

// NewService wires the catalog over repo. Reads hit the caches first; every
// write invalidates the product entry, every list and the category list.
func NewService(repo *Repository, logg *logger.Logger, opts CacheOptions) (Service, error) {
	if repo == nil {
		return nil, errors.New("product repository required")
	}
	return &service{
		repo:       repo,
		logg:       logg,
		items:      cache.New[models.Product](opts.Size, opts.TTL),
		lists:      cache.New[[]models.Product](opts.Size, opts.TTL),
		categories: cache.New[[]string](1, opts.TTL),
	}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]ProductDTO, error) {
	rows, err := s.lists.GetOrLoad(ctx, listKey(filter), func(ctx context.Context) ([]models.Product, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.items.GetOrLoad(ctx, id.String(), func(ctx context.Context) (models.Product, error) {
		row, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return models.Product{}, err
		}
		return *row, nil
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, notFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	dto := FromModel(product)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ProductDTO, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	product := models.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price.Round(2),
		Capacity:    strings.TrimSpace(input.Capacity),
		Image:       strings.TrimSpace(input.Image),
		Category:    strings.TrimSpace(input.Category),
		Available:   true,
		Stock:       input.Stock,
	}
	if input.Available != nil {
		product.Available = *input.Available
	}
	if err := s.repo.Create(ctx, &product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	s.invalidate(ctx, product.ID)
	dto := FromModel(product)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, notFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if err := applyUpdate(product, input); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	s.invalidate(ctx, id)
	dto := FromModel(*product)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete product")
	}
	if !found {
		return notFound()
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	out, err := s.categories.GetOrLoad(ctx, categoriesKey, s.repo.Categories)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	return out, nil
}

// RefreshCategories reloads the category list and replaces the cached copy.
func (s *service) RefreshCategories(ctx context.Context) ([]string, error) {
	out, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refresh categories")
	}
	s.categories.Set(categoriesKey, out)
	return out, nil
}

// FindByIDs reads straight from the store; callers use it for prices.
func (s *service) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return s.repo.FindByIDs(ctx, ids)
}

// Exists always asks the database. Another instance may have deleted the
// product while it sits in this process's cache.
func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func (s *service) invalidate(ctx context.Context, id uuid.UUID) {
	s.items.Invalidate(id.String())
	s.lists.InvalidatePrefix(listPrefix)
	s.categories.Invalidate(categoriesKey)
	if s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "product_id", id.String()), "product cache invalidated")
	}
}

func listKey(filter ListFilter) string {
	available := "any"
	if filter.Available != nil {
		available = strconv.FormatBool(*filter.Available)
	}
	return fmt.Sprintf("%s%s|%s|%s", listPrefix,
		strings.TrimSpace(filter.Category), available, strings.ToLower(strings.TrimSpace(filter.Search)))
}

func notFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonProductNotFound, "product not found")
}

func invalid(message string) error {
	return pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidProduct, message)
}

func validateCreate(input CreateInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return invalid("name is required")
	case strings.TrimSpace(input.Description) == "":
		return invalid("description is required")
	case strings.TrimSpace(input.Category) == "":
		return invalid("category is required")
	case strings.TrimSpace(input.Capacity) == "":
		return invalid("capacity is required")
	}
	return validateAmounts(input.Price, input.Stock)
}

func validateAmounts(price decimal.Decimal, stock int) error {
	if price.IsNegative() {
		return invalid("price must not be negative")
	}
	if stock < 0 {
		return invalid("stock must not be negative")
	}
	return nil
}

func applyUpdate(product *models.Product, input UpdateInput) error {
	setString := func(dst *string, src *string, field string) error {
		if src == nil {
			return nil
		}
		value := strings.TrimSpace(*src)
		if value == "" && field != "image" {
			return invalid(field + " must not be empty")
		}
		*dst = value
		return nil
	}
	if err := setString(&product.Name, input.Name, "name"); err != nil {
		return err
	}
	if err := setString(&product.Description, input.Description, "description"); err != nil {
		return err
	}
	if err := setString(&product.Capacity, input.Capacity, "capacity"); err != nil {
		return err
	}
	if err := setString(&product.Image, input.Image, "image"); err != nil {
		return err
	}
	if err := setString(&product.Category, input.Category, "category"); err != nil {
		return err
	}
	if input.Price != nil {
		product.Price = input.Price.Round(2)
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Available != nil {
		product.Available = *input.Available
	}
	return validateAmounts(product.Price, product.Stock)
}
