package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

// Repository defines the persistence surface used by the order service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, change StatusChange) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Stats(ctx context.Context, userID *uuid.UUID) ([]StatusTotal, error)
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// ListFilter scopes listings. A nil UserID lists every order.
type ListFilter struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
}

// StatusChange is the set of columns written by a status transition.
type StatusChange struct {
	To           enums.OrderStatus
	CancelReason *string
	CompletedAt  *time.Time
	CancelledAt  *time.Time
}

// StatusTotal is one aggregation row per status.
type StatusTotal struct {
	Status enums.OrderStatus
	Count  int64
	Amount string
}
