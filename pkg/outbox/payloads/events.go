package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

// OrderLine is the per-product slice of an order event.
type OrderLine struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unitPrice"`
	LineTotal string    `json:"lineTotal"`
}

// OrderCreatedEvent is emitted when a cart becomes an order.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID         `json:"orderId"`
	OrderNumber  string            `json:"orderNumber"`
	UserID       uuid.UUID         `json:"userId"`
	Status       enums.OrderStatus `json:"status"`
	TotalAmount  string            `json:"totalAmount"`
	Participants []string          `json:"participants"`
	Lines        []OrderLine       `json:"lines"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// OrderStatusChangedEvent is emitted on every admin status transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      uuid.UUID         `json:"userId"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	TotalAmount string            `json:"totalAmount"`
	ChangedAt   time.Time         `json:"changedAt"`
}

// OrderCancelledEvent is emitted when a customer cancels a pending order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      uuid.UUID `json:"userId"`
	Reason      string    `json:"reason"`
	TotalAmount string    `json:"totalAmount"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// OrderDeletedEvent is emitted when an administrator removes an order.
type OrderDeletedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      uuid.UUID         `json:"userId"`
	Status      enums.OrderStatus `json:"status"`
	DeletedAt   time.Time         `json:"deletedAt"`
}
