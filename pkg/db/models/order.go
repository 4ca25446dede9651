package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

// Order is written once from a cart. Only Status, CancelReason, CompletedAt and
// CancelledAt change afterwards.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber  string            `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	UserID       uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status       enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TotalAmount  decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Participants []string          `gorm:"column:participants;type:jsonb;serializer:json;not null"`
	Notes        *string           `gorm:"column:notes"`
	CancelReason *string           `gorm:"column:cancel_reason"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
	CancelledAt  *time.Time        `gorm:"column:cancelled_at"`
	Items        []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLineItem freezes the product as it was when the order was placed.
type OrderLineItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name        string          `gorm:"column:name;not null"`
	Description string          `gorm:"column:description;not null"`
	Image       string          `gorm:"column:image;not null;default:''"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
}

func (i *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderSequence is a named monotonically increasing counter.
type OrderSequence struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null;default:0"`
}

func (OrderSequence) TableName() string {
	return "order_sequences"
}
