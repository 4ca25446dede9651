package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is owned by exactly one of UserID or GuestToken; the table enforces it
// with a CHECK constraint.
type Cart struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID       *uuid.UUID        `gorm:"column:user_id;type:uuid;uniqueIndex:ux_carts_user_id"`
	GuestToken   *string           `gorm:"column:guest_token;uniqueIndex:ux_carts_guest_token"`
	Items        []CartItem        `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Participants []CartParticipant `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartItem is one product line; (cart_id, product_id) is unique.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// CartParticipant is a named contributor. Position keeps insertion order.
type CartParticipant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_participants_cart_name"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:ux_cart_participants_cart_name"`
	Position  int       `gorm:"column:position;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *CartParticipant) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
