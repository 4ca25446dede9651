package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FavoriteList mirrors Cart's ownership shape.
type FavoriteList struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID     *uuid.UUID     `gorm:"column:user_id;type:uuid;uniqueIndex:ux_favorite_lists_user_id"`
	GuestToken *string        `gorm:"column:guest_token;uniqueIndex:ux_favorite_lists_guest_token"`
	Items      []FavoriteItem `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *FavoriteList) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// FavoriteItem links a list to a product; (list_id, product_id) is unique.
type FavoriteItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ListID    uuid.UUID `gorm:"column:list_id;type:uuid;not null;uniqueIndex:ux_favorite_items_list_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_favorite_items_list_product"`
	AddedAt   time.Time `gorm:"column:added_at;not null"`
}

func (i *FavoriteItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	if i.AddedAt.IsZero() {
		i.AddedAt = time.Now().UTC()
	}
	return nil
}
