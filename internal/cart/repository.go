package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// Repository persists carts, their items and participants.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOwner loads the owner's cart with items in insertion order and
// participants by position. Missing carts return gorm.ErrRecordNotFound.
func (r *Repository) FindByOwner(ctx context.Context, owner identity.Owner) (*models.Cart, error) {
	column, value := owner.Column()
	if column == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where(column+" = ?", value).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts an empty cart for owner.
func (r *Repository) Create(ctx context.Context, owner identity.Owner) (*models.Cart, error) {
	cart := models.Cart{}
	if id, ok := owner.UserID(); ok {
		cart.UserID = &id
	}
	if token, ok := owner.GuestToken(); ok {
		cart.GuestToken = &token
	}
	if err := r.db.WithContext(ctx).Omit("Items", "Participants").Create(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// Touch bumps updated_at so cleanup jobs see the cart as active.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now().UTC()).Error
}

// IncrementItem adds quantity to an existing line and reports whether one existed.
func (r *Repository) IncrementItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Update("quantity", gorm.Expr("quantity + ?", quantity))
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// SetItemQuantity replaces a line's quantity and reports whether the line existed.
func (r *Repository) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Update("quantity", quantity)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

// AppendParticipant stores name after the current last participant.
func (r *Repository) AppendParticipant(ctx context.Context, cartID uuid.UUID, name string) error {
	var next int
	err := r.db.WithContext(ctx).Model(&models.CartParticipant{}).
		Where("cart_id = ?", cartID).
		Select("COALESCE(MAX(position), 0) + 1").
		Scan(&next).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&models.CartParticipant{CartID: cartID, Name: name, Position: next}).Error
}

// DeleteParticipant removes name and reports whether it was present.
func (r *Repository) DeleteParticipant(ctx context.Context, cartID uuid.UUID, name string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND name = ?", cartID, name).
		Delete(&models.CartParticipant{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ClearParticipants(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartParticipant{}).Error
}

// Delete removes the cart row together with its items and participants.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) (bool, error) {
	if err := r.ClearItems(ctx, cartID); err != nil {
		return false, err
	}
	if err := r.ClearParticipants(ctx, cartID); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{})
	return res.RowsAffected == 1, res.Error
}

// Rekey hands a guest cart to userID. It reports false when the guest row
// was already claimed.
func (r *Repository) Rekey(ctx context.Context, cartID uuid.UUID, guestToken string, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND guest_token = ?", cartID, guestToken).
		Updates(map[string]any{"user_id": userID, "guest_token": nil})
	return res.RowsAffected == 1, res.Error
}

// PurgeGuestsBefore deletes guest carts untouched since cutoff, with their
// items and participants.
func (r *Repository) PurgeGuestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&models.Cart{}).
			Where("guest_token IS NOT NULL AND updated_at < ?", cutoff).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}
		if err := tx.Where("cart_id IN ?", ids).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cart_id IN ?", ids).Delete(&models.CartParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Cart{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
