package favorites

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// Repository persists favorite lists and their items.
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

// FindByOwner loads the owner's list with items oldest first.
func (r *Repository) FindByOwner(ctx context.Context, owner identity.Owner) (*models.FavoriteList, error) {
	column, value := owner.Column()
	if column == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var list models.FavoriteList
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("added_at, id") }).
		Where(column+" = ?", value).
		First(&list).Error
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *Repository) Create(ctx context.Context, owner identity.Owner) (*models.FavoriteList, error) {
	list := models.FavoriteList{}
	if id, ok := owner.UserID(); ok {
		list.UserID = &id
	}
	if token, ok := owner.GuestToken(); ok {
		list.GuestToken = &token
	}
	if err := r.db.WithContext(ctx).Omit("Items").Create(&list).Error; err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *Repository) Touch(ctx context.Context, listID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.FavoriteList{}).
		Where("id = ?", listID).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *Repository) CreateItem(ctx context.Context, item *models.FavoriteItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// KeepEarliest lowers an item's added_at to at when at is older.
func (r *Repository) KeepEarliest(ctx context.Context, listID, productID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.FavoriteItem{}).
		Where("list_id = ? AND product_id = ? AND added_at > ?", listID, productID, at).
		Update("added_at", at).Error
}

func (r *Repository) DeleteItem(ctx context.Context, listID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("list_id = ? AND product_id = ?", listID, productID).
		Delete(&models.FavoriteItem{}).Error
}

func (r *Repository) ClearItems(ctx context.Context, listID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("list_id = ?", listID).Delete(&models.FavoriteItem{}).Error
}

// Delete removes the list and its items, reporting whether the list existed.
func (r *Repository) Delete(ctx context.Context, listID uuid.UUID) (bool, error) {
	if err := r.ClearItems(ctx, listID); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Where("id = ?", listID).Delete(&models.FavoriteList{})
	return res.RowsAffected == 1, res.Error
}

// Rekey hands a guest list to userID. It reports false when the guest row
// was already claimed.
func (r *Repository) Rekey(ctx context.Context, listID uuid.UUID, guestToken string, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.FavoriteList{}).
		Where("id = ? AND guest_token = ?", listID, guestToken).
		Updates(map[string]any{"user_id": userID, "guest_token": nil})
	return res.RowsAffected == 1, res.Error
}

// PurgeGuestsBefore deletes guest favorite lists untouched since cutoff.
func (r *Repository) PurgeGuestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&models.FavoriteList{}).
			Where("guest_token IS NOT NULL AND updated_at < ?", cutoff).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}
		if err := tx.Where("list_id IN ?", ids).Delete(&models.FavoriteItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.FavoriteList{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
