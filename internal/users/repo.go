package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

// Repository is the gorm-backed user store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to tx. A nil tx keeps the current handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) users(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{})
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) setColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	return r.users(ctx).Where("id = ?", id).UpdateColumn(column, value).Error
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

// List pages users newest first and returns the unpaged total.
func (r *Repository) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var total int64
	if err := r.users(ctx).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var page []models.User
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id").
		Offset(offset).
		Limit(limit).
		Find(&page).Error; err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.setColumn(ctx, id, "last_login_at", at)
}

// UpdatePasswordHash replaces the stored hash after a rehash on login.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.setColumn(ctx, id, "password_hash", hash)
}

// UpdateProfile writes updates and reports whether the user exists. An empty
// update only checks existence.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		var n int64
		err := r.users(ctx).Where("id = ?", id).Count(&n).Error
		return n == 1, err
	}
	res := r.users(ctx).Where("id = ?", id).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// SetRole is a compare-and-set on the role column. It reports false when the
// user no longer holds from.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, from, to enums.UserRole) (bool, error) {
	res := r.users(ctx).Where("id = ? AND role = ?", id, from).Update("role", to)
	return res.RowsAffected == 1, res.Error
}

// Delete removes the user with their cart and favorites, children first.
// Orders stay as the historical record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	carts := db.Model(&models.Cart{}).Select("id").Where("user_id = ?", id)
	lists := db.Model(&models.FavoriteList{}).Select("id").Where("user_id = ?", id)

	children := []struct {
		model any
		query string
		arg   any
	}{
		{&models.CartItem{}, "cart_id IN (?)", carts},
		{&models.CartParticipant{}, "cart_id IN (?)", carts},
		{&models.Cart{}, "user_id = ?", id},
		{&models.FavoriteItem{}, "list_id IN (?)", lists},
		{&models.FavoriteList{}, "user_id = ?", id},
	}
	for _, child := range children {
		if err := db.Where(child.query, child.arg).Delete(child.model).Error; err != nil {
			return false, err
		}
	}
	res := db.Where("id = ?", id).Delete(&models.User{})
	return res.RowsAffected == 1, res.Error
}
