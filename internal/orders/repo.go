package orders

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

const (
	orderSequenceName = "orders"
	orderNumberFormat = "PED%06d"
)

// sequenceNumber matches what NextOrderNumber hands out. Callers may not
// pick numbers in that namespace.
var sequenceNumber = regexp.MustCompile(`(?i)^PED\d+$`)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NextOrderNumber bumps the shared counter row and formats the new value.
// The row lock taken by the UPDATE serializes concurrent callers.
func (r *repository) NextOrderNumber(ctx context.Context) (string, error) {
	var value int64
	err := r.db.WithContext(ctx).
		Raw("UPDATE order_sequences SET value = value + 1 WHERE name = ? RETURNING value", orderSequenceName).
		Scan(&value).Error
	if err != nil {
		return "", err
	}
	if value == 0 {
		return "", fmt.Errorf("order sequence %q missing", orderSequenceName)
	}
	return fmt.Sprintf(orderNumberFormat, value), nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Order
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Order("order_number DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatus applies change only while the order still has status from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, change StatusChange) (bool, error) {
	updates := map[string]any{"status": change.To}
	if change.CancelReason != nil {
		updates["cancel_reason"] = *change.CancelReason
	}
	if change.CompletedAt != nil {
		updates["completed_at"] = *change.CompletedAt
	}
	if change.CancelledAt != nil {
		updates["cancelled_at"] = *change.CancelledAt
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.OrderLineItem{}).Error; err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	return res.RowsAffected == 1, res.Error
}

// Stats groups counts and summed totals by status. The sum is returned as
// text so numeric precision survives every driver.
func (r *repository) Stats(ctx context.Context, userID *uuid.UUID) ([]StatusTotal, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count, CAST(COALESCE(SUM(total_amount), 0) AS TEXT) AS amount").
		Group("status")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var rows []StatusTotal
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
