package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// ProductDTO is the catalog wire shape.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Capacity    string          `json:"capacity"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Available   bool            `json:"available"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Summary is the slice of a product embedded in cart and favorites views.
type Summary struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Category  string          `json:"category"`
	Available bool            `json:"available"`
}

func FromModel(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Capacity:    p.Capacity,
		Image:       p.Image,
		Category:    p.Category,
		Available:   p.Available,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func SummaryFromModel(p models.Product) Summary {
	return Summary{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Category:  p.Category,
		Available: p.Available,
	}
}

// ListFilter narrows catalog listings. Search matches name or description,
// case-insensitively.
type ListFilter struct {
	Category  string
	Available *bool
	Search    string
}

// CreateInput is the validated payload for a new product.
type CreateInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Capacity    string
	Image       string
	Category    string
	Available   *bool
	Stock       int
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Capacity    *string
	Image       *string
	Category    *string
	Available   *bool
	Stock       *int
}
