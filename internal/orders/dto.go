package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

// CreateOrderInput is what a customer supplies when placing an order.
type CreateOrderInput struct {
	Notes       string
	OrderNumber string
}

// ListParams filters and pages order listings.
type ListParams struct {
	Status string
	Page   int
	Limit  int
}

type LineItemDTO struct {
	ProductID   uuid.UUID       `json:"productId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	OrderNumber  string            `json:"orderNumber"`
	UserID       uuid.UUID         `json:"userId"`
	Status       enums.OrderStatus `json:"status"`
	TotalAmount  decimal.Decimal   `json:"totalAmount"`
	Participants []string          `json:"participants"`
	Notes        *string           `json:"notes,omitempty"`
	CancelReason *string           `json:"cancelReason,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	CancelledAt  *time.Time        `json:"cancelledAt,omitempty"`
	Items        []LineItemDTO     `json:"products"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// PageDTO keeps the listing metadata under the names clients already use.
type PageDTO struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalOrders int64 `json:"totalOrders"`
	HasMore     bool  `json:"hasMore"`
}

type ListResult struct {
	Orders     []OrderDTO `json:"orders"`
	Pagination PageDTO    `json:"pagination"`
}

// Stats aggregates order counts per status and the amount spent on
// completed orders.
type Stats struct {
	Total      int64           `json:"total"`
	Pending    int64           `json:"pending"`
	Completed  int64           `json:"completed"`
	Cancelled  int64           `json:"cancelled"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
}

// AdminStats is Stats across every customer, with the amount still pending.
type AdminStats struct {
	Stats
	Revenue        decimal.Decimal `json:"revenue"`
	PendingRevenue decimal.Decimal `json:"pendingRevenue"`
}

func toDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		Status:       order.Status,
		TotalAmount:  order.TotalAmount,
		Participants: order.Participants,
		Notes:        order.Notes,
		CancelReason: order.CancelReason,
		CompletedAt:  order.CompletedAt,
		CancelledAt:  order.CancelledAt,
		Items:        make([]LineItemDTO, 0, len(order.Items)),
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	if dto.Participants == nil {
		dto.Participants = []string{}
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, LineItemDTO{
			ProductID:   item.ProductID,
			Name:        item.Name,
			Description: item.Description,
			Image:       item.Image,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	return dto
}

func toPageDTO(page pagination.Page) PageDTO {
	return PageDTO{
		CurrentPage: page.CurrentPage,
		TotalPages:  page.TotalPages,
		TotalOrders: page.TotalItems,
		HasMore:     page.HasMore,
	}
}
