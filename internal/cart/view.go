package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// View is the cart wire shape. A missing cart renders with a nil ID and
// empty collections.
type View struct {
	ID           *uuid.UUID      `json:"id"`
	Items        []ItemView      `json:"products"`
	Participants []string        `json:"participants"`
	ItemCount    int             `json:"itemCount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// ItemView is one cart line. Product is nil when the product has since been
// removed from the catalog.
type ItemView struct {
	ProductID uuid.UUID         `json:"productId"`
	Quantity  int               `json:"quantity"`
	Product   *products.Summary `json:"product"`
}

func emptyView() *View {
	return &View{Items: []ItemView{}, Participants: []string{}, Subtotal: decimal.Zero}
}

func buildView(cart *models.Cart, catalog map[uuid.UUID]models.Product) *View {
	if cart == nil {
		return emptyView()
	}
	id := cart.ID
	updated := cart.UpdatedAt
	view := &View{
		ID:           &id,
		Items:        make([]ItemView, 0, len(cart.Items)),
		Participants: ParticipantNames(cart),
		Subtotal:     decimal.Zero,
		UpdatedAt:    &updated,
	}
	for _, item := range cart.Items {
		line := ItemView{ProductID: item.ProductID, Quantity: item.Quantity}
		if product, ok := catalog[item.ProductID]; ok {
			summary := products.SummaryFromModel(product)
			line.Product = &summary
			view.Subtotal = view.Subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		view.ItemCount += item.Quantity
		view.Items = append(view.Items, line)
	}
	return view
}

// ParticipantNames returns the cart's participants in insertion order.
func ParticipantNames(cart *models.Cart) []string {
	names := make([]string, 0, len(cart.Participants))
	for _, p := range cart.Participants {
		names = append(names, p.Name)
	}
	return names
}

// ProductIDs returns the product ids referenced by the cart lines.
func ProductIDs(cart *models.Cart) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
