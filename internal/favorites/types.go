package favorites

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// View is the favorites wire shape.
type View struct {
	ID    *uuid.UUID `json:"id"`
	Items []ItemView `json:"products"`
	Count int        `json:"count"`
}

type ItemView struct {
	ProductID uuid.UUID         `json:"productId"`
	AddedAt   time.Time         `json:"addedAt"`
	Product   *products.Summary `json:"product"`
}

// CheckResult answers whether a product is in the owner's favorites.
type CheckResult struct {
	IsFavorite bool `json:"isFavorite"`
}

func emptyView() *View {
	return &View{Items: []ItemView{}}
}

func buildView(list *models.FavoriteList, catalog map[uuid.UUID]models.Product) *View {
	if list == nil {
		return emptyView()
	}
	id := list.ID
	view := &View{ID: &id, Items: make([]ItemView, 0, len(list.Items)), Count: len(list.Items)}
	for _, item := range list.Items {
		line := ItemView{ProductID: item.ProductID, AddedAt: item.AddedAt}
		if product, ok := catalog[item.ProductID]; ok {
			summary := products.SummaryFromModel(product)
			line.Product = &summary
		}
		view.Items = append(view.Items, line)
	}
	return view
}

func productIDs(list *models.FavoriteList) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
