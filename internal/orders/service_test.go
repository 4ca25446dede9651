package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pricing "github.com/angelmondragon/partyshop-backend/pkg/checkout"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

type fixture struct {
	svc   Service
	conn  *gorm.DB
	carts *cart.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	carts := cart.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		CartRepo: carts,
		Tx:       db.NewFromGorm(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Locker:   redis.NewLocalLocker(5 * time.Second),
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, carts: carts}
}

func (f fixture) product(t *testing.T, name, price string) models.Product {
	t.Helper()
	p := models.Product{
		Name: name, Description: name + " description", Capacity: "10", Category: "decor",
		Image: "https://cdn.example.com/" + name + ".png",
		Price: decimal.RequireFromString(price), Available: true,
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

type line struct {
	product  models.Product
	quantity int
}

func (f fixture) cart(t *testing.T, userID uuid.UUID, participants []string, lines ...line) *models.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.Create(ctx, identity.ForUser(userID))
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, f.carts.CreateItem(ctx, &models.CartItem{CartID: c.ID, ProductID: l.product.ID, Quantity: l.quantity}))
	}
	for _, name := range participants {
		require.NoError(t, f.carts.AppendParticipant(ctx, c.ID, name))
	}
	return c
}

func (f fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateSnapshotsCartAndClearsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "150")
	cake := f.product(t, "cake", "99.90")
	c := f.cart(t, userID, []string{"Ana", "Bruno"}, line{balloon, 2}, line{cake, 1})

	order, err := f.svc.Create(ctx, userID, CreateOrderInput{Notes: "  deliver at noon "})
	require.NoError(t, err)

	assert.Equal(t, "PED000001", order.OrderNumber)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("399.90")), order.TotalAmount.String())
	assert.Equal(t, []string{"Ana", "Bruno"}, order.Participants)
	require.NotNil(t, order.Notes)
	assert.Equal(t, "deliver at noon", *order.Notes)
	require.Len(t, order.Items, 2)

	stored, err := f.carts.FindByOwner(ctx, identity.ForUser(userID))
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)
	assert.Empty(t, stored.Items)
	assert.Empty(t, stored.Participants)

	assert.EqualValues(t, 1, f.events(t, enums.EventOrderCreated))
}

func TestCreateNumbersSequentially(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	c := f.cart(t, userID, []string{"Ana"}, line{balloon, 1})

	first, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	require.NoError(t, f.carts.CreateItem(ctx, &models.CartItem{CartID: c.ID, ProductID: balloon.ID, Quantity: 3}))
	require.NoError(t, f.carts.AppendParticipant(ctx, c.ID, "Ana"))
	second, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	assert.Equal(t, "PED000001", first.OrderNumber)
	assert.Equal(t, "PED000002", second.OrderNumber)
}

func TestCreateWithSuppliedNumberRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	c := f.cart(t, userID, []string{"Ana"}, line{balloon, 1})

	_, err := f.svc.Create(ctx, userID, CreateOrderInput{OrderNumber: "EVT-1"})
	require.NoError(t, err)

	require.NoError(t, f.carts.CreateItem(ctx, &models.CartItem{CartID: c.ID, ProductID: balloon.ID, Quantity: 1}))
	require.NoError(t, f.carts.AppendParticipant(ctx, c.ID, "Ana"))
	_, err = f.svc.Create(ctx, userID, CreateOrderInput{OrderNumber: "EVT-1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsReason(err, ReasonOrderNumberTaken))

	// The failed attempt rolled back, so the cart is intact.
	stored, err := f.carts.FindByOwner(ctx, identity.ForUser(userID))
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
}

func TestCreateRejectsGeneratedNumberFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "balloon", "10")
	picky := uuid.New()
	f.cart(t, picky, []string{"Ana"}, line{balloon, 1})

	for _, number := range []string{"PED000001", "ped000001", "PED1234567"} {
		_, err := f.svc.Create(ctx, picky, CreateOrderInput{OrderNumber: number})
		require.Error(t, err, number)
		assert.True(t, pkgerrors.IsReason(err, ReasonInvalidOrderNumber), number)
	}

	other := uuid.New()
	f.cart(t, other, []string{"Bia"}, line{balloon, 2})
	order, err := f.svc.Create(ctx, other, CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "PED000001", order.OrderNumber)

	custom, err := f.svc.Create(ctx, picky, CreateOrderInput{OrderNumber: "PED-SUMMER"})
	require.NoError(t, err)
	assert.Equal(t, "PED-SUMMER", custom.OrderNumber)
}

func TestCreatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "balloon", "10")

	_, err := f.svc.Create(ctx, uuid.New(), CreateOrderInput{})
	assert.True(t, pkgerrors.IsReason(err, pricing.ReasonEmptyCart))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	empty := uuid.New()
	f.cart(t, empty, []string{"Ana"})
	_, err = f.svc.Create(ctx, empty, CreateOrderInput{})
	assert.True(t, pkgerrors.IsReason(err, pricing.ReasonEmptyCart))

	lonely := uuid.New()
	f.cart(t, lonely, nil, line{balloon, 1})
	_, err = f.svc.Create(ctx, lonely, CreateOrderInput{})
	assert.True(t, pkgerrors.IsReason(err, pricing.ReasonNoParticipants))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	assert.Zero(t, f.events(t, enums.EventOrderCreated))
}

func TestCreateAbortsOnUnavailableProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	cake := f.product(t, "cake", "20")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1}, line{cake, 1})
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", cake.ID).Update("available", false).Error)

	_, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsReason(err, ReasonProductUnavailable))
	assert.Contains(t, err.Error(), "cake")

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOrderKeepsSnapshotAfterProductChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "150")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 2})

	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", balloon.ID).Update("price", decimal.NewFromInt(999)).Error)
	require.NoError(t, f.conn.Where("id = ?", balloon.ID).Delete(&models.Product{}).Error)

	got, err := f.svc.Get(ctx, order.ID, userID, false)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "balloon", got.Items[0].Name)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(300)))
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1})
	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, order.ID, uuid.New(), false)
	assert.True(t, pkgerrors.IsReason(err, ReasonOrderNotFound))

	got, err := f.svc.Get(ctx, order.ID, uuid.New(), true)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Get(ctx, uuid.New(), userID, false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1})
	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, order.ID, uuid.New(), "")
	assert.True(t, pkgerrors.IsReason(err, ReasonOrderNotFound))

	cancelled, err := f.svc.Cancel(ctx, order.ID, userID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, DefaultCancelReason, *cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.CompletedAt)

	_, err = f.svc.Cancel(ctx, order.ID, userID, "again")
	assert.True(t, pkgerrors.IsReason(err, ReasonNotCancellable))
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderCancelled))
}

func TestCancelCompletedOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1})
	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "completed")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, order.ID, userID, "changed my mind")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsReason(err, ReasonNotCancellable))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1})
	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "shipped")
	assert.True(t, pkgerrors.IsReason(err, ReasonInvalidStatus))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	same, err := f.svc.UpdateStatus(ctx, order.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, same.Status)
	assert.Zero(t, f.events(t, enums.EventOrderStatusChanged))

	completed, err := f.svc.UpdateStatus(ctx, order.ID, "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	firstCompletion := *completed.CompletedAt

	again, err := f.svc.UpdateStatus(ctx, order.ID, "completed")
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, firstCompletion.Equal(*again.CompletedAt))

	_, err = f.svc.UpdateStatus(ctx, order.ID, "pending")
	assert.True(t, pkgerrors.IsReason(err, ReasonInvalidTransition))
	_, err = f.svc.UpdateStatus(ctx, order.ID, "cancelled")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	assert.EqualValues(t, 1, f.events(t, enums.EventOrderStatusChanged))
}

func TestListScopesAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	balloon := f.product(t, "balloon", "10")

	aliceCart := f.cart(t, alice, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.carts.CreateItem(ctx, &models.CartItem{CartID: aliceCart.ID, ProductID: balloon.ID, Quantity: 1}))
		require.NoError(t, f.carts.AppendParticipant(ctx, aliceCart.ID, "Ana"))
		_, err := f.svc.Create(ctx, alice, CreateOrderInput{})
		require.NoError(t, err)
	}
	f.cart(t, bob, []string{"Bia"}, line{balloon, 1})
	bobOrder, err := f.svc.Create(ctx, bob, CreateOrderInput{})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, bobOrder.ID, bob, "")
	require.NoError(t, err)

	page, err := f.svc.List(ctx, alice, false, ListParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	assert.Equal(t, PageDTO{CurrentPage: 1, TotalPages: 2, TotalOrders: 3, HasMore: true}, page.Pagination)
	assert.Equal(t, "PED000003", page.Orders[0].OrderNumber)

	all, err := f.svc.List(ctx, alice, true, ListParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, all.Pagination.TotalOrders)

	cancelled, err := f.svc.List(ctx, alice, true, ListParams{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Orders, 1)
	assert.Equal(t, bobOrder.ID, cancelled.Orders[0].ID)

	_, err = f.svc.List(ctx, alice, false, ListParams{Status: "lost"})
	assert.True(t, pkgerrors.IsReason(err, ReasonInvalidStatus))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "150")
	c := f.cart(t, userID, nil)

	place := func(quantity int) *OrderDTO {
		require.NoError(t, f.carts.CreateItem(ctx, &models.CartItem{CartID: c.ID, ProductID: balloon.ID, Quantity: quantity}))
		require.NoError(t, f.carts.AppendParticipant(ctx, c.ID, "Ana"))
		order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
		require.NoError(t, err)
		return order
	}
	completed := place(2)
	cancelled := place(1)
	place(1)

	_, err := f.svc.UpdateStatus(ctx, completed.ID, "completed")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID, userID, "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Pending)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 1, stats.Cancelled)
	assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(300)), stats.TotalSpent.String())

	empty, err := f.svc.Stats(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.True(t, empty.TotalSpent.IsZero())

	admin, err := f.svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.True(t, admin.Revenue.Equal(decimal.NewFromInt(300)))
	assert.True(t, admin.PendingRevenue.Equal(decimal.NewFromInt(150)))
}

func TestDeleteRemovesOrderAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	balloon := f.product(t, "balloon", "10")
	f.cart(t, userID, []string{"Ana"}, line{balloon, 1})
	order, err := f.svc.Create(ctx, userID, CreateOrderInput{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, order.ID))
	_, err = f.svc.Get(ctx, order.ID, userID, true)
	assert.True(t, pkgerrors.IsReason(err, ReasonOrderNotFound))

	var lines int64
	require.NoError(t, f.conn.Model(&models.OrderLineItem{}).Count(&lines).Error)
	assert.Zero(t, lines)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderDeleted))

	err = f.svc.Delete(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
