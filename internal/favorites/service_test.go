package favorites

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      db.NewFromGorm(conn),
		Catalog: products.NewRepository(conn),
		Locker:  redis.NewLocalLocker(5 * time.Second),
	})
	require.NoError(t, err)
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, name string) models.Product {
	t.Helper()
	p := models.Product{Name: name, Description: name, Capacity: "1", Category: "decor", Price: decimal.NewFromInt(10), Available: true}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestAddCheckRemove(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	owner := identity.ForGuest("guest-token-1")
	balloon := seedProduct(t, conn, "Balloon")

	check, err := svc.Check(ctx, owner, balloon.ID)
	require.NoError(t, err)
	assert.False(t, check.IsFavorite)

	view, err := svc.AddItem(ctx, owner, balloon.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Balloon", view.Items[0].Product.Name)
	assert.False(t, view.Items[0].AddedAt.IsZero())

	_, err = svc.AddItem(ctx, owner, balloon.ID)
	assert.True(t, pkgerrors.IsReason(err, ReasonAlreadyFavorited))

	check, err = svc.Check(ctx, owner, balloon.ID)
	require.NoError(t, err)
	assert.True(t, check.IsFavorite)

	view, err = svc.RemoveItem(ctx, owner, balloon.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = svc.RemoveItem(ctx, owner, balloon.ID)
	require.NoError(t, err)
}

func TestAddItemRequiresProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddItem(context.Background(), identity.ForUser(uuid.New()), uuid.New())
	assert.True(t, pkgerrors.IsReason(err, ReasonProductNotFound))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMissingListErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := identity.ForGuest("guest-token-1")

	view, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, view.ID)

	_, err = svc.RemoveItem(ctx, owner, uuid.New())
	assert.True(t, pkgerrors.IsReason(err, ReasonFavoritesNotFound))
	_, err = svc.Clear(ctx, owner)
	assert.True(t, pkgerrors.IsReason(err, ReasonFavoritesNotFound))

	_, err = svc.Get(ctx, identity.Owner{})
	assert.True(t, pkgerrors.IsReason(err, identity.ReasonOwnerRequired))
}

func TestClearKeepsList(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	owner := identity.ForUser(uuid.New())
	_, err := svc.AddItem(ctx, owner, seedProduct(t, conn, "Balloon").ID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, seedProduct(t, conn, "Cake").ID)
	require.NoError(t, err)

	view, err := svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.NotNil(t, view.ID)
	assert.Zero(t, view.Count)
}
