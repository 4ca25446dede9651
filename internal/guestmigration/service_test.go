package guestmigration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

const guestToken = "guest-token-123"

type fixture struct {
	conn      *gorm.DB
	carts     cart.Service
	favorites favorites.Service
	svc       Service
	caller    identity.Identity
	user      identity.Owner
	guest     identity.Owner
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.NewFromGorm(conn)
	locker := redis.NewLocalLocker(5 * time.Second)
	catalog := products.NewRepository(conn)

	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cartRepo, tx, catalog, locker, nil)
	require.NoError(t, err)
	favRepo := favorites.NewRepository(conn)
	favs, err := favorites.NewService(favorites.ServiceParams{Repo: favRepo, Tx: tx, Catalog: catalog, Locker: locker})
	require.NoError(t, err)

	svc, err := NewService(Params{
		Tx: tx, Locker: locker,
		CartRepo: cartRepo, FavoritesRepo: favRepo,
		Carts: carts, Favorites: favs,
	})
	require.NoError(t, err)

	userID := uuid.New()
	return fixture{
		conn: conn, carts: carts, favorites: favs, svc: svc,
		caller: identity.Authenticated(userID, enums.UserRoleCustomer),
		user:   identity.ForUser(userID),
		guest:  identity.ForGuest(guestToken),
	}
}

func (f fixture) product(t *testing.T, name string) uuid.UUID {
	t.Helper()
	p := models.Product{Name: name, Description: name, Capacity: "1", Category: "decor", Price: decimal.NewFromInt(50), Available: true}
	require.NoError(t, f.conn.Create(&p).Error)
	return p.ID
}

func quantities(view *cart.View) map[uuid.UUID]int {
	out := map[uuid.UUID]int{}
	for _, item := range view.Items {
		out[item.ProductID] = item.Quantity
	}
	return out
}

func countCarts(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.Cart{}).Count(&n).Error)
	return n
}

func TestPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MigrateCart(ctx, identity.Guest(guestToken), guestToken)
	assert.True(t, pkgerrors.IsReason(err, ReasonAuthRequired))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.MigrateFavorites(ctx, f.caller, "  ")
	assert.True(t, pkgerrors.IsReason(err, ReasonGuestTokenRequired))
}

func TestMigrateCartNoop(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.MigrateCart(context.Background(), f.caller, guestToken)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Equal(t, ModeNoop, res.Mode)
	assert.Empty(t, res.Cart.Items)
}

func TestMigrateCartRekeysWhenUserHasNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "Balloon")

	_, err := f.carts.AddItem(ctx, f.guest, balloon, 2)
	require.NoError(t, err)
	_, err = f.carts.AddParticipant(ctx, f.guest, "Ana")
	require.NoError(t, err)
	before, err := f.carts.Get(ctx, f.guest)
	require.NoError(t, err)

	res, err := f.svc.MigrateCart(ctx, f.caller, guestToken)
	require.NoError(t, err)
	assert.Equal(t, ModeRekeyed, res.Mode)
	assert.Equal(t, *before.ID, *res.Cart.ID)
	assert.Equal(t, 2, quantities(res.Cart)[balloon])
	assert.Equal(t, []string{"Ana"}, res.Cart.Participants)

	guestView, err := f.carts.Get(ctx, f.guest)
	require.NoError(t, err)
	assert.Nil(t, guestView.ID)
	assert.EqualValues(t, 1, countCarts(t, f.conn))
}

func TestMigrateCartMergesIntoExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "Balloon")
	cake := f.product(t, "Cake")
	hat := f.product(t, "Hat")

	_, err := f.carts.AddItem(ctx, f.user, balloon, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.user, hat, 4)
	require.NoError(t, err)
	for _, name := range []string{"Ana", "Bruno"} {
		_, err = f.carts.AddParticipant(ctx, f.user, name)
		require.NoError(t, err)
	}

	_, err = f.carts.AddItem(ctx, f.guest, balloon, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.guest, cake, 3)
	require.NoError(t, err)
	for _, name := range []string{"Bruno", "Carla"} {
		_, err = f.carts.AddParticipant(ctx, f.guest, name)
		require.NoError(t, err)
	}

	res, err := f.svc.MigrateCart(ctx, f.caller, guestToken)
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.Equal(t, ModeMerged, res.Mode)

	got := quantities(res.Cart)
	assert.Equal(t, map[uuid.UUID]int{balloon: 3, cake: 3, hat: 4}, got)
	assert.Equal(t, []string{"Ana", "Bruno", "Carla"}, res.Cart.Participants)
	assert.EqualValues(t, 1, countCarts(t, f.conn))

	again, err := f.svc.MigrateCart(ctx, f.caller, guestToken)
	require.NoError(t, err)
	assert.Equal(t, ModeNoop, again.Mode)
	assert.Equal(t, got, quantities(again.Cart))
}

func TestConcurrentMigrationsMergeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "Balloon")

	_, err := f.carts.AddItem(ctx, f.user, balloon, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.guest, balloon, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan *CartResult, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.MigrateCart(ctx, f.caller, guestToken)
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	merged := 0
	for res := range results {
		if res.Migrated {
			merged++
		}
	}
	assert.Equal(t, 1, merged)

	view, err := f.carts.Get(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 3, quantities(view)[balloon])
}

func TestMigrateFavorites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	balloon := f.product(t, "Balloon")
	cake := f.product(t, "Cake")

	_, err := f.favorites.AddItem(ctx, f.guest, balloon)
	require.NoError(t, err)
	_, err = f.favorites.AddItem(ctx, f.guest, cake)
	require.NoError(t, err)
	_, err = f.favorites.AddItem(ctx, f.user, balloon)
	require.NoError(t, err)

	// the guest saw the balloon first
	early := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, f.conn.Model(&models.FavoriteItem{}).
		Where("product_id = ? AND list_id IN (?)", balloon,
			f.conn.Model(&models.FavoriteList{}).Select("id").Where("guest_token = ?", guestToken)).
		Update("added_at", early).Error)

	res, err := f.svc.MigrateFavorites(ctx, f.caller, guestToken)
	require.NoError(t, err)
	assert.Equal(t, ModeMerged, res.Mode)
	require.Len(t, res.Favorites.Items, 2)

	byProduct := map[uuid.UUID]time.Time{}
	for _, item := range res.Favorites.Items {
		byProduct[item.ProductID] = item.AddedAt
	}
	assert.True(t, byProduct[balloon].Equal(early), "got %s", byProduct[balloon])
	assert.Contains(t, byProduct, cake)

	guestView, err := f.favorites.Get(ctx, f.guest)
	require.NoError(t, err)
	assert.Nil(t, guestView.ID)
}

func TestMigrateFavoritesRekeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.favorites.AddItem(ctx, f.guest, f.product(t, "Balloon"))
	require.NoError(t, err)

	res, err := f.svc.MigrateFavorites(ctx, f.caller, guestToken)
	require.NoError(t, err)
	assert.Equal(t, ModeRekeyed, res.Mode)
	assert.Len(t, res.Favorites.Items, 1)
}
