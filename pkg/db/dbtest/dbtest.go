// Package dbtest opens isolated in-memory SQLite databases carrying the
// application schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.CartParticipant{},
		&models.FavoriteList{},
		&models.FavoriteItem{},
		&models.OrderSequence{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns a gorm handle bound to a database private to t. The pool is
// capped at one connection, so code under test must stay on the tx handle
// while a transaction is open.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := conn.Create(&models.OrderSequence{Name: "orders", Value: 0}).Error; err != nil {
		t.Fatalf("seed order sequence: %v", err)
	}
	return conn
}

// Client wraps Open in the application's db.Client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(Open(t))
}
