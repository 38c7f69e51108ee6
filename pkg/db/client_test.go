package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	sentinel := errors.New("rollback")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled-back"}).Error; err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after rollback, got %d", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&testModel{Name: "dup"}).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := db.Create(&testModel{Name: "dup"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected sqlite unique violation, got %v", err)
	}

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_carts_user"}
	if !IsUniqueViolation(fmt.Errorf("wrap: %w", pgErr), "ux_carts_user") {
		t.Fatalf("expected pg unique violation")
	}
	if IsUniqueViolation(pgErr, "other") {
		t.Fatalf("constraint name should be matched")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestNewSQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite, DSN: "file::memory:"}, logger.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql"}, nil); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestAsPGErrorNormalisesDrivers(t *testing.T) {
	pgx := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", ConstraintName: "fk_order_items_order", TableName: "order_items"})
	got, ok := AsPGError(pgx)
	if !ok || got.Code != "23503" || got.Constraint != "fk_order_items_order" || got.Table != "order_items" {
		t.Fatalf("unexpected pgx mapping %+v ok=%v", got, ok)
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_carts_user", Detail: "Key (user_id) already exists."}
	got, ok = AsPGError(pqErr)
	if !ok || got.Code != "23505" || got.Constraint != "ux_carts_user" || got.Detail == "" {
		t.Fatalf("unexpected pq mapping %+v ok=%v", got, ok)
	}
	if !IsUniqueViolation(pqErr, "ux_carts_user") {
		t.Fatalf("pq unique violation not recognised")
	}

	if _, ok := AsPGError(errors.New("boom")); ok {
		t.Fatalf("plain error is not a pg error")
	}
}
