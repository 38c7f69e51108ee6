package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if err := migrate.ValidateDir(migrate.DefaultDir); err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
}

func TestListOrdersByVersion(t *testing.T) {
	files, err := migrate.List(os.DirFS("migrations"), ".")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(files))
	}
	if files[0].Name != "create_catalog" || files[len(files)-1].Name != "seed_dev_catalog" {
		t.Fatalf("unexpected order %+v", files)
	}
}

func TestListRejectsBrokenMigrations(t *testing.T) {
	cases := map[string]map[string]string{
		"bad name":       {"add_things.sql": "-- +goose Up\n-- +goose Down\n"},
		"bad timestamp":  {"20261399000000_add_things.sql": "-- +goose Up\n-- +goose Down\n"},
		"missing down":   {"20260101000000_add_things.sql": "-- +goose Up\n"},
		"shared version": {"20260101000000_a.sql": "-- +goose Up\n-- +goose Down\n", "20260101000000_b.sql": "-- +goose Up\n-- +goose Down\n"},
	}
	for name, files := range cases {
		dir := t.TempDir()
		for file, body := range files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
				t.Fatalf("%s: write: %v", name, err)
			}
		}
		if err := migrate.ValidateDir(dir); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestOrdersMigrationContainsInvariants(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CHECK (total_cents = subtotal_cents + tax_cents + shipping_fee_cents)",
		"CREATE TABLE IF NOT EXISTS transactions",
		"CREATE TABLE IF NOT EXISTS refunds",
		"CHECK (amount_cents > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_return_requests_open_item",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_carts.sql")

	checks := []string{
		"CONSTRAINT ux_carts_user UNIQUE (user_id)",
		"CHECK (quantity > 0)",
		"CONSTRAINT ux_cart_items_line UNIQUE (cart_id, product_id, variant_id)",
		"version BIGINT NOT NULL DEFAULT 0",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Gift Cards!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_gift_cards.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
