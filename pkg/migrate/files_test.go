package migrate

import (
	"strings"
	"testing"
	"time"
)

func TestCreateAtRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := createAt(dir, "  Backfill Order Totals ", now)
	if err != nil {
		t.Fatalf("createAt: %v", err)
	}
	if !strings.HasSuffix(path, "20260301120000_backfill_order_totals.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := createAt(dir, "backfill order totals", now); err == nil {
		t.Fatalf("expected collision error")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatalf("expected error for unusable name")
	}
}
