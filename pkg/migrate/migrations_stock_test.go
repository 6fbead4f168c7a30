package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stockroomhq/stockroom-backend/pkg/migrate"
)

func TestStockMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_stock_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS stock_levels",
		"PRIMARY KEY (product_id, warehouse_id)",
		"CHECK (on_hand >= 0)",
		"CHECK (reserved >= 0)",
		"CHECK (reserved <= on_hand)",
		"CREATE TABLE IF NOT EXISTS stock_transactions",
		"ux_stock_transactions_shipment_reference",
		"WHERE transaction_type = 'shipment'",
		"DROP TABLE IF EXISTS stock_transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_outbox_and_audit.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"ux_outbox_events_event_aggregate",
		"WHERE event_type = 'shipment_drift_reconciled'",
		"CREATE TABLE IF NOT EXISTS audit_records",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
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
