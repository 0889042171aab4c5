package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("migration %s has no down file", version)
		}
	}
}

func TestAutoMigrateCreatesLedgerTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, table := range []string{"users", "point_buckets", "point_transactions", "reward_items", "redemption_records", "idempotency_keys"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

// MySQL rejects jsonb, TEXT keys and TEXT defaults, so every model column
// must resolve to a type the local MySQL setup accepts.
func TestModelsResolveToMySQLColumnTypes(t *testing.T) {
	conn, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "loyalty:loyalty@tcp(127.0.0.1:3306)/loyalty?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open mysql dialector: %v", err)
	}
	migrator, ok := conn.Migrator().(interface {
		FullDataTypeOf(*schema.Field) clause.Expr
	})
	if !ok {
		t.Fatalf("mysql migrator does not expose column types")
	}

	for _, model := range Models() {
		stmt := &gorm.Statement{DB: conn}
		if err := stmt.Parse(model); err != nil {
			t.Fatalf("parse %T: %v", model, err)
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			column := stmt.Schema.Table + "." + field.DBName
			sqlType := strings.ToLower(migrator.FullDataTypeOf(field).SQL)
			if strings.Contains(sqlType, "jsonb") {
				t.Fatalf("%s resolves to %q", column, sqlType)
			}
			if field.DataType == schema.String && !strings.HasPrefix(sqlType, "varchar") {
				t.Fatalf("%s should be a sized varchar, got %q", column, sqlType)
			}
		}
	}
}
