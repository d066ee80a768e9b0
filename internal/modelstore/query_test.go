package modelstore

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
)

func setupQueryBuilderTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE namespaces (
			name TEXT PRIMARY KEY,
			size INTEGER NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO namespaces (name, size) VALUES
		('Sales.Model', 10),
		('Sales.Orders', 20),
		('Sales_Archive', 30),
		('Stock', 40)
	`)
	if err != nil {
		t.Fatalf("Failed to insert test data: %v", err)
	}
	return db
}

func TestQueryBuilderToSQL(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		build    func(qb *queryBuilder)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "select all",
			dialect: "sqlite",
			build:   func(qb *queryBuilder) {},
			wantSQL: `SELECT * FROM "namespaces"`,
		},
		{
			name:    "columns where order limit",
			dialect: "sqlite",
			build: func(qb *queryBuilder) {
				qb.Select("name", "size").Where("size > ?", 10).OrderBy("name").Limit(2).Offset(1)
			},
			wantSQL:  `SELECT name, size FROM "namespaces" WHERE size > ? ORDER BY name LIMIT 2 OFFSET 1`,
			wantArgs: []any{10},
		},
		{
			name:    "sqlite offset without limit",
			dialect: "sqlite",
			build: func(qb *queryBuilder) {
				qb.Offset(3)
			},
			wantSQL: `SELECT * FROM "namespaces" LIMIT -1 OFFSET 3`,
		},
		{
			name:    "postgres placeholders",
			dialect: "postgres",
			build: func(qb *queryBuilder) {
				qb.Where("size > ?", 1).Where(`name LIKE ? ESCAPE '\'`, "S%").Where("note = '?'")
			},
			wantSQL:  `SELECT * FROM "namespaces" WHERE size > $1 AND name LIKE $2 ESCAPE '\' AND note = '?'`,
			wantArgs: []any{1, "S%"},
		},
		{
			name:    "join",
			dialect: "sqlite",
			build: func(qb *queryBuilder) {
				qb.Join(`JOIN "blobs" ON "blobs"."digest" = "namespaces"."digest"`)
			},
			wantSQL: `SELECT * FROM "namespaces" JOIN "blobs" ON "blobs"."digest" = "namespaces"."digest"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := newQueryBuilder(nil, tt.dialect).WithTable("namespaces")
			tt.build(qb)
			gotSQL, gotArgs := qb.ToSQL()
			if gotSQL != tt.wantSQL {
				t.Errorf("ToSQL() sql = %q, want %q", gotSQL, tt.wantSQL)
			}
			if !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Errorf("ToSQL() args = %v, want %v", gotArgs, tt.wantArgs)
			}
		})
	}
}

func TestQueryBuilderToCountSQL(t *testing.T) {
	qb := newQueryBuilder(nil, "postgres").WithTable("namespaces").Where("size > ?", 5).OrderBy("name").Limit(1)
	gotSQL, gotArgs := qb.ToCountSQL()
	if want := `SELECT COUNT(*) FROM "namespaces" WHERE size > $1`; gotSQL != want {
		t.Errorf("ToCountSQL() sql = %q, want %q", gotSQL, want)
	}
	if len(gotArgs) != 1 || gotArgs[0] != 5 {
		t.Errorf("ToCountSQL() args = %v, want [5]", gotArgs)
	}
}

func TestQueryBuilderExecute(t *testing.T) {
	db := setupQueryBuilderTestDB(t)
	ctx := context.Background()

	qb := newQueryBuilder(db, "sqlite").WithTable("namespaces").
		Select("name").
		Where(`name LIKE ? ESCAPE '\'`, prefixPattern("Sales_")).
		OrderBy("name")
	rows, err := qb.QueryContext(ctx)
	if err != nil {
		t.Fatalf("QueryContext() error = %v", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if want := []string{"Sales_Archive"}; !reflect.DeepEqual(names, want) {
		t.Errorf("QueryContext() names = %v, want %v", names, want)
	}

	count, err := newQueryBuilder(db, "sqlite").WithTable("namespaces").
		Where(`name LIKE ? ESCAPE '\'`, prefixPattern("Sales.")).
		CountContext(ctx)
	if err != nil {
		t.Fatalf("CountContext() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountContext() = %d, want 2", count)
	}
}

func TestPrefixPattern(t *testing.T) {
	tests := map[string]string{
		"Sales":   "Sales%",
		"a_b":     `a\_b%`,
		"100%":    `100\%%`,
		`back\sl`: `back\\sl%`,
	}
	for in, want := range tests {
		if got := prefixPattern(in); got != want {
			t.Errorf("prefixPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("sqlite", `we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent(sqlite) = %s", got)
	}
	if got := quoteIdent("mysql", "t"); got != "`t`" {
		t.Errorf("quoteIdent(mysql) = %s", got)
	}
}
