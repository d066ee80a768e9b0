package modelstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// queryBuilder accumulates SQL clauses for the registry's listing queries.
// Statements are written with ? placeholders and rewritten for the
// dialect when rendered.
type queryBuilder struct {
	db       *sql.DB
	dialect  string
	table    string
	wheres   []whereClause
	joins    []string
	selects  []string
	orderBys []string
	limit    *int
	offset   int
	logger   *slog.Logger
}

// whereClause represents a SQL condition with parameterized arguments
type whereClause struct {
	sql  string
	args []any
}

func newQueryBuilder(db *sql.DB, dialect string) *queryBuilder {
	return &queryBuilder{
		db:      db,
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithTable sets the target table for the query
func (qb *queryBuilder) WithTable(table string) *queryBuilder {
	qb.table = table
	return qb
}

// Where adds a WHERE condition to the query
func (qb *queryBuilder) Where(sql string, args ...any) *queryBuilder {
	qb.wheres = append(qb.wheres, whereClause{sql: sql, args: args})
	return qb
}

// Join adds a JOIN clause to the query
func (qb *queryBuilder) Join(sql string) *queryBuilder {
	qb.joins = append(qb.joins, sql)
	return qb
}

// Select sets the SELECT columns for the query
func (qb *queryBuilder) Select(cols ...string) *queryBuilder {
	qb.selects = append(qb.selects, cols...)
	return qb
}

// OrderBy adds an ORDER BY clause to the query
func (qb *queryBuilder) OrderBy(order string) *queryBuilder {
	qb.orderBys = append(qb.orderBys, order)
	return qb
}

// Limit sets the LIMIT for the query
func (qb *queryBuilder) Limit(n int) *queryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET for the query
func (qb *queryBuilder) Offset(n int) *queryBuilder {
	qb.offset = n
	return qb
}

// WithLogger sets the logger for the query builder
func (qb *queryBuilder) WithLogger(logger *slog.Logger) *queryBuilder {
	if logger != nil {
		qb.logger = logger
	}
	return qb
}

// Column quotes a table-qualified column for the builder's dialect.
func (qb *queryBuilder) Column(table, column string) string {
	return quoteIdent(qb.dialect, table) + "." + quoteIdent(qb.dialect, column)
}

// ToSQL builds the final SELECT SQL statement with parameterized arguments
func (qb *queryBuilder) ToSQL() (string, []any) {
	var sql strings.Builder

	sql.WriteString("SELECT ")
	if len(qb.selects) > 0 {
		sql.WriteString(strings.Join(qb.selects, ", "))
	} else {
		sql.WriteString("*")
	}
	args := qb.writeFrom(&sql)

	if len(qb.orderBys) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(qb.orderBys, ", "))
	}

	if qb.limit != nil {
		fmt.Fprintf(&sql, " LIMIT %d", *qb.limit)
	} else if qb.offset > 0 && qb.dialect == "sqlite" {
		// SQLite only accepts OFFSET after a LIMIT
		sql.WriteString(" LIMIT -1")
	}
	if qb.offset > 0 {
		fmt.Fprintf(&sql, " OFFSET %d", qb.offset)
	}

	return qb.rebind(sql.String()), args
}

// ToCountSQL builds a COUNT(*) query based on the current query builder state
func (qb *queryBuilder) ToCountSQL() (string, []any) {
	var sql strings.Builder
	sql.WriteString("SELECT COUNT(*)")
	args := qb.writeFrom(&sql)
	return qb.rebind(sql.String()), args
}

// writeFrom writes the FROM, JOIN and WHERE clauses and returns their arguments.
func (qb *queryBuilder) writeFrom(sql *strings.Builder) []any {
	var args []any
	if qb.table != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(quoteIdent(qb.dialect, qb.table))
	}

	for _, join := range qb.joins {
		sql.WriteString(" ")
		sql.WriteString(join)
	}

	if len(qb.wheres) > 0 {
		sql.WriteString(" WHERE ")
		whereClauses := make([]string, 0, len(qb.wheres))
		for _, w := range qb.wheres {
			whereClauses = append(whereClauses, w.sql)
			args = append(args, w.args...)
		}
		sql.WriteString(strings.Join(whereClauses, " AND "))
	}
	return args
}

func (qb *queryBuilder) rebind(query string) string {
	if qb.dialect == "postgres" || qb.dialect == "postgresql" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// QueryContext executes the query and returns the result rows
func (qb *queryBuilder) QueryContext(ctx context.Context) (*sql.Rows, error) {
	query, args := qb.ToSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing query", "sql", query, "args", args)
	}

	return qb.db.QueryContext(ctx, query, args...)
}

// CountContext executes the count query and returns the count
func (qb *queryBuilder) CountContext(ctx context.Context) (int64, error) {
	query, args := qb.ToCountSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing count query", "sql", query, "args", args)
	}

	var count int64
	if err := qb.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// convertToPostgresPlaceholders converts ? placeholders to $1, $2, ... for PostgreSQL.
// Placeholders inside quoted literals are left alone.
func convertToPostgresPlaceholders(query string) string {
	var result strings.Builder
	placeholderNum := 1
	inLiteral := false

	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '\'':
			inLiteral = !inLiteral
			result.WriteByte(c)
		case c == '?' && !inLiteral:
			fmt.Fprintf(&result, "$%d", placeholderNum)
			placeholderNum++
		default:
			result.WriteByte(c)
		}
	}

	return result.String()
}

func quoteIdent(dialect, name string) string {
	if dialect == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// prefixPattern turns a literal prefix into a LIKE pattern matched with ESCAPE '\'.
func prefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
