package modelstore

import (
	"context"
	"fmt"
	"time"
)

// Entry describes a stored schema.
type Entry struct {
	Namespace string
	Digest    string
	Size      int64
	UpdatedAt time.Time
}

// ListOptions narrows a listing. A zero Limit means no limit.
type ListOptions struct {
	Prefix string
	Limit  int
	Offset int
}

// List returns the stored schemas ordered by namespace.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	qb := s.entries(opts)
	qb.Select(
		qb.Column(schemaTable, "namespace"),
		qb.Column(schemaTable, "digest"),
		qb.Column(blobTable, "size"),
		qb.Column(schemaTable, "updated_at"),
	).OrderBy(qb.Column(schemaTable, "namespace"))
	if opts.Limit > 0 {
		qb.Limit(opts.Limit)
	}
	qb.Offset(opts.Offset)

	rows, err := qb.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelstore: failed to list schemas: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Namespace, &e.Digest, &e.Size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("modelstore: failed to scan schema entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("modelstore: failed to list schemas: %w", err)
	}
	return entries, nil
}

// Count returns how many stored schemas match opts. Limit and Offset are ignored.
func (s *Store) Count(ctx context.Context, opts ListOptions) (int64, error) {
	n, err := s.entries(opts).CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("modelstore: failed to count schemas: %w", err)
	}
	return n, nil
}

func (s *Store) entries(opts ListOptions) *queryBuilder {
	qb := newQueryBuilder(s.sqlDB, s.dialect).WithLogger(s.logger).WithTable(schemaTable)
	qb.Join(fmt.Sprintf("JOIN %s ON %s = %s",
		quoteIdent(s.dialect, blobTable),
		qb.Column(blobTable, "digest"),
		qb.Column(schemaTable, "digest"),
	))
	if opts.Prefix != "" {
		qb.Where(qb.Column(schemaTable, "namespace")+` LIKE ? ESCAPE '\'`, prefixPattern(opts.Prefix))
	}
	return qb
}
