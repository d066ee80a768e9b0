// Package modelstore persists schema documents in a SQL database so a
// service can rebuild its EDM model without the authoring files.
//
// Documents are stored once per distinct content: the CBOR encoding of a
// document is addressed by its BLAKE3 digest, and each namespace points at
// the digest of its current document.
package modelstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/schema"
)

// ErrNotFound is returned when a namespace has no stored schema.
var ErrNotFound = errors.New("modelstore: schema not found")

const (
	schemaTable = "odata_schemas"
	blobTable   = "odata_schema_blobs"
)

type schemaRecord struct {
	Namespace string `gorm:"primaryKey;size:255"`
	Digest    string `gorm:"size:64;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (schemaRecord) TableName() string { return schemaTable }

type blobRecord struct {
	Digest    string `gorm:"primaryKey;size:64"`
	Data      []byte `gorm:"not null"`
	Size      int64  `gorm:"not null"`
	CreatedAt time.Time
}

func (blobRecord) TableName() string { return blobTable }

// Store is a schema registry backed by gorm.
type Store struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	dialect string
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for registry operations and SQL traces.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Dialector returns the gorm dialector for a dialect name and DSN.
// Supported dialects are "sqlite" and "postgres".
func Dialector(dialect, dsn string) (gorm.Dialector, error) {
	switch dialect {
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("modelstore: unsupported dialect %q", dialect)
	}
}

// Open connects to the database and prepares the registry tables.
func Open(dialect, dsn string, opts ...Option) (*Store, error) {
	dialector, err := Dialector(dialect, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("modelstore: failed to open %s database: %w", dialect, err)
	}
	if dialector.Name() == "sqlite" {
		// every connection to an in-memory database sees its own copy
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("modelstore: failed to get sql.DB from gorm: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts...)
}

// New wraps an open gorm connection and migrates the registry tables.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("modelstore: database handle is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("modelstore: failed to get sql.DB from gorm: %w", err)
	}
	s := &Store{
		db:      db,
		sqlDB:   sqlDB,
		dialect: db.Dialector.Name(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&schemaRecord{}, &blobRecord{}); err != nil {
		return nil, fmt.Errorf("modelstore: failed to migrate registry tables: %w", err)
	}
	return s, nil
}

// Dialect returns the name of the underlying database dialect.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Digest returns the hex encoded BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores doc as the current schema of its namespace and returns the
// digest of its encoding. Storing identical content again is a no-op for
// the blob table.
func (s *Store) Put(ctx context.Context, doc *schema.Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	data, err := schema.EncodeCBOR(doc)
	if err != nil {
		return "", fmt.Errorf("modelstore: failed to encode %s: %w", doc.Namespace, err)
	}
	digest := Digest(data)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blob := blobRecord{Digest: digest, Data: data, Size: int64(len(data))}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&blob).Error; err != nil {
			return err
		}
		rec := schemaRecord{Namespace: doc.Namespace, Digest: digest}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}},
			DoUpdates: clause.AssignmentColumns([]string{"digest", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("modelstore: failed to store %s: %w", doc.Namespace, err)
	}

	s.logger.Debug("Stored schema", "namespace", doc.Namespace, "digest", digest, "size", len(data))
	return digest, nil
}

// Save stores the types and terms of namespace held in m.
func (s *Store) Save(ctx context.Context, m *edm.Model, namespace string) (string, error) {
	return s.Put(ctx, schema.FromModel(m, namespace))
}

// Get returns the current schema of namespace.
func (s *Store) Get(ctx context.Context, namespace string) (*schema.Document, error) {
	var rec schemaRecord
	err := s.db.WithContext(ctx).Take(&rec, "namespace = ?", namespace).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("modelstore: failed to look up %s: %w", namespace, err)
	}
	return s.Document(ctx, rec.Digest)
}

// Document returns the stored document with the given digest. The blob is
// checked against its digest before it is decoded.
func (s *Store) Document(ctx context.Context, digest string) (*schema.Document, error) {
	var blob blobRecord
	err := s.db.WithContext(ctx).Take(&blob, "digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: digest %s", ErrNotFound, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("modelstore: failed to load blob %s: %w", digest, err)
	}
	if got := Digest(blob.Data); got != digest {
		return nil, fmt.Errorf("modelstore: blob %s is corrupt (content digest %s)", digest, got)
	}
	return schema.Parse(blob.Data, schema.FormatCBOR)
}

// Delete removes the schema of namespace. The blob stays until Prune.
func (s *Store) Delete(ctx context.Context, namespace string) error {
	res := s.db.WithContext(ctx).Delete(&schemaRecord{}, "namespace = ?", namespace)
	if res.Error != nil {
		return fmt.Errorf("modelstore: failed to delete %s: %w", namespace, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}
	return nil
}

// Prune deletes blobs no namespace refers to and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)
	res := db.Where("digest NOT IN (?)", db.Model(&schemaRecord{}).Select("digest")).Delete(&blobRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("modelstore: failed to prune blobs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("Pruned schema blobs", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// LoadModel builds the stored schemas of namespaces into a new model, in
// the order given. Without namespaces every stored schema is loaded in
// namespace order.
func (s *Store) LoadModel(ctx context.Context, namespaces ...string) (*edm.Model, error) {
	if len(namespaces) == 0 {
		entries, err := s.List(ctx, ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			namespaces = append(namespaces, e.Namespace)
		}
	}

	m := edm.NewModel()
	for _, ns := range namespaces {
		doc, err := s.Get(ctx, ns)
		if err != nil {
			return nil, err
		}
		if err := doc.BuildInto(m); err != nil {
			return nil, fmt.Errorf("modelstore: %w", err)
		}
	}
	return m, nil
}
