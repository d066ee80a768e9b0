package odata

import (
	"context"
	"fmt"
	"io"

	"github.com/nlstn/go-odata-reader/internal/modelstore"
	"github.com/nlstn/go-odata-reader/internal/schema"
)

// SchemaDocument describes the types and terms of one namespace.
type SchemaDocument = schema.Document

// SchemaStore persists schema documents in a SQL database.
type SchemaStore = modelstore.Store

// SchemaEntry describes one stored schema document.
type SchemaEntry = modelstore.Entry

// SchemaListOptions narrows a listing of stored schemas.
type SchemaListOptions = modelstore.ListOptions

// ParseSchema parses a schema document. format is "yaml", "jsonc" or "cbor".
func ParseSchema(data []byte, format string) (*SchemaDocument, error) {
	return schema.Parse(data, schema.Format(format))
}

// EncodeSchemaYAML writes doc as a YAML schema document.
func EncodeSchemaYAML(w io.Writer, doc *SchemaDocument) error {
	return schema.EncodeYAML(w, doc)
}

// OpenSchemaStore opens a schema registry. dialect is "sqlite" or "postgres".
func OpenSchemaStore(dialect, dsn string) (*SchemaStore, error) {
	return modelstore.Open(dialect, dsn)
}

// LoadSchema adds the types and terms of doc to the model. Names may refer
// to types already in the model. On error the model may hold part of doc.
func (r *Reader) LoadSchema(doc *SchemaDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := doc.BuildInto(r.model); err != nil {
		return fmt.Errorf("odata: failed to load schema: %w", err)
	}
	r.provider.Invalidate()
	r.logger.Info("Schema loaded",
		"namespace", doc.Namespace,
		"entity_types", len(doc.EntityTypes),
		"complex_types", len(doc.ComplexTypes),
	)
	return nil
}

// LoadSchemaFile loads a schema document from a YAML, JSONC or CBOR file.
// The format follows the file extension.
func (r *Reader) LoadSchemaFile(path string) error {
	doc, err := schema.ReadFile(path)
	if err != nil {
		return fmt.Errorf("odata: %w", err)
	}
	return r.LoadSchema(doc)
}

// LoadStoredSchemas loads the schemas of namespaces from store, in the
// order given. Without namespaces every stored schema is loaded in
// namespace order.
func (r *Reader) LoadStoredSchemas(ctx context.Context, store *SchemaStore, namespaces ...string) error {
	if len(namespaces) == 0 {
		entries, err := store.List(ctx, modelstore.ListOptions{})
		if err != nil {
			return err
		}
		for _, e := range entries {
			namespaces = append(namespaces, e.Namespace)
		}
	}
	for _, ns := range namespaces {
		doc, err := store.Get(ctx, ns)
		if err != nil {
			return err
		}
		if err := r.LoadSchema(doc); err != nil {
			return err
		}
	}
	return nil
}

// ExportSchema describes the types and terms of namespace held in the model.
func (r *Reader) ExportSchema(namespace string) *SchemaDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return schema.FromModel(r.model, namespace)
}

// SaveSchema stores the types and terms of namespace in store and returns
// the digest of the stored document.
func (r *Reader) SaveSchema(ctx context.Context, store *SchemaStore, namespace string) (string, error) {
	return store.Put(ctx, r.ExportSchema(namespace))
}
