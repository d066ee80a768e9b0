package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	servertiming "github.com/mitchellh/go-server-timing"

	odata "github.com/nlstn/go-odata-reader"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
	contentTypeYAML = "application/yaml"

	defaultMaxPayloadSize = 32 << 20
	defaultMaxSchemaSize  = 4 << 20
)

type serverConfig struct {
	ConfigPath   string
	Schemas      []string
	StoreDialect string
	StoreDSN     string
	// Limits on request bodies after decompression. Zero selects the default.
	MaxPayloadSize int64
	MaxSchemaSize  int64
}

type server struct {
	reader         *odata.Reader
	store          *odata.SchemaStore
	logger         *slog.Logger
	maxPayloadSize int64
	maxSchemaSize  int64
}

func newServer(cfg serverConfig, logger *slog.Logger) (*server, error) {
	var readerCfg odata.ReaderConfig
	if cfg.ConfigPath != "" {
		var err error
		if readerCfg, err = odata.LoadConfig(cfg.ConfigPath); err != nil {
			return nil, err
		}
	}
	reader, err := odata.NewReaderWithConfig(nil, readerCfg)
	if err != nil {
		return nil, err
	}
	if err := reader.SetLogger(logger); err != nil {
		return nil, err
	}
	if err := reader.SetObservability(odata.ObservabilityConfig{
		ServiceName:        "odata-devserver",
		EnableServerTiming: true,
	}); err != nil {
		return nil, err
	}

	s := &server{
		reader:         reader,
		logger:         logger,
		maxPayloadSize: cfg.MaxPayloadSize,
		maxSchemaSize:  cfg.MaxSchemaSize,
	}
	if s.maxPayloadSize <= 0 {
		s.maxPayloadSize = defaultMaxPayloadSize
	}
	if s.maxSchemaSize <= 0 {
		s.maxSchemaSize = defaultMaxSchemaSize
	}
	if cfg.StoreDSN != "" {
		if s.store, err = odata.OpenSchemaStore(cfg.StoreDialect, cfg.StoreDSN); err != nil {
			return nil, err
		}
		if err := reader.LoadStoredSchemas(context.Background(), s.store); err != nil {
			s.Close()
			return nil, err
		}
	}
	for _, path := range cfg.Schemas {
		if err := reader.LoadSchemaFile(path); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *server) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close schema store", "error", err)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /read/{kind}", s.handleRead)
	mux.HandleFunc("GET /schemas", s.handleListSchemas)
	mux.HandleFunc("POST /schemas", s.handlePutSchema)
	mux.HandleFunc("GET /schemas/{namespace}", s.handleGetSchema)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return servertiming.Middleware(mux, nil)
}

func (s *server) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := odata.ParsePayloadKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "UnknownPayloadKind", err.Error(), "")
		return
	}

	var typ *odata.TypeReference
	if name := r.URL.Query().Get("type"); name != "" {
		nullable := r.URL.Query().Get("nullable") != "false"
		if typ, err = s.reader.TypeRef(name, nullable); err != nil {
			writeError(w, http.StatusBadRequest, "UnknownType", err.Error(), "type")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxPayloadSize)
	decoded, err := odata.Decompress(r.Body, r.Header.Get("Content-Encoding"))
	if err != nil {
		if tooLarge(w, err) {
			return
		}
		writeError(w, http.StatusUnsupportedMediaType, "UnsupportedEncoding", err.Error(), "")
		return
	}
	// the decompressed stream has its own limit
	body := http.MaxBytesReader(w, decoded, s.maxPayloadSize)
	defer body.Close()

	result, err := s.reader.Read(ctx, body, kind, typ)
	if err != nil {
		if tooLarge(w, err) {
			return
		}
		var readErr *odata.Error
		if errors.As(err, &readErr) {
			writeError(w, http.StatusBadRequest, string(readErr.Code), readErr.Error(), readErr.Property)
			return
		}
		writeError(w, http.StatusBadRequest, "ReadFailed", err.Error(), "")
		return
	}

	metric := odata.StartServerTiming(ctx, "render")
	plain, err := odata.Plain(result)
	metric.Stop()
	if err != nil {
		s.logger.Error("Failed to render value", "error", err)
		writeError(w, http.StatusInternalServerError, "RenderFailed", err.Error(), "")
		return
	}
	writeValue(w, r, http.StatusOK, plain)
}

func (s *server) handlePutSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := schemaFormat(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "UnsupportedMediaType", err.Error(), "")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxSchemaSize))
	if err != nil {
		if tooLarge(w, err) {
			return
		}
		writeError(w, http.StatusBadRequest, "ReadFailed", err.Error(), "")
		return
	}

	metric := odata.StartServerTiming(ctx, "schema-load")
	doc, err := odata.ParseSchema(data, format)
	if err == nil {
		err = s.reader.LoadSchema(doc)
	}
	metric.Stop()
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidSchema", err.Error(), "")
		return
	}

	resp := map[string]any{"namespace": doc.Namespace}
	if s.store != nil {
		metric := odata.StartServerTiming(ctx, "schema-store")
		digest, err := s.reader.SaveSchema(ctx, s.store, doc.Namespace)
		metric.Stop()
		if err != nil {
			s.logger.Error("Failed to store schema", "namespace", doc.Namespace, "error", err)
			writeError(w, http.StatusInternalServerError, "StoreFailed", err.Error(), "")
			return
		}
		resp["digest"] = digest
	}
	writeValue(w, r, http.StatusCreated, resp)
}

type schemaEntry struct {
	Namespace string    `json:"namespace"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type schemaList struct {
	Count int64         `json:"count"`
	Value []schemaEntry `json:"value"`
}

// handleListSchemas pages through the store. The count covers every schema
// matching the prefix, not just the returned page.
func (s *server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "NoStore", "no schema store is configured", "")
		return
	}
	query := r.URL.Query()
	opts := odata.SchemaListOptions{Prefix: query.Get("prefix")}
	var err error
	if opts.Limit, err = queryInt(query.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", err.Error(), "limit")
		return
	}
	if opts.Offset, err = queryInt(query.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", err.Error(), "offset")
		return
	}

	ctx := r.Context()
	metric := odata.StartServerTiming(ctx, "schema-list")
	entries, err := s.store.List(ctx, opts)
	var total int64
	if err == nil {
		total, err = s.store.Count(ctx, opts)
	}
	metric.Stop()
	if err != nil {
		s.logger.Error("Failed to list schemas", "error", err)
		writeError(w, http.StatusInternalServerError, "StoreFailed", err.Error(), "")
		return
	}

	out := schemaList{Count: total, Value: make([]schemaEntry, 0, len(entries))}
	for _, e := range entries {
		out.Value = append(out.Value, schemaEntry{
			Namespace: e.Namespace,
			Digest:    e.Digest,
			Size:      e.Size,
			UpdatedAt: e.UpdatedAt,
		})
	}
	writeValue(w, r, http.StatusOK, out)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	return n, nil
}

func (s *server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	doc := s.reader.ExportSchema(r.PathValue("namespace"))
	if len(doc.EntityTypes) == 0 && len(doc.ComplexTypes) == 0 && len(doc.EnumTypes) == 0 &&
		len(doc.TypeDefinitions) == 0 && len(doc.Terms) == 0 {
		writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("namespace %q has no types", doc.Namespace), "")
		return
	}
	w.Header().Set("Content-Type", contentTypeYAML)
	w.WriteHeader(http.StatusOK)
	if err := odata.EncodeSchemaYAML(w, doc); err != nil {
		s.logger.Error("Failed to write schema", "error", err)
	}
}

func schemaFormat(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Type %q", contentType)
	}
	switch mediaType {
	case contentTypeYAML, "application/x-yaml", "text/yaml":
		return "yaml", nil
	case contentTypeJSON, "application/jsonc":
		return "jsonc", nil
	case contentTypeCBOR:
		return "cbor", nil
	}
	return "", fmt.Errorf("unsupported schema media type %q", mediaType)
}

func wantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part)); err == nil && mediaType == contentTypeCBOR {
			return true
		}
	}
	return false
}

func writeValue(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		data        []byte
		err         error
		contentType = contentTypeJSON
	)
	if wantsCBOR(r) {
		contentType = contentTypeCBOR
		data, err = cbor.Marshal(v)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EncodeFailed", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// tooLarge answers 413 when err comes from an exceeded body limit.
func tooLarge(w http.ResponseWriter, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, "PayloadTooLarge",
		fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), "")
	return true
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, target string) {
	data, err := json.Marshal(errorBody{Error: errorDetail{Code: code, Message: message, Target: target}})
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
