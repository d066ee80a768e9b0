// devserver serves the OData JSON reader over HTTP for manual testing.
//
// POST /read/{kind}?type=NS.Type reads the request body as a payload of the
// given kind and answers with the normalized value. Content-Encoding is
// honored and every response carries a Server-Timing header. POST /schemas
// loads a schema document into the reader and, with a store configured,
// persists it. GET /schemas pages through the store with prefix, limit and
// offset query parameters. Bodies over the configured size are refused with
// 413, also when they only grow that large after decompression.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	addr := pflag.String("addr", ":8080", "listen address")
	configPath := pflag.StringP("config", "c", "", "YAML reader configuration")
	schemas := pflag.StringSliceP("schema", "s", nil, "schema document to load at startup; repeatable")
	storeDialect := pflag.String("store-dialect", "sqlite", "schema store dialect: sqlite or postgres")
	storeDSN := pflag.String("store-dsn", "", "schema store DSN (optional)")
	maxPayload := pflag.Int64("max-payload-size", defaultMaxPayloadSize, "largest decompressed payload accepted, in bytes")
	maxSchema := pflag.Int64("max-schema-size", defaultMaxSchemaSize, "largest schema document accepted, in bytes")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	srv, err := newServer(serverConfig{
		ConfigPath:     *configPath,
		Schemas:        *schemas,
		StoreDialect:   *storeDialect,
		StoreDSN:       *storeDSN,
		MaxPayloadSize: *maxPayload,
		MaxSchemaSize:  *maxSchema,
	}, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
