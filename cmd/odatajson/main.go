// odatajson reads an OData JSON payload against a schema and prints the
// decoded value as normalized JSON or as CBOR.
//
// Schemas come from YAML, JSONC or CBOR schema documents (--schema) and,
// optionally, from a schema store database (--store-dsn). The payload is read
// from a file argument or from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	odata "github.com/nlstn/go-odata-reader"
)

type options struct {
	schemas        []string
	configPath     string
	typeName       string
	nullable       bool
	kind           string
	encoding       string
	format         string
	output         string
	storeDialect   string
	storeDSN       string
	storeNamespace []string
	verbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("odatajson", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringArrayVarP(&opts.schemas, "schema", "s", nil, "schema document (.yaml, .jsonc or .cbor); repeatable")
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML reader configuration")
	flagSet.StringVarP(&opts.typeName, "type", "t", "", "expected type; the element type for collections and resource sets")
	flagSet.BoolVar(&opts.nullable, "nullable", true, "whether the expected type is nullable")
	flagSet.StringVarP(&opts.kind, "kind", "k", string(odata.PayloadResource), "payload kind: "+kindList())
	flagSet.StringVar(&opts.encoding, "encoding", "", "content encoding of the payload (gzip, deflate, zstd, lz4)")
	flagSet.StringVarP(&opts.format, "format", "f", "json", "output format: json or cbor")
	flagSet.StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	flagSet.StringVar(&opts.storeDialect, "store-dialect", "sqlite", "schema store dialect: sqlite or postgres")
	flagSet.StringVar(&opts.storeDSN, "store-dsn", "", "schema store DSN; loads stored schemas when set")
	flagSet.StringArrayVar(&opts.storeNamespace, "store-namespace", nil, "stored namespace to load (default: all); repeatable")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: odatajson [flags] [payload-file]\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	return flagSet
}

func kindList() string {
	names := make([]string, len(odata.PayloadKinds))
	for i, k := range odata.PayloadKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts options
	flagSet := newFlagSet(&opts, stderr)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 1 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(1))
	}
	kind, err := odata.ParsePayloadKind(opts.kind)
	if err != nil {
		return err
	}
	if opts.format != "json" && opts.format != "cbor" {
		return fmt.Errorf("unknown output format %q", opts.format)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	reader, err := newReader(ctx, &opts, logger)
	if err != nil {
		return err
	}

	var typ *odata.TypeReference
	if opts.typeName != "" {
		typ, err = reader.TypeRef(opts.typeName, opts.nullable)
		if err != nil {
			return err
		}
	}

	in := stdin
	if path := flagSet.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open payload: %w", err)
		}
		defer f.Close()
		in = f
	}
	body, err := odata.Decompress(in, opts.encoding)
	if err != nil {
		return err
	}
	defer body.Close()

	result, err := reader.Read(ctx, body, kind, typ)
	if err != nil {
		return err
	}
	plain, err := odata.Plain(result)
	if err != nil {
		return err
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return write(out, opts.format, plain)
}

func newReader(ctx context.Context, opts *options, logger *slog.Logger) (*odata.Reader, error) {
	var cfg odata.ReaderConfig
	if opts.configPath != "" {
		var err error
		cfg, err = odata.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}
	reader, err := odata.NewReaderWithConfig(nil, cfg)
	if err != nil {
		return nil, err
	}
	if err := reader.SetLogger(logger); err != nil {
		return nil, err
	}

	if opts.storeDSN != "" {
		store, err := odata.OpenSchemaStore(opts.storeDialect, opts.storeDSN)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if err := reader.LoadStoredSchemas(ctx, store, opts.storeNamespace...); err != nil {
			return nil, err
		}
	}
	for _, path := range opts.schemas {
		if err := reader.LoadSchemaFile(path); err != nil {
			return nil, err
		}
	}
	return reader, nil
}

func write(w io.Writer, format string, v any) error {
	if format == "cbor" {
		mode, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			return err
		}
		return mode.NewEncoder(w).Encode(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
