package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	odata "github.com/nlstn/go-odata-reader"
)

const salesSchema = `
namespace: Sales
complexTypes:
  - name: Money
    properties:
      - {name: Amount, type: Decimal}
      - {name: Currency, type: String}
entityTypes:
  - name: Invoice
    key: [ID]
    properties:
      - {name: ID, type: Int32, nullable: false}
      - {name: Total, type: Money}
`

const invoicePayload = `{"@odata.context":"http://host/$metadata#Invoices/$entity","ID":1,"Total":{"Amount":12.5,"Currency":"EUR"}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func checkInvoice(t *testing.T, out map[string]any) {
	t.Helper()
	if out["@odata.type"] != "#Sales.Invoice" {
		t.Errorf("@odata.type = %v, want #Sales.Invoice", out["@odata.type"])
	}
	total, ok := out["Total"].(map[string]any)
	if !ok {
		t.Fatalf("Total = %T, want an object", out["Total"])
	}
	if total["Amount"] != "12.5" || total["Currency"] != "EUR" {
		t.Errorf("Total = %v, want 12.5 EUR", total)
	}
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "sales.yaml", salesSchema)

	stdout, err := runCommand(t, invoicePayload, "--schema", schema, "--type", "Sales.Invoice")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	checkInvoice(t, out)
}

func TestRunCBORToFile(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "sales.yaml", salesSchema)
	payload := writeFile(t, dir, "invoice.json", invoicePayload)
	output := filepath.Join(dir, "invoice.cbor")

	if _, err := runCommand(t, "", "-s", schema, "-t", "Sales.Invoice", "-f", "cbor", "-o", output, payload); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var out map[string]any
	if err := cbor.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not CBOR: %v", err)
	}
	if out["@odata.type"] != "#Sales.Invoice" {
		t.Errorf("@odata.type = %v, want #Sales.Invoice", out["@odata.type"])
	}
}

func TestRunCompressedWithConfig(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "sales.yaml", salesSchema)
	config := writeFile(t, dir, "reader.yaml", "ieee754Compatible: true\n")

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd.NewWriter() error = %v", err)
	}
	if _, err := enc.Write([]byte(`{"ID":1,"Total":{"Amount":"12.5","Currency":"EUR"}}`)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	stdout, err := runCommand(t, buf.String(), "-s", schema, "-c", config, "-t", "Sales.Invoice", "--encoding", "zstd")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	checkInvoice(t, out)
}

func TestRunStoredSchemas(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "schemas.db")

	store, err := odata.OpenSchemaStore("sqlite", dsn)
	if err != nil {
		t.Fatalf("OpenSchemaStore() error = %v", err)
	}
	doc, err := odata.ParseSchema([]byte(salesSchema), "yaml")
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	if _, err := store.Put(context.Background(), doc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	stdout, err := runCommand(t, invoicePayload, "--store-dsn", dsn, "--store-namespace", "Sales", "-t", "Sales.Invoice")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	checkInvoice(t, out)
}

func TestRunReferenceLinks(t *testing.T) {
	stdout, err := runCommand(t, `{"value":[{"@odata.id":"http://host/Orders(1)"}]}`, "--kind", "refs")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout, `"@odata.id": "http://host/Orders(1)"`) {
		t.Errorf("output = %s, want the link id", stdout)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "sales.yaml", salesSchema)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"unknown kind", "{}", []string{"--kind", "entity"}, "unknown payload kind"},
		{"unknown format", "{}", []string{"--format", "xml"}, "unknown output format"},
		{"unknown type", "{}", []string{"-s", schema, "-t", "Sales.Missing"}, "unknown type"},
		{"extra argument", "{}", []string{"a.json", "b.json"}, "unexpected argument"},
		{"missing payload", "", []string{filepath.Join(dir, "missing.json")}, "failed to open payload"},
		{"undeclared property", `{"ID":1,"Extra":true}`, []string{"-s", schema, "-t", "Sales.Invoice"}, "Extra"},
		{"bad encoding", "{}", []string{"--encoding", "br"}, "br"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.stdin, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	_, err := runCommand(t, "", "--help")
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("run(--help) error = %v, want pflag.ErrHelp", err)
	}
}
