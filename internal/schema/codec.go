package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format names a document encoding.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
	FormatCBOR  Format = "cbor"
)

// FormatFromPath picks the format from a file extension. Unknown
// extensions are read as JSONC, which also accepts plain JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".cbor":
		return FormatCBOR
	default:
		return FormatJSONC
	}
}

// encMode uses Core Deterministic Encoding so equal documents encode to
// equal bytes, which the model store relies on for content addressing.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("schema: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		panic("schema: CBOR decoder initialization failed: " + err.Error())
	}
}

// Parse decodes a document in the given format and validates it.
func Parse(data []byte, format Format) (*Document, error) {
	var (
		doc Document
		err error
	)
	switch format {
	case FormatYAML:
		err = parseYAML(data, &doc)
	case FormatJSONC:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatCBOR:
		err = decMode.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("schema: unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s schema: %w", format, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func parseYAML(data []byte, doc *Document) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

// ReadFile reads and parses a schema document, choosing the format from
// the file extension.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// EncodeCBOR encodes doc deterministically.
func EncodeCBOR(doc *Document) ([]byte, error) {
	return encMode.Marshal(doc)
}

// EncodeYAML writes doc in its authoring form.
func EncodeYAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
