package deserializer

import (
	"bytes"
	"context"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// readUntypedValue captures the value the reader is on as JSON text. When
// insideObject is set the object's opening brace, and a leading odata.type
// if payloadTypeName is not empty, were already consumed; the type
// annotation is written back so the text stays complete.
func (d *Deserializer) readUntypedValue(ctx context.Context, insideObject bool, payloadTypeName string) (*value.UntypedValue, error) {
	var buf bytes.Buffer
	if !insideObject {
		if err := d.writeRawValue(ctx, &buf); err != nil {
			return nil, err
		}
		return &value.UntypedValue{RawValue: buf.String()}, nil
	}

	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()
	buf.WriteByte('{')
	first := true
	if payloadTypeName != "" {
		buf.WriteString(`"@odata.type":`)
		writeJSONString(&buf, "#"+payloadTypeName)
		first = false
	}
	if err := d.writeRawMembers(ctx, &buf, first); err != nil {
		return nil, err
	}
	return &value.UntypedValue{RawValue: buf.String()}, nil
}

// readRawValue is readUntypedValue for a value that has not been entered.
func (d *Deserializer) readRawValue(ctx context.Context) (*value.UntypedValue, error) {
	return d.readUntypedValue(ctx, false, "")
}

func (d *Deserializer) writeRawValue(ctx context.Context, buf *bytes.Buffer) error {
	switch d.r.NodeKind() {
	case jsonsource.PrimitiveValue:
		writeScalar(buf, d.r.Value())
		return d.read(ctx)
	case jsonsource.StartObject:
		if err := d.guard.enter(); err != nil {
			return err
		}
		defer d.guard.leave()
		if err := d.read(ctx); err != nil {
			return err
		}
		buf.WriteByte('{')
		return d.writeRawMembers(ctx, buf, true)
	case jsonsource.StartArray:
		if err := d.guard.enter(); err != nil {
			return err
		}
		defer d.guard.leave()
		if err := d.read(ctx); err != nil {
			return err
		}
		buf.WriteByte('[')
		for first := true; d.r.NodeKind() != jsonsource.EndArray; first = false {
			if !first {
				buf.WriteByte(',')
			}
			if err := d.writeRawValue(ctx, buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return d.read(ctx)
	}
	return newError(CodeUnexpectedNode, "unexpected %s while reading a raw value", d.r.NodeKind())
}

// writeRawMembers writes the remaining members of an entered object and
// its closing brace.
func (d *Deserializer) writeRawMembers(ctx context.Context, buf *bytes.Buffer, first bool) error {
	for ; d.r.NodeKind() == jsonsource.Property; first = false {
		name, err := d.propertyName()
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		writeJSONString(buf, name)
		buf.WriteByte(':')
		if err := d.read(ctx); err != nil {
			return err
		}
		if err := d.writeRawValue(ctx, buf); err != nil {
			return err
		}
	}
	if err := d.expectNode(jsonsource.EndObject); err != nil {
		return err
	}
	buf.WriteByte('}')
	return d.read(ctx)
}

func writeScalar(buf *bytes.Buffer, v any) {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case string:
		writeJSONString(buf, v)
	case jsonsource.Number:
		buf.WriteString(string(v))
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		buf.WriteString(strconv.Quote(s))
		return
	}
	buf.Write(b)
}
