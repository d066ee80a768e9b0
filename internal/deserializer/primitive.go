package deserializer

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

// Go representations of primitive values:
//
//	Edm.Binary          []byte
//	Edm.Boolean         bool
//	Edm.Byte            uint8
//	Edm.SByte           int8
//	Edm.Int16/32/64     int16, int32, int64
//	Edm.Single/Double   float32, float64
//	Edm.Decimal         decimal.Decimal
//	Edm.Guid            uuid.UUID
//	Edm.Date            edm.Date
//	Edm.TimeOfDay       edm.TimeOfDay
//	Edm.DateTimeOffset  time.Time
//	Edm.Duration        time.Duration
//	Edm.String/Stream   string
//
// Numbers read without a type become int32 when they fit and float64 otherwise.

func parseInt(s string, bits int) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, bits)
}

// convertPrimitive converts a scalar token value to the Go value of t.
// checkEncoding enables the IEEE754Compatible string/number rule for Int64
// and Decimal.
func convertPrimitive(raw any, t *edm.TypeReference, ieee754, checkEncoding bool) (any, error) {
	if t == nil || t.Primitive() == nil {
		return defaultPrimitive(raw), nil
	}
	kind := t.PrimitiveKind()
	if checkEncoding && (kind == edm.PrimitiveInt64 || kind == edm.PrimitiveDecimal) {
		_, isString := raw.(string)
		if _, isNumber := raw.(jsonsource.Number); isString || isNumber {
			if isString != ieee754 {
				want := "JSON numbers"
				if ieee754 {
					want = "JSON strings"
				}
				return nil, newError(CodeNumericEncoding, "%s values must be %s", t.FullName(), want).
					withTypes(t.FullName(), jsonKind(raw))
			}
		}
	}

	var (
		v   any
		err error
	)
	switch raw := raw.(type) {
	case string:
		v, err = convertString(raw, kind)
	case jsonsource.Number:
		v, err = convertNumber(string(raw), kind)
	case bool:
		if kind != edm.PrimitiveBoolean {
			return nil, newError(CodeInvalidPrimitiveValue, "cannot convert a boolean to %s", t.FullName()).
				withTypes(t.FullName(), "boolean")
		}
		v = raw
	default:
		return nil, newError(CodeInternal, "unexpected token value %T", raw)
	}
	if err != nil {
		if e, ok := err.(*Error); ok {
			return nil, e.withTypes(t.FullName(), jsonKind(raw))
		}
		return nil, &Error{
			Code:     CodeInvalidPrimitiveValue,
			Message:  fmt.Sprintf("cannot convert %s to %s", jsonKind(raw), t.FullName()),
			Expected: t.FullName(),
			Actual:   jsonKind(raw),
			Err:      err,
		}
	}
	return v, nil
}

func defaultPrimitive(raw any) any {
	n, ok := raw.(jsonsource.Number)
	if !ok {
		return raw
	}
	if i, err := strconv.ParseInt(string(n), 10, 32); err == nil {
		return int32(i)
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return f
	}
	return string(n)
}

func jsonKind(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case jsonsource.Number:
		return "number"
	}
	return fmt.Sprintf("%T", raw)
}

func convertString(s string, kind edm.PrimitiveKind) (any, error) {
	switch kind {
	case edm.PrimitiveString, edm.PrimitiveStream:
		return s, nil
	case edm.PrimitiveBinary:
		return decodeBase64(s)
	case edm.PrimitiveGuid:
		return uuid.Parse(s)
	case edm.PrimitiveDate:
		return edm.ParseDate(s)
	case edm.PrimitiveTimeOfDay:
		return edm.ParseTimeOfDay(s)
	case edm.PrimitiveDateTimeOffset:
		return edm.ParseDateTimeOffset(s)
	case edm.PrimitiveDuration:
		return edm.ParseDuration(s)
	case edm.PrimitiveDouble, edm.PrimitiveSingle:
		switch s {
		case "INF":
			return floatOf(math.Inf(1), kind), nil
		case "-INF":
			return floatOf(math.Inf(-1), kind), nil
		case "NaN":
			return floatOf(math.NaN(), kind), nil
		}
		return convertNumber(s, kind)
	case edm.PrimitiveBoolean:
		return nil, newError(CodeInvalidPrimitiveValue, "cannot convert a string to Edm.Boolean")
	}
	if kind.IsSpatial() {
		return nil, newError(CodeObjectExpected, "a GeoJSON object is required for %s", kind)
	}
	return convertNumber(s, kind)
}

func floatOf(f float64, kind edm.PrimitiveKind) any {
	if kind == edm.PrimitiveSingle {
		return float32(f)
	}
	return f
}

func convertNumber(s string, kind edm.PrimitiveKind) (any, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case edm.PrimitiveByte:
		n, err := strconv.ParseUint(s, 10, 8)
		return uint8(n), err
	case edm.PrimitiveSByte:
		n, err := strconv.ParseInt(s, 10, 8)
		return int8(n), err
	case edm.PrimitiveInt16:
		n, err := strconv.ParseInt(s, 10, 16)
		return int16(n), err
	case edm.PrimitiveInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case edm.PrimitiveInt64:
		return strconv.ParseInt(s, 10, 64)
	case edm.PrimitiveDouble:
		return strconv.ParseFloat(s, 64)
	case edm.PrimitiveSingle:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case edm.PrimitiveDecimal:
		return decimal.NewFromString(s)
	}
	return nil, newError(CodeInvalidPrimitiveValue, "cannot convert a number to %s", kind)
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return nil, err
}
