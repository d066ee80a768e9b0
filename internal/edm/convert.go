package edm

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned by converters when a value does not fit the defined type.
var ErrOverflow = errors.New("value overflows the defined type")

// PrimitiveValueConverter converts values of a type definition's underlying
// primitive type into the representation of the defined type.
type PrimitiveValueConverter interface {
	FromUnderlying(value any) (any, error)
}

// ConverterFunc adapts a function to PrimitiveValueConverter.
type ConverterFunc func(value any) (any, error)

func (f ConverterFunc) FromUnderlying(value any) (any, error) { return f(value) }

type passThroughConverter struct{}

func (passThroughConverter) FromUnderlying(value any) (any, error) { return value, nil }

// DefaultConverter returns the built-in converter for a type definition.
// UInt16, UInt32 and UInt64 definitions over Int32, Int64 and Decimal map to
// Go unsigned integers with overflow checks; everything else passes through.
func DefaultConverter(def *TypeDefinition) PrimitiveValueConverter {
	if def == nil || def.Underlying == nil {
		return passThroughConverter{}
	}
	switch {
	case def.Name == "UInt16" && def.Underlying.kind == PrimitiveInt32:
		return ConverterFunc(func(v any) (any, error) {
			n, ok := v.(int32)
			if !ok {
				return v, nil
			}
			if n < 0 || n > math.MaxUint16 {
				return nil, fmt.Errorf("%d: %w", n, ErrOverflow)
			}
			return uint16(n), nil
		})
	case def.Name == "UInt32" && def.Underlying.kind == PrimitiveInt64:
		return ConverterFunc(func(v any) (any, error) {
			n, ok := v.(int64)
			if !ok {
				return v, nil
			}
			if n < 0 || n > math.MaxUint32 {
				return nil, fmt.Errorf("%d: %w", n, ErrOverflow)
			}
			return uint32(n), nil
		})
	case def.Name == "UInt64" && def.Underlying.kind == PrimitiveDecimal:
		return ConverterFunc(func(v any) (any, error) {
			d, ok := v.(decimal.Decimal)
			if !ok {
				return v, nil
			}
			if !d.IsInteger() || d.Sign() < 0 || d.BigInt().BitLen() > 64 {
				return nil, fmt.Errorf("%s: %w", d.String(), ErrOverflow)
			}
			return d.BigInt().Uint64(), nil
		})
	}
	return passThroughConverter{}
}
