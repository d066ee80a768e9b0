package odata

import (
	"errors"

	"github.com/nlstn/go-odata-reader/internal/deserializer"
)

// Error is the error type of failed reads.
type Error = deserializer.Error

// Code identifies the failure of a read.
type Code = deserializer.Code

// Category groups codes by the kind of inconsistency they report.
type Category = deserializer.Category

// Codes callers commonly branch on. The full set lives with the Error type.
const (
	CodeSyntax              = deserializer.CodeSyntax
	CodeRecursionLimit      = deserializer.CodeRecursionLimit
	CodeNestedCollection    = deserializer.CodeNestedCollection
	CodeUndeclaredProperty  = deserializer.CodeUndeclaredProperty
	CodeIncompatibleType    = deserializer.CodeIncompatibleType
	CodeNullValueNotAllowed = deserializer.CodeNullValueNotAllowed
	CodeDuplicateProperty   = deserializer.CodeDuplicateProperty
	CodeDeltaNotSupported   = deserializer.CodeDeltaNotSupported
)

// Categories.
const (
	CategoryUnknown      = deserializer.CategoryUnknown
	CategoryShape        = deserializer.CategoryShape
	CategoryTypeConflict = deserializer.CategoryTypeConflict
	CategoryOrdering     = deserializer.CategoryOrdering
	CategoryDuplicate    = deserializer.CategoryDuplicate
	CategoryRecursion    = deserializer.CategoryRecursion
	CategoryUndeclared   = deserializer.CategoryUndeclared
	CategoryUnsupported  = deserializer.CategoryUnsupported
	CategorySyntax       = deserializer.CategorySyntax
	CategoryInternal     = deserializer.CategoryInternal
)

// HasCode reports whether err is, or wraps, an *Error with the given code.
func HasCode(err error, code Code) bool {
	return deserializer.HasCode(err, code)
}

// CategoryOf returns the category of err, or CategoryUnknown for errors
// that did not come from a read.
func CategoryOf(err error) Category {
	return deserializer.CategoryOf(err)
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "Unknown"
}
