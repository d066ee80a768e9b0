package deserializer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

// Code identifies a failure. Codes are stable and meant to be compared by callers.
type Code string

const (
	// shape
	CodeUnexpectedNode         Code = "UnexpectedNodeKind"
	CodeArrayExpected          Code = "ArrayExpected"
	CodeObjectExpected         Code = "ObjectExpected"
	CodePrimitiveExpected      Code = "PrimitiveValueExpected"
	CodeEnumNotString          Code = "EnumValueMustBeString"
	CodeNestedCollection       Code = "NestedCollectionNotAllowed"
	CodeNullValueNotAllowed    Code = "NullValueForNonNullableType"
	CodeInvalidAnnotationValue Code = "InvalidAnnotationValue"

	// type conflicts
	CodeIncompatibleType       Code = "IncompatibleType"
	CodeIncorrectTypeKind      Code = "IncorrectTypeKind"
	CodeInvalidTypeName        Code = "InvalidTypeName"
	CodeCollectionTypeName     Code = "CollectionTypeNameNotAllowed"
	CodeMissingCollectionName  Code = "CollectionTypeNameExpected"
	CodeCollectionItemMismatch Code = "IncompatibleCollectionItem"
	CodeNumericEncoding        Code = "NumericEncodingMismatch"
	CodeInvalidPrimitiveValue  Code = "InvalidPrimitiveValue"
	CodeTypeDefinitionOverflow Code = "TypeDefinitionOverflow"

	// ordering and placement
	CodeTypeAnnotationNotFirst       Code = "TypeAnnotationNotFirst"
	CodeAnnotationAfterProperty      Code = "InstanceAnnotationAfterProperty"
	CodePropertyAnnotationAfterValue Code = "PropertyAnnotationAfterProperty"
	CodePropertyWithoutValue         Code = "PropertyWithoutValue"
	CodeUnexpectedAnnotation         Code = "UnexpectedAnnotation"
	CodeUnexpectedPropertyAnnotation Code = "UnexpectedPropertyAnnotation"
	CodeUnexpectedMetadataReference  Code = "UnexpectedMetadataReference"
	CodeEmptyBindArray               Code = "EmptyBindArray"
	CodeInvalidBind                  Code = "InvalidBindAnnotation"
	CodeMissingValueProperty         Code = "MissingValueProperty"
	CodeInvalidReferenceLink         Code = "InvalidEntityReferenceLink"

	// duplicates
	CodeDuplicateProperty   Code = "DuplicateProperty"
	CodeDuplicateAnnotation Code = "DuplicateAnnotation"

	CodeRecursionLimit Code = "RecursionLimitExceeded"

	// undeclared properties
	CodeUndeclaredProperty       Code = "UndeclaredProperty"
	CodeOpenPropertyWithoutValue Code = "OpenPropertyWithoutValue"

	CodeDeltaNotSupported Code = "DeltaNotSupported"
	CodeSyntax            Code = "Syntax"
	CodeInternal          Code = "Internal"
)

// Category groups codes by the kind of inconsistency they report.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryShape
	CategoryTypeConflict
	CategoryOrdering
	CategoryDuplicate
	CategoryRecursion
	CategoryUndeclared
	CategoryUnsupported
	CategorySyntax
	CategoryInternal
)

var categoryNames = [...]string{
	CategoryUnknown:      "Unknown",
	CategoryShape:        "Shape",
	CategoryTypeConflict: "TypeConflict",
	CategoryOrdering:     "Ordering",
	CategoryDuplicate:    "Duplicate",
	CategoryRecursion:    "Recursion",
	CategoryUndeclared:   "Undeclared",
	CategoryUnsupported:  "Unsupported",
	CategorySyntax:       "Syntax",
	CategoryInternal:     "Internal",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Unknown"
	}
	return categoryNames[c]
}

var codeCategories = map[Code]Category{
	CodeUnexpectedNode:         CategoryShape,
	CodeArrayExpected:          CategoryShape,
	CodeObjectExpected:         CategoryShape,
	CodePrimitiveExpected:      CategoryShape,
	CodeEnumNotString:          CategoryShape,
	CodeNestedCollection:       CategoryShape,
	CodeNullValueNotAllowed:    CategoryShape,
	CodeInvalidAnnotationValue: CategoryShape,

	CodeIncompatibleType:       CategoryTypeConflict,
	CodeIncorrectTypeKind:      CategoryTypeConflict,
	CodeInvalidTypeName:        CategoryTypeConflict,
	CodeCollectionTypeName:     CategoryTypeConflict,
	CodeMissingCollectionName:  CategoryTypeConflict,
	CodeCollectionItemMismatch: CategoryTypeConflict,
	CodeNumericEncoding:        CategoryTypeConflict,
	CodeInvalidPrimitiveValue:  CategoryTypeConflict,
	CodeTypeDefinitionOverflow: CategoryTypeConflict,

	CodeTypeAnnotationNotFirst:       CategoryOrdering,
	CodeAnnotationAfterProperty:      CategoryOrdering,
	CodePropertyAnnotationAfterValue: CategoryOrdering,
	CodePropertyWithoutValue:         CategoryOrdering,
	CodeUnexpectedAnnotation:         CategoryOrdering,
	CodeUnexpectedPropertyAnnotation: CategoryOrdering,
	CodeUnexpectedMetadataReference:  CategoryOrdering,
	CodeEmptyBindArray:               CategoryOrdering,
	CodeInvalidBind:                  CategoryOrdering,
	CodeMissingValueProperty:         CategoryOrdering,
	CodeInvalidReferenceLink:         CategoryShape,

	CodeDuplicateProperty:   CategoryDuplicate,
	CodeDuplicateAnnotation: CategoryDuplicate,

	CodeRecursionLimit: CategoryRecursion,

	CodeUndeclaredProperty:       CategoryUndeclared,
	CodeOpenPropertyWithoutValue: CategoryUndeclared,

	CodeDeltaNotSupported: CategoryUnsupported,
	CodeSyntax:            CategorySyntax,
	CodeInternal:          CategoryInternal,
}

// Category returns the category the code belongs to.
func (c Code) Category() Category {
	return codeCategories[c]
}

// Error is the single error type returned by the deserializer.
type Error struct {
	Code Code
	// Property is the property being read when the error occurred, if any.
	Property string
	// Expected and Actual name the conflicting types or kinds, if any.
	Expected string
	Actual   string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("odata: ")
	b.WriteString(e.Message)
	if e.Property != "" {
		fmt.Fprintf(&b, " (property %q)", e.Property)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withProperty(name string) *Error {
	if e.Property == "" {
		e.Property = name
	}
	return e
}

func (e *Error) withTypes(expected, actual string) *Error {
	e.Expected, e.Actual = expected, actual
	return e
}

// HasCode reports whether err is, or wraps, an *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CategoryOf returns the category of err, or CategoryUnknown for errors
// that did not come from the deserializer.
func CategoryOf(err error) Category {
	var e *Error
	if !errors.As(err, &e) {
		return CategoryUnknown
	}
	return e.Code.Category()
}

// wrapSourceError turns token source failures into coded errors. Context
// errors pass through untouched so callers can match them directly.
func wrapSourceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var syntaxErr *jsonsource.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &Error{Code: CodeSyntax, Message: "malformed JSON", Err: err}
	}
	return &Error{Code: CodeInternal, Message: "token source failure", Err: err}
}
