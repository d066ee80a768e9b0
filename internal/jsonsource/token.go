// Package jsonsource turns JSON text into the node stream consumed by the
// deserializer. Readers support scoped look-ahead buffering, an optional
// reordering mode that moves annotations ahead of the values they describe,
// and a suspending variant fed by a producer goroutine.
package jsonsource

import (
	"context"
	"errors"
	"fmt"
)

// NodeKind is the kind of the node a Reader is positioned on.
type NodeKind int

const (
	None NodeKind = iota
	StartObject
	EndObject
	StartArray
	EndArray
	Property
	PrimitiveValue
	EndOfInput
)

var nodeKindNames = [...]string{
	None:           "None",
	StartObject:    "StartObject",
	EndObject:      "EndObject",
	StartArray:     "StartArray",
	EndArray:       "EndArray",
	Property:       "Property",
	PrimitiveValue: "PrimitiveValue",
	EndOfInput:     "EndOfInput",
}

func (k NodeKind) String() string {
	if k < 0 || int(k) >= len(nodeKindNames) {
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
	return nodeKindNames[k]
}

// Number is a JSON number in its original textual form.
type Number string

func (n Number) String() string { return string(n) }

// Token is a single node. Value is the property name for Property nodes and
// nil, bool, string, or Number for PrimitiveValue nodes.
type Token struct {
	Kind  NodeKind
	Value any
}

var (
	// ErrBuffering is returned when buffering is started twice or stopped
	// without having been started.
	ErrBuffering = errors.New("jsonsource: invalid buffering state")
	// ErrReadPastEnd is returned by Read once the end of input was reached.
	ErrReadPastEnd = errors.New("jsonsource: read past end of input")
)

// SyntaxError reports malformed JSON input.
type SyntaxError struct {
	Msg string
	Err error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return "jsonsource: " + e.Msg + ": " + e.Err.Error()
	}
	return "jsonsource: " + e.Msg
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Reader is the node stream. Every method taking a context is a point where
// a suspending reader may wait for input; blocking readers only check the
// context for cancellation.
type Reader interface {
	// NodeKind returns the kind of the current node; None before the first Read.
	NodeKind() NodeKind
	// Value returns the current scalar value or property name.
	Value() any
	// PropertyName returns the current property name.
	PropertyName() (string, error)
	// Read advances to the next node.
	Read(ctx context.Context) error
	// SkipValue skips the value the reader is positioned on, including all
	// nested nodes, and leaves the reader on the node that follows it.
	SkipValue(ctx context.Context) error
	// StartBuffering records subsequent reads so StopBuffering can rewind to
	// the current node. Buffering does not nest.
	StartBuffering(ctx context.Context) error
	// StopBuffering rewinds to the node current at StartBuffering.
	StopBuffering(ctx context.Context) error
	IsBuffering() bool
	// Reordering reports whether annotations are moved ahead of values.
	Reordering() bool
}

// supplier produces raw tokens in document order.
type supplier interface {
	next(ctx context.Context) (Token, error)
}
