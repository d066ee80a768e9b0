package jsonsource

import (
	"context"
	"errors"
	"io"

	"github.com/go-json-experiment/json/jsontext"
)

type frame struct {
	object    bool
	expectKey bool
}

// tokenizer adapts the jsontext streaming decoder, which enforces the JSON
// grammar including separators. Object names arrive as plain string tokens,
// so a container stack decides between Property and PrimitiveValue.
type tokenizer struct {
	dec      *jsontext.Decoder
	stack    []frame
	rootDone bool
	finished bool
}

func newTokenizer(r io.Reader) *tokenizer {
	// Duplicate names are reported by the deserializer with its own code.
	dec := jsontext.NewDecoder(r,
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
	)
	return &tokenizer{dec: dec}
}

func (t *tokenizer) next(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if t.finished {
		return Token{Kind: EndOfInput}, nil
	}

	raw, err := t.dec.ReadToken()
	if errors.Is(err, io.EOF) {
		if len(t.stack) > 0 || !t.rootDone {
			return Token{}, &SyntaxError{Msg: "unexpected end of input", Err: io.ErrUnexpectedEOF}
		}
		t.finished = true
		return Token{Kind: EndOfInput}, nil
	}
	if err != nil {
		var syntactic *jsontext.SyntacticError
		if errors.As(err, &syntactic) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Token{}, &SyntaxError{Msg: "malformed JSON", Err: err}
		}
		return Token{}, err
	}
	if t.rootDone && len(t.stack) == 0 {
		return Token{}, &SyntaxError{Msg: "unexpected data after the top-level value"}
	}

	switch raw.Kind() {
	case '{':
		t.stack = append(t.stack, frame{object: true, expectKey: true})
		return Token{Kind: StartObject}, nil
	case '[':
		t.stack = append(t.stack, frame{})
		return Token{Kind: StartArray}, nil
	case '}':
		if err := t.pop(true); err != nil {
			return Token{}, err
		}
		return Token{Kind: EndObject}, nil
	case ']':
		if err := t.pop(false); err != nil {
			return Token{}, err
		}
		return Token{Kind: EndArray}, nil
	case '"':
		s := raw.String()
		if n := len(t.stack); n > 0 && t.stack[n-1].object && t.stack[n-1].expectKey {
			t.stack[n-1].expectKey = false
			return Token{Kind: Property, Value: s}, nil
		}
		if err := t.valueDone(); err != nil {
			return Token{}, err
		}
		return Token{Kind: PrimitiveValue, Value: s}, nil
	case '0':
		return t.primitive(Number(raw.String()))
	case 't':
		return t.primitive(true)
	case 'f':
		return t.primitive(false)
	case 'n':
		return t.primitive(nil)
	}
	return Token{}, &SyntaxError{Msg: "unsupported token " + raw.Kind().String()}
}

func (t *tokenizer) primitive(v any) (Token, error) {
	if err := t.valueDone(); err != nil {
		return Token{}, err
	}
	return Token{Kind: PrimitiveValue, Value: v}, nil
}

// pop closes the innermost container, which must be an object when object
// is set and an array otherwise.
func (t *tokenizer) pop(object bool) error {
	n := len(t.stack)
	if n == 0 {
		return &SyntaxError{Msg: "unexpected closing delimiter outside a container"}
	}
	top := t.stack[n-1]
	switch {
	case top.object != object && object:
		return &SyntaxError{Msg: "unexpected '}' inside an array"}
	case top.object != object:
		return &SyntaxError{Msg: "unexpected ']' inside an object"}
	case top.object && !top.expectKey:
		return &SyntaxError{Msg: "object closed after a property name"}
	}
	t.stack = t.stack[:n-1]
	return t.valueDone()
}

// valueDone marks the end of a value in the enclosing container.
func (t *tokenizer) valueDone() error {
	n := len(t.stack)
	if n == 0 {
		t.rootDone = true
		return nil
	}
	top := &t.stack[n-1]
	if top.object {
		if top.expectKey {
			return &SyntaxError{Msg: "object member is missing its name"}
		}
		top.expectKey = true
	}
	return nil
}
