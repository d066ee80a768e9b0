package jsonsource

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Option configures a TokenReader.
type Option func(*TokenReader)

// WithReordering enables the reordering mode: whenever the reader enters an
// object it scans the whole object and moves instance annotations to the
// front and every property annotation directly ahead of its property.
func WithReordering() Option {
	return func(r *TokenReader) { r.reorder = true }
}

// TokenReader implements Reader on top of a token supplier. The blocking and
// suspending readers differ only in the supplier they pull from.
type TokenReader struct {
	src     supplier
	pending []Token
	cur     Token
	reorder bool

	buffering bool
	mark      Token
	log       []Token

	closer func()
}

// NewReader returns a blocking reader over r.
func NewReader(r io.Reader, opts ...Option) *TokenReader {
	return newTokenReader(newTokenizer(r), opts)
}

// NewStringReader returns a blocking reader over a JSON document held in memory.
func NewStringReader(s string, opts ...Option) *TokenReader {
	return NewReader(strings.NewReader(s), opts...)
}

func newTokenReader(src supplier, opts []Option) *TokenReader {
	r := &TokenReader{src: src}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close releases a suspending reader's producer. It is a no-op for blocking readers.
func (r *TokenReader) Close() {
	if r.closer != nil {
		r.closer()
		r.closer = nil
	}
}

func (r *TokenReader) NodeKind() NodeKind { return r.cur.Kind }
func (r *TokenReader) Value() any         { return r.cur.Value }
func (r *TokenReader) IsBuffering() bool  { return r.buffering }
func (r *TokenReader) Reordering() bool   { return r.reorder }

func (r *TokenReader) PropertyName() (string, error) {
	if r.cur.Kind != Property {
		return "", fmt.Errorf("jsonsource: expected Property node, found %s", r.cur.Kind)
	}
	name, _ := r.cur.Value.(string)
	return name, nil
}

func (r *TokenReader) Read(ctx context.Context) error {
	if r.cur.Kind == EndOfInput {
		return ErrReadPastEnd
	}
	tok, err := r.pull(ctx)
	if err != nil {
		return err
	}
	if r.reorder && tok.Kind == StartObject {
		if err := r.reorderObject(ctx); err != nil {
			return err
		}
	}
	r.cur = tok
	if r.buffering {
		r.log = append(r.log, tok)
	}
	return nil
}

func (r *TokenReader) SkipValue(ctx context.Context) error {
	if r.cur.Kind == Property {
		if err := r.Read(ctx); err != nil {
			return err
		}
	}
	depth := 0
	for {
		switch r.cur.Kind {
		case StartObject, StartArray:
			depth++
		case EndObject, EndArray:
			depth--
		case EndOfInput, None:
			return &SyntaxError{Msg: "cannot skip value at " + r.cur.Kind.String()}
		}
		if err := r.Read(ctx); err != nil {
			return err
		}
		if depth <= 0 {
			return nil
		}
	}
}

func (r *TokenReader) StartBuffering(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.buffering {
		return ErrBuffering
	}
	r.buffering = true
	r.mark = r.cur
	r.log = r.log[:0]
	return nil
}

func (r *TokenReader) StopBuffering(ctx context.Context) error {
	if !r.buffering {
		return ErrBuffering
	}
	r.buffering = false
	if len(r.log) > 0 {
		replay := make([]Token, 0, len(r.log)+len(r.pending))
		replay = append(replay, r.log...)
		r.pending = append(replay, r.pending...)
	}
	r.cur = r.mark
	r.log = r.log[:0]
	return ctx.Err()
}

func (r *TokenReader) pull(ctx context.Context) (Token, error) {
	if len(r.pending) > 0 {
		tok := r.pending[0]
		r.pending = r.pending[1:]
		return tok, nil
	}
	return r.src.next(ctx)
}
