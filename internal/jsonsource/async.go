package jsonsource

import (
	"context"
	"io"
	"sync"
)

type tokenResult struct {
	tok Token
	err error
}

// channelSupplier hands out tokens produced by a tokenizer running on its
// own goroutine. Each next call is a suspension point: it waits for the
// producer or for the caller's context, whichever comes first.
type channelSupplier struct {
	results <-chan tokenResult
	stop    chan struct{}
	once    sync.Once
	last    *tokenResult
}

// NewAsyncReader returns a suspending reader over r. Tokens are produced by
// a goroutine that reads r; the reader must be closed to release it when the
// input is not read to the end. Canceling ctx stops the producer.
func NewAsyncReader(ctx context.Context, r io.Reader, opts ...Option) *TokenReader {
	results := make(chan tokenResult, 64)
	s := &channelSupplier{results: results, stop: make(chan struct{})}
	go produce(ctx, newTokenizer(r), results, s.stop)

	reader := newTokenReader(s, opts)
	reader.closer = s.close
	return reader
}

func produce(ctx context.Context, t *tokenizer, out chan<- tokenResult, stop <-chan struct{}) {
	defer close(out)
	for {
		tok, err := t.next(ctx)
		select {
		case out <- tokenResult{tok: tok, err: err}:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		if err != nil || tok.Kind == EndOfInput {
			return
		}
	}
}

func (s *channelSupplier) next(ctx context.Context) (Token, error) {
	if s.last != nil {
		return s.last.tok, s.last.err
	}
	select {
	case res, ok := <-s.results:
		if !ok {
			if err := ctx.Err(); err != nil {
				return Token{}, err
			}
			return Token{}, &SyntaxError{Msg: "token producer stopped", Err: io.ErrUnexpectedEOF}
		}
		if res.err != nil || res.tok.Kind == EndOfInput {
			s.last = &res
		}
		return res.tok, res.err
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

func (s *channelSupplier) close() {
	s.once.Do(func() { close(s.stop) })
}
