package token

import (
	"context"
	"io"
)

// StreamTokenizer serves a one-shot io.Reader (HTTP body, pipe, stdin).
// Peeked bytes are buffered internally, growing as far as the caller peeks,
// so the engine's large signature scans work without source support.
type StreamTokenizer struct {
	r   io.Reader
	buf []byte
	pos int64
	err error // sticky underlying error, io.EOF included
}

func NewStreamTokenizer(r io.Reader) *StreamTokenizer {
	return &StreamTokenizer{r: r}
}

func (s *StreamTokenizer) fill(n int) {
	for len(s.buf) < n && s.err == nil {
		tmp := make([]byte, n-len(s.buf))
		m, err := s.r.Read(tmp)
		s.buf = append(s.buf, tmp[:m]...)
		if err != nil {
			s.err = err
		}
	}
}

func (s *StreamTokenizer) Peek(ctx context.Context, p []byte, mayBeLess bool) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.fill(len(p))
	n := copy(p, s.buf)
	if n == len(p) {
		return n, nil
	}
	if s.err != nil && s.err != io.EOF {
		return n, s.err
	}
	if n == 0 {
		return 0, io.EOF
	}
	if !mayBeLess {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *StreamTokenizer) Read(ctx context.Context, p []byte, mayBeLess bool) (int, error) {
	n, err := s.Peek(ctx, p, mayBeLess)
	s.buf = s.buf[n:]
	s.pos += int64(n)
	return n, err
}

func (s *StreamTokenizer) Ignore(ctx context.Context, n int64) (int64, error) {
	buffered := int64(len(s.buf))
	if buffered > n {
		buffered = n
	}
	s.buf = s.buf[buffered:]
	s.pos += buffered

	skipped := buffered
	if rest := n - buffered; rest > 0 && s.err == nil {
		m, err := io.CopyN(io.Discard, s.r, rest)
		s.pos += m
		skipped += m
		if err == io.EOF {
			s.err = io.EOF
		} else if err != nil {
			s.err = err
			return skipped, err
		}
	}
	return skipped, nil
}

func (s *StreamTokenizer) Position() int64 {
	return s.pos
}

func (s *StreamTokenizer) SupportsRandomAccess() bool {
	return false
}
