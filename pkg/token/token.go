// Package token abstracts the byte sources the extraction engine reads from.
// A Tokenizer is a positioned byte stream with peek support; sources that can
// seek additionally implement RandomAccessTokenizer. End of stream is always
// signalled with io.EOF (or io.ErrUnexpectedEOF for short exact reads) so
// callers can tell it apart from transport failures.
package token

import (
	"context"
	"io"
)

type Tokenizer interface {
	// Read fills p and advances the position. When mayBeLess is false the
	// read is exact: a short source yields io.ErrUnexpectedEOF (io.EOF if
	// nothing was available at all). When mayBeLess is true any positive
	// count is a success and io.EOF marks exhaustion.
	Read(ctx context.Context, p []byte, mayBeLess bool) (int, error)

	// Peek behaves like Read without advancing the position.
	Peek(ctx context.Context, p []byte, mayBeLess bool) (int, error)

	// Ignore advances the position by up to n bytes and returns how many
	// were actually skipped.
	Ignore(ctx context.Context, n int64) (int64, error)

	// Position is the absolute byte offset of the next read.
	Position() int64

	SupportsRandomAccess() bool
}

// RandomAccessTokenizer is implemented by sources with a known size that can
// reposition in O(1): local files, in-memory buffers, ranged HTTP and S3.
type RandomAccessTokenizer interface {
	Tokenizer

	Size() int64
	SetPosition(pos int64) error
}

// Record is a fixed-length on-disk record that can decode itself from a byte
// slice. Decoding is pure; reading and advancing are the tokenizer's job.
type Record interface {
	FixedLen() int
	UnmarshalZip(b []byte) error
}

// ReadToken reads a record's fixed-length portion exactly and decodes it.
func ReadToken(ctx context.Context, t Tokenizer, rec Record) error {
	buf := make([]byte, rec.FixedLen())
	if _, err := t.Read(ctx, buf, false); err != nil {
		return err
	}
	return rec.UnmarshalZip(buf)
}

// PeekToken decodes a record's fixed-length portion without consuming it.
func PeekToken(ctx context.Context, t Tokenizer, rec Record) error {
	buf := make([]byte, rec.FixedLen())
	if n, err := t.Peek(ctx, buf, true); err != nil {
		return err
	} else if n < len(buf) {
		return io.ErrUnexpectedEOF
	}
	return rec.UnmarshalZip(buf)
}
