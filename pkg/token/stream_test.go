package token

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// oneByteReader yields a single byte per Read call, the worst case for the
// peek buffer's fill loop.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	return o.r.Read(p[:1])
}

func TestStreamTokenizerPeekDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	tok := NewStreamTokenizer(strings.NewReader("0123456789"))

	buf := make([]byte, 6)
	n, err := tok.Peek(ctx, buf, false)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, "012345", string(buf))
	require.Equal(t, int64(0), tok.Position())

	// Re-peeking returns the same bytes.
	n, err = tok.Peek(ctx, buf, false)
	require.NoError(t, err)
	require.Equal(t, "012345", string(buf[:n]))

	n, err = tok.Read(ctx, buf[:4], false)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "0123", string(buf[:4]))
	require.Equal(t, int64(4), tok.Position())
}

func TestStreamTokenizerPeekBeyondEnd(t *testing.T) {
	ctx := context.Background()
	tok := NewStreamTokenizer(strings.NewReader("short"))

	buf := make([]byte, 64)
	n, err := tok.Peek(ctx, buf, true)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "short", string(buf[:n]))

	// Exact peeks past the end fail.
	_, err = tok.Peek(ctx, buf, false)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// The buffered bytes are still readable afterwards.
	n, err = tok.Read(ctx, buf[:5], false)
	require.NoError(t, err)
	require.Equal(t, "short", string(buf[:n]))

	_, err = tok.Read(ctx, buf[:1], true)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamTokenizerLargePeekFromChunkedSource(t *testing.T) {
	ctx := context.Background()
	data := bytes.Repeat([]byte("abcdefgh"), 1024)
	tok := NewStreamTokenizer(oneByteReader{bytes.NewReader(data)})

	buf := make([]byte, len(data))
	n, err := tok.Peek(ctx, buf, true)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)
}

func TestStreamTokenizerIgnore(t *testing.T) {
	ctx := context.Background()
	tok := NewStreamTokenizer(strings.NewReader("0123456789"))

	// Ignore across the peek buffer boundary: part buffered, part skipped
	// directly on the source.
	buf := make([]byte, 3)
	_, err := tok.Peek(ctx, buf, false)
	require.NoError(t, err)

	skipped, err := tok.Ignore(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), skipped)
	require.Equal(t, int64(7), tok.Position())

	n, err := tok.Read(ctx, buf, true)
	require.NoError(t, err)
	require.Equal(t, "789", string(buf[:n]))

	// Ignoring past the end reports the short count without error.
	skipped, err = tok.Ignore(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(0), skipped)
}

func TestStreamTokenizerNoRandomAccess(t *testing.T) {
	tok := NewStreamTokenizer(strings.NewReader(""))
	require.False(t, tok.SupportsRandomAccess())
}
