// Package inflate adapts a pull-based tokenizer into a lazy sequence of
// decompressed gzip bytes.
package inflate

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/metrics"
	"github.com/beam-cloud/streamzip/pkg/token"
)

// sourceChunkSize bounds how much is pulled from the tokenizer per demand.
const sourceChunkSize = 1024

type InflaterOpts struct {
	Metrics *metrics.Metrics
}

// Inflater decompresses a gzip stream read from a borrowed tokenizer. The
// caller owns the tokenizer and closes its underlying source when done.
type Inflater struct {
	tokenizer token.Tokenizer
	metrics   *metrics.Metrics
}

func NewInflater(t token.Tokenizer, opts InflaterOpts) *Inflater {
	return &Inflater{tokenizer: t, metrics: opts.Metrics}
}

// Inflate returns a lazy sequence of decompressed chunks. Nothing is read
// from the tokenizer until the first demand. A truncated or malformed stream
// surfaces its error as the sequence's final element; breaking out of the
// range terminates the decompressor early.
func (i *Inflater) Inflate(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		src := &tokenReader{ctx: ctx, tokenizer: i.tokenizer}

		start := time.Now()
		zr, err := gzip.NewReader(src)
		if err != nil {
			yield(nil, i.wrap(err))
			return
		}
		defer zr.Close()
		defer func() { i.metrics.RecordInflate(time.Since(start)) }()

		buf := make([]byte, 4096)
		for {
			n, err := zr.Read(buf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, buf[:n])
				if !yield(out, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, i.wrap(err))
				return
			}
		}
	}
}

// wrap classifies a decode failure: end-of-stream inside the gzip framing is
// a truncation, anything else is a decompressor or transport error.
func (i *Inflater) wrap(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", common.ErrTruncatedStream, err)
	}
	return fmt.Errorf("%w: %v", common.ErrDecompressionFailed, err)
}

// tokenReader exposes the tokenizer as an io.Reader, pulling at most
// sourceChunkSize bytes per call so the consumer's demand stays bounded.
type tokenReader struct {
	ctx       context.Context
	tokenizer token.Tokenizer
}

func (r *tokenReader) Read(p []byte) (int, error) {
	if len(p) > sourceChunkSize {
		p = p[:sourceChunkSize]
	}
	return r.tokenizer.Read(r.ctx, p, true)
}
