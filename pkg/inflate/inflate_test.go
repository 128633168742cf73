package inflate

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/metrics"
	"github.com/beam-cloud/streamzip/pkg/token"
)

const loremText = "Lorem ipsum dolor sit amet, consectetur adipiscing elit. \n" +
	"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.\n"

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestInflateHappyPath(t *testing.T) {
	compressed := gzipBytes(t, []byte(loremText))
	inflater := NewInflater(token.NewStreamTokenizer(bytes.NewReader(compressed)), InflaterOpts{})

	var out bytes.Buffer
	for chunk, err := range inflater.Inflate(context.Background()) {
		require.NoError(t, err)
		out.Write(chunk)
	}
	require.Equal(t, loremText, out.String())
}

func TestInflateLargeStream(t *testing.T) {
	data := bytes.Repeat([]byte(loremText), 500)
	compressed := gzipBytes(t, data)
	inflater := NewInflater(token.NewBufferTokenizer(compressed), InflaterOpts{})

	var out bytes.Buffer
	chunks := 0
	for chunk, err := range inflater.Inflate(context.Background()) {
		require.NoError(t, err)
		out.Write(chunk)
		chunks++
	}
	require.Equal(t, data, out.Bytes())
	require.Greater(t, chunks, 1)
}

// A stream cut off inside the gzip header must surface an error on the first
// demand, never a clean close.
func TestInflateTruncatedHeader(t *testing.T) {
	prefix := []byte{31, 139, 8, 8, 137, 83, 29, 82, 0, 11}
	inflater := NewInflater(token.NewStreamTokenizer(bytes.NewReader(prefix)), InflaterOpts{})

	demands := 0
	var last error
	for chunk, err := range inflater.Inflate(context.Background()) {
		demands++
		last = err
		require.Empty(t, chunk)
	}
	require.Equal(t, 1, demands)
	require.ErrorIs(t, last, common.ErrTruncatedStream)
}

// A member cut off mid-body errors instead of closing after the valid prefix.
func TestInflateTruncatedBody(t *testing.T) {
	compressed := gzipBytes(t, bytes.Repeat([]byte(loremText), 500))
	cut := compressed[:len(compressed)/2]
	inflater := NewInflater(token.NewStreamTokenizer(bytes.NewReader(cut)), InflaterOpts{})

	var sawErr error
	for _, err := range inflater.Inflate(context.Background()) {
		if err != nil {
			sawErr = err
		}
	}
	require.Error(t, sawErr)
}

func TestInflateConsumerCancellation(t *testing.T) {
	compressed := gzipBytes(t, bytes.Repeat([]byte(loremText), 500))
	inflater := NewInflater(token.NewBufferTokenizer(compressed), InflaterOpts{})

	seen := 0
	for _, err := range inflater.Inflate(context.Background()) {
		require.NoError(t, err)
		seen++
		if seen == 1 {
			break
		}
	}
	require.Equal(t, 1, seen)
}

func TestInflateRecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	compressed := gzipBytes(t, []byte(loremText))
	inflater := NewInflater(token.NewStreamTokenizer(bytes.NewReader(compressed)), InflaterOpts{Metrics: m})

	for _, err := range inflater.Inflate(context.Background()) {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), m.Snapshot().InflateCountTotal)
}
