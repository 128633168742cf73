package token

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/streamzip/pkg/common"
)

func rangeResponder(data []byte) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		rangeHeader := req.Header.Get("Range")
		if rangeHeader == "" {
			return httpmock.NewBytesResponse(http.StatusOK, data), nil
		}

		var start, end int64
		if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad range"), nil
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		resp := httpmock.NewBytesResponse(http.StatusPartialContent, data[start:end+1])
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		return resp, nil
	}
}

func TestHTTPTokenizerRangedReads(t *testing.T) {
	ctx := context.Background()
	data := []byte("the quick brown fox jumps over the lazy dog")
	url := "https://cdn.example.com/archive.zip"

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", url, rangeResponder(data))

	tok, err := NewHTTPTokenizer(ctx, url, HTTPTokenizerOpts{Client: client, ChunkSize: 8})
	require.NoError(t, err)
	require.True(t, tok.SupportsRandomAccess())
	require.Equal(t, int64(len(data)), tok.Size())

	buf := make([]byte, 9)
	_, err = tok.Read(ctx, buf, false)
	require.NoError(t, err)
	require.Equal(t, "the quick", string(buf))

	require.NoError(t, tok.SetPosition(int64(len(data) - 8)))
	tail := make([]byte, 8)
	_, err = tok.Read(ctx, tail, false)
	require.NoError(t, err)
	require.Equal(t, "lazy dog", string(tail))
}

func TestHTTPTokenizerChunkCaching(t *testing.T) {
	ctx := context.Background()
	data := []byte("0123456789abcdef0123456789abcdef")
	url := "https://cdn.example.com/cached.bin"

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", url, rangeResponder(data))

	tok, err := NewHTTPTokenizer(ctx, url, HTTPTokenizerOpts{Client: client, ChunkSize: 16})
	require.NoError(t, err)

	// Reads crossing chunk boundaries and re-reads of the same region must
	// agree with the source regardless of cache admission timing.
	buf := make([]byte, 8)
	for _, off := range []int64{0, 12, 24, 0, 12} {
		require.NoError(t, tok.SetPosition(off))
		_, err = tok.Read(ctx, buf, false)
		require.NoError(t, err)
		require.Equal(t, string(data[off:off+8]), string(buf))
	}
}

func TestHTTPTokenizerRangeUnsupported(t *testing.T) {
	ctx := context.Background()
	url := "https://plain.example.com/file.zip"

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", url,
		httpmock.NewStringResponder(http.StatusOK, "no ranges here"))

	_, err := NewHTTPTokenizer(ctx, url, HTTPTokenizerOpts{Client: client})
	require.ErrorIs(t, err, common.ErrRangeUnsupported)
}
