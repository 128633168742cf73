package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beam-cloud/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/metrics"
)

const (
	defaultHTTPChunkSize  = 1 << 20 // 1 MiB per ranged GET
	defaultHTTPCacheBytes = 256 << 20
)

type HTTPTokenizerOpts struct {
	Client     *http.Client
	ChunkSize  int64
	CacheBytes int64
	Metrics    *metrics.Metrics
}

// HTTPTokenizer serves a remote object over HTTP range requests, caching
// fetched chunks so the engine's seek-heavy central-directory traversal does
// not refetch the same regions.
type HTTPTokenizer struct {
	readAtTokenizer
	url string
}

type httpRangeReader struct {
	client     *http.Client
	url        string
	chunkSize  int64
	size       int64
	chunkCache *ristretto.Cache[string, []byte]
	metrics    *metrics.Metrics
}

// NewHTTPTokenizer probes the server with a one-byte range request to learn
// the object size and confirm range support. Servers that answer 200 to a
// ranged request get ErrRangeUnsupported; callers should then fall back to a
// StreamTokenizer over a plain GET body.
func NewHTTPTokenizer(ctx context.Context, url string, opts HTTPTokenizerOpts) (*HTTPTokenizer, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultHTTPChunkSize
	}
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = defaultHTTPCacheBytes
	}

	size, err := probeRangeSupport(ctx, opts.Client, url)
	if err != nil {
		return nil, err
	}

	chunkCache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     opts.CacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	reader := &httpRangeReader{
		client:     opts.Client,
		url:        url,
		chunkSize:  opts.ChunkSize,
		size:       size,
		chunkCache: chunkCache,
		metrics:    opts.Metrics,
	}

	return &HTTPTokenizer{
		readAtTokenizer: readAtTokenizer{r: reader, size: size},
		url:             url,
	}, nil
}

func (t *HTTPTokenizer) URL() string {
	return t.url
}

func probeRangeSupport(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("%w: status %d from %s", common.ErrRangeUnsupported, resp.StatusCode, url)
	}

	// Content-Range: bytes 0-0/12345
	contentRange := resp.Header.Get("Content-Range")
	slash := strings.LastIndexByte(contentRange, '/')
	if slash < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q from %s", contentRange, url)
	}
	size, err := strconv.ParseInt(contentRange[slash+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q from %s: %w", contentRange, url, err)
	}
	return size, nil
}

func (r *httpRangeReader) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) && off < r.size {
		chunkIdx := off / r.chunkSize
		chunk, err := r.fetchChunk(ctx, chunkIdx)
		if err != nil {
			return total, err
		}

		chunkOff := off - chunkIdx*r.chunkSize
		if chunkOff >= int64(len(chunk)) {
			break
		}
		n := copy(p[total:], chunk[chunkOff:])
		total += n
		off += int64(n)
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (r *httpRangeReader) fetchChunk(ctx context.Context, idx int64) ([]byte, error) {
	key := fmt.Sprintf("%s#%d", r.url, idx)
	if chunk, ok := r.chunkCache.Get(key); ok {
		return chunk, nil
	}

	start := idx * r.chunkSize
	end := start + r.chunkSize - 1
	if end >= r.size {
		end = r.size - 1
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	startTime := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("range get %s [%d-%d]: status %d", r.url, start, end, resp.StatusCode)
	}

	chunk, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("range get %s [%d-%d]: %w", r.url, start, end, err)
	}

	r.metrics.RecordRangeGet(r.url, int64(len(chunk)), time.Since(startTime))
	log.Debug().Str("url", r.url).Int64("chunk", idx).Int("bytes", len(chunk)).Msg("fetched chunk")

	r.chunkCache.Set(key, chunk, int64(len(chunk)))
	return chunk, nil
}
