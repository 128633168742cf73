package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/token"
)

// openTokenizer opens src as a tokenizer. Local paths and ranged HTTP/S3
// objects get random access; stdin ("-") and servers without range support
// fall back to sequential streaming. The returned cleanup func closes
// whatever the tokenizer borrows.
func openTokenizer(ctx context.Context, src string) (token.Tokenizer, func(), error) {
	switch {
	case src == "-":
		return token.NewStreamTokenizer(os.Stdin), func() {}, nil

	case strings.HasPrefix(src, "s3://"):
		bucket, key, err := splitS3URL(src)
		if err != nil {
			return nil, nil, err
		}
		t, err := token.NewS3Tokenizer(ctx, token.S3TokenizerOpts{
			Bucket: bucket,
			Key:    key,
			Region: os.Getenv("AWS_REGION"),
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Cleanup() }, nil

	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		t, err := token.NewHTTPTokenizer(ctx, src, token.HTTPTokenizerOpts{})
		if err == nil {
			return t, func() {}, nil
		}
		if !errors.Is(err, common.ErrRangeUnsupported) {
			return nil, nil, err
		}

		log.Debug().Str("url", src).Msg("no range support, streaming body")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, nil, fmt.Errorf("get %s: status %d", src, resp.StatusCode)
		}
		return token.NewStreamTokenizer(resp.Body), func() { resp.Body.Close() }, nil

	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, nil, err
		}
		t, err := token.NewFileTokenizer(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return t, func() { f.Close() }, nil
	}
}

func splitS3URL(src string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(src, "s3://")
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 url %q, want s3://bucket/key", src)
	}
	return bucket, key, nil
}
