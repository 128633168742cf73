package zip

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/streamzip/pkg/token"
)

// The engine behaves identically over a local file and over a ranged HTTP
// source serving the same bytes.
func TestUnzipFromFile(t *testing.T) {
	archive := buildZip(t, officeFixtureEntries(), "")
	path := filepath.Join(t.TempDir(), "fixture.zip")
	require.NoError(t, os.WriteFile(path, archive, 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	tok, err := token.NewFileTokenizer(f)
	require.NoError(t, err)

	results := collectAll(t, NewEngine(tok))
	require.Len(t, results, 3)
	require.Equal(t, odpMimetype, string(results[0].data))
}

func TestUnzipOverHTTP(t *testing.T) {
	archive := buildZip(t, officeFixtureEntries(), "")
	url := "https://files.example.com/fixture.zip"

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", url, func(req *http.Request) (*http.Response, error) {
		var start, end int64
		if _, err := fmt.Sscanf(req.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad range"), nil
		}
		if end >= int64(len(archive)) {
			end = int64(len(archive)) - 1
		}
		resp := httpmock.NewBytesResponse(http.StatusPartialContent, archive[start:end+1])
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(archive)))
		return resp, nil
	})

	tok, err := token.NewHTTPTokenizer(context.Background(), url, token.HTTPTokenizerOpts{
		Client:    client,
		ChunkSize: 512,
	})
	require.NoError(t, err)

	engine := NewEngine(tok)
	data, err := engine.ExtractFile(context.Background(), "[Content_Types].xml")
	require.NoError(t, err)
	require.Equal(t, xmlContent, string(data))
}
