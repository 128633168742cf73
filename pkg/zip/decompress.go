package zip

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// DecompressFunc turns a compressed payload into its original bytes. The
// method is the ZIP compression method from the entry header; stored entries
// never reach the decompressor.
type DecompressFunc func(method uint16, compressed []byte) ([]byte, error)

// FlateDecompressor is the default DecompressFunc. It inflates raw DEFLATE
// streams and accepts DEFLATE64 payloads whose history window fits the
// classic 32 KiB limit; callers with true DEFLATE64 archives can swap in a
// decompressor with the larger window via WithDecompressor.
func FlateDecompressor(method uint16, compressed []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	return io.ReadAll(fr)
}
