package token

import "bytes"

// BufferTokenizer serves an in-memory byte slice with random access.
type BufferTokenizer struct {
	readAtTokenizer
}

func NewBufferTokenizer(data []byte) *BufferTokenizer {
	return &BufferTokenizer{readAtTokenizer{
		r:    ioReaderAt{bytes.NewReader(data)},
		size: int64(len(data)),
	}}
}
