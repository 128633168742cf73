package common

import "errors"

var (
	ErrNotAZip             = errors.New("not a zip archive")
	ErrEncryptedArchive    = errors.New("encrypted archive")
	ErrUnexpectedSignature = errors.New("unexpected signature")
	ErrCorruptArchive      = errors.New("corrupt archive")
	ErrTruncatedArchive    = errors.New("truncated archive")
	ErrDecompressionFailed = errors.New("decompression failed")
	ErrTruncatedStream     = errors.New("truncated gzip stream")
	ErrEntryNotFound       = errors.New("entry not found in archive")
	ErrRangeUnsupported    = errors.New("server does not support range requests")
)
