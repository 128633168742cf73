// Package zip implements a streaming ZIP reader that extracts selected member
// files without materializing the whole archive. Sources with random access
// are traversed through the central directory; one-shot streams are walked
// forward, local header by local header, including entries whose compressed
// size is only known once their data descriptor is found.
package zip

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/metrics"
	"github.com/beam-cloud/streamzip/pkg/token"
)

const (
	// syncBufferSize bounds every signature scan; it is allocated once per
	// engine and reused across entries.
	syncBufferSize = 256 * 1024

	// eocdScanLen is how far back from the end of the file the end of
	// central directory record is searched for. The record is 22 bytes
	// plus a comment of up to 64 KiB; 16 KiB covers every comment seen in
	// practice without reading a meaningful amount of the archive body.
	eocdScanLen = 16 * 1024
)

var dataDescriptorSigBytes = binary.LittleEndian.AppendUint32(nil, common.DataDescriptorSignature)

// Handler consumes the decompressed bytes of one archive entry.
type Handler func(ctx context.Context, data []byte) error

// Decision is a filter's verdict on one entry. A nil Handler skips the
// entry's payload without decompressing it. Stop terminates the traversal
// after the current entry has been fully consumed, leaving the tokenizer at a
// record boundary.
type Decision struct {
	Handler Handler
	Stop    bool
}

// FileFilter is invoked exactly once per entry, before its payload is
// consumed.
type FileFilter func(hdr *common.FileHeader) Decision

// Engine reads a ZIP archive from a borrowed tokenizer. The caller owns the
// tokenizer and closes its underlying source after Unzip returns.
type Engine struct {
	tokenizer  token.Tokenizer
	syncBuf    []byte
	startPos   int64
	entries    []*common.CentralFileHeader
	decompress DecompressFunc
	metrics    *metrics.Metrics
	index      *entryIndex
}

type Option func(*Engine)

// WithDecompressor replaces the default flate decompressor, e.g. with one
// that supports DEFLATE64's larger window.
func WithDecompressor(fn DecompressFunc) Option {
	return func(e *Engine) { e.decompress = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(t token.Tokenizer, opts ...Option) *Engine {
	e := &Engine{
		tokenizer:  t,
		syncBuf:    make([]byte, syncBufferSize),
		startPos:   t.Position(),
		decompress: FlateDecompressor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsZip reports whether the next four bytes are a local file header
// signature. The position is unchanged.
func (e *Engine) IsZip(ctx context.Context) (bool, error) {
	var sig [4]byte
	n, err := e.tokenizer.Peek(ctx, sig[:], true)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n < len(sig) {
		return false, nil
	}
	return binary.LittleEndian.Uint32(sig[:]) == common.LocalFileHeaderSignature, nil
}

// Unzip traverses the archive, dispatching every entry to filter. With a
// random-access tokenizer the central directory drives the traversal;
// otherwise the archive is scanned forward from the first local header.
func (e *Engine) Unzip(ctx context.Context, filter FileFilter) error {
	// Seekable sources rewind to where the engine was constructed, so a
	// second traversal observes the same archive.
	if ra, ok := e.tokenizer.(token.RandomAccessTokenizer); ok {
		if err := ra.SetPosition(e.startPos); err != nil {
			return err
		}
	}

	ok, err := e.IsZip(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrNotAZip
	}

	entries, err := e.readCentralDirectory(ctx)
	if err != nil {
		return err
	}
	if entries != nil {
		e.setEntries(entries)
		log.Debug().Int("entries", len(entries)).Msg("traversing via central directory")
		return e.unzipFromCentralDirectory(ctx, filter)
	}

	log.Debug().Msg("no central directory available, scanning forward")
	return e.unzipForward(ctx, filter)
}

// findEndOfCentralDirectoryLocator scans the file tail backwards for the end
// of central directory signature and returns its absolute offset, or -1 when
// it cannot be found. Backwards scanning is required because the record is
// followed by a variable-length comment.
func (e *Engine) findEndOfCentralDirectoryLocator(ctx context.Context) (int64, error) {
	ra, ok := e.tokenizer.(token.RandomAccessTokenizer)
	if !ok {
		return -1, nil
	}

	scanLen := int64(eocdScanLen)
	if size := ra.Size(); size < scanLen {
		scanLen = size
	}
	if scanLen < common.EndOfCentralDirectoryLen {
		return -1, nil
	}

	tailStart := ra.Size() - scanLen
	if err := ra.SetPosition(tailStart); err != nil {
		return -1, err
	}
	buf := e.syncBuf[:scanLen]
	if _, err := e.tokenizer.Read(ctx, buf, false); err != nil {
		return -1, err
	}

	for i := len(buf) - 4; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) == common.EndOfCentralDirectorySignature {
			return tailStart + int64(i), nil
		}
	}
	return -1, nil
}

// readCentralDirectory materializes the central directory. It returns nil
// entries when the tokenizer cannot seek, or when no end of central directory
// record is present; the caller then falls back to the forward scan. The
// tokenizer position is restored on success.
func (e *Engine) readCentralDirectory(ctx context.Context) ([]*common.CentralFileHeader, error) {
	ra, ok := e.tokenizer.(token.RandomAccessTokenizer)
	if !ok {
		return nil, nil
	}

	saved := e.tokenizer.Position()

	eocdOfs, err := e.findEndOfCentralDirectoryLocator(ctx)
	if err != nil {
		return nil, err
	}
	if eocdOfs < 0 {
		if err := ra.SetPosition(saved); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := ra.SetPosition(eocdOfs); err != nil {
		return nil, err
	}
	var eocd common.EndOfCentralDirectory
	if err := token.ReadToken(ctx, e.tokenizer, &eocd); err != nil {
		return nil, e.truncated(err)
	}

	if err := ra.SetPosition(int64(eocd.CentralDirectoryOfs)); err != nil {
		return nil, err
	}

	entries := make([]*common.CentralFileHeader, 0, eocd.TotalEntries)
	for i := 0; i < int(eocd.TotalEntries); i++ {
		hdr := &common.CentralFileHeader{}
		if err := token.ReadToken(ctx, e.tokenizer, hdr); err != nil {
			return nil, e.truncated(err)
		}
		if hdr.Signature != common.CentralFileHeaderSignature {
			return nil, fmt.Errorf("central directory entry %d has signature 0x%08X: %w", i, hdr.Signature, common.ErrCorruptArchive)
		}
		if hdr.Filename, err = e.readFilename(ctx, int(hdr.FilenameLength)); err != nil {
			return nil, err
		}
		if _, err := e.tokenizer.Ignore(ctx, int64(hdr.ExtraFieldLength)+int64(hdr.FileCommentLength)); err != nil {
			return nil, err
		}
		entries = append(entries, hdr)
	}

	if err := ra.SetPosition(saved); err != nil {
		return nil, err
	}
	return entries, nil
}

// unzipFromCentralDirectory visits entries in central directory order. Each
// entry's local header offset and compressed size come from the directory,
// so payloads are read with exact bounds and skipped entries cost nothing.
func (e *Engine) unzipFromCentralDirectory(ctx context.Context, filter FileFilter) error {
	ra := e.tokenizer.(token.RandomAccessTokenizer)

	for _, entry := range e.entries {
		decision := filter(&entry.FileHeader)

		if decision.Handler != nil {
			if err := ra.SetPosition(int64(entry.RelativeOffsetOfLocalHeader)); err != nil {
				return err
			}
			var local common.LocalFileHeader
			if err := token.ReadToken(ctx, e.tokenizer, &local); err != nil {
				return e.truncated(err)
			}
			if local.Signature != common.LocalFileHeaderSignature {
				return fmt.Errorf("local header for %q has signature 0x%08X: %w", entry.Filename, local.Signature, common.ErrCorruptArchive)
			}
			if _, err := e.tokenizer.Ignore(ctx, int64(local.FilenameLength)+int64(local.ExtraFieldLength)); err != nil {
				return err
			}

			data := make([]byte, entry.CompressedSize)
			if _, err := e.tokenizer.Read(ctx, data, false); err != nil {
				return e.truncated(err)
			}
			e.metrics.RecordEntry(int64(len(data)))

			out, err := e.inflate(entry.Method, data)
			if err != nil {
				return err
			}
			if err := decision.Handler(ctx, out); err != nil {
				return err
			}
		} else {
			e.metrics.RecordEntry(0)
		}

		if decision.Stop {
			break
		}
	}
	return nil
}

// unzipForward walks local headers in on-disk order. A central file header
// signature means the archive body is finished; a clean end of stream at a
// header boundary terminates the scan without error.
func (e *Engine) unzipForward(ctx context.Context, filter FileFilter) error {
	var sig [4]byte
	for {
		n, err := e.tokenizer.Peek(ctx, sig[:], true)
		if err == io.EOF || (err == nil && n < len(sig)) {
			return nil
		}
		if err != nil {
			return err
		}

		switch binary.LittleEndian.Uint32(sig[:]) {
		case common.LocalFileHeaderSignature:
		case common.CentralFileHeaderSignature:
			return nil
		case common.EncryptedArchiveMarkerSignature:
			return common.ErrEncryptedArchive
		default:
			return fmt.Errorf("signature 0x%08X at offset %d: %w",
				binary.LittleEndian.Uint32(sig[:]), e.tokenizer.Position(), common.ErrUnexpectedSignature)
		}

		var hdr common.LocalFileHeader
		if err := token.ReadToken(ctx, e.tokenizer, &hdr); err != nil {
			return e.truncated(err)
		}
		if hdr.Filename, err = e.readFilename(ctx, int(hdr.FilenameLength)); err != nil {
			return err
		}

		decision := filter(&hdr.FileHeader)
		keep := decision.Handler != nil

		if _, err := e.tokenizer.Ignore(ctx, int64(hdr.ExtraFieldLength)); err != nil {
			return err
		}

		var payload []byte
		if hdr.CompressedSize > 0 || !hdr.HasDataDescriptor() {
			size := int64(hdr.CompressedSize)
			if keep {
				payload = make([]byte, size)
				if _, err := e.tokenizer.Read(ctx, payload, false); err != nil {
					return e.truncated(err)
				}
			} else {
				skipped, err := e.tokenizer.Ignore(ctx, size)
				if err != nil {
					return err
				}
				if skipped < size {
					return fmt.Errorf("payload of %q ends after %d of %d bytes: %w", hdr.Filename, skipped, size, common.ErrTruncatedArchive)
				}
			}
			e.metrics.RecordEntry(size)
		} else {
			if payload, err = e.scanToDataDescriptor(ctx, keep); err != nil {
				return err
			}
			e.metrics.RecordEntry(int64(len(payload)))
		}

		if keep {
			out, err := e.inflate(hdr.Method, payload)
			if err != nil {
				return err
			}
			if err := decision.Handler(ctx, out); err != nil {
				return err
			}
		}

		if hdr.HasDataDescriptor() {
			var dd common.DataDescriptor
			if err := token.ReadToken(ctx, e.tokenizer, &dd); err != nil {
				return e.truncated(err)
			}
			if dd.Signature != common.DataDescriptorSignature {
				return fmt.Errorf("data descriptor for %q has signature 0x%08X: %w", hdr.Filename, dd.Signature, common.ErrCorruptArchive)
			}
		}

		if decision.Stop {
			return nil
		}
	}
}

// scanToDataDescriptor consumes payload bytes up to (not including) the next
// data descriptor signature, peeking a sync buffer at a time. A short peek
// without a match means the source ended early; the bytes seen so far are
// consumed and the caller's descriptor read reports the truncation. When keep
// is false the payload is discarded instead of accumulated.
func (e *Engine) scanToDataDescriptor(ctx context.Context, keep bool) ([]byte, error) {
	var payload []byte
	for {
		n, err := e.tokenizer.Peek(ctx, e.syncBuf, true)
		if err != nil && err != io.EOF {
			return nil, err
		}
		view := e.syncBuf[:n]

		if k := bytes.Index(view, dataDescriptorSigBytes); k >= 0 {
			if keep {
				payload = append(payload, view[:k]...)
			}
			if _, err := e.tokenizer.Ignore(ctx, int64(k)); err != nil {
				return nil, err
			}
			return payload, nil
		}

		if keep {
			payload = append(payload, view...)
		}
		if _, err := e.tokenizer.Ignore(ctx, int64(n)); err != nil {
			return nil, err
		}
		if n < len(e.syncBuf) {
			return payload, nil
		}
	}
}

func (e *Engine) readFilename(ctx context.Context, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := e.tokenizer.Read(ctx, buf, false); err != nil {
		return "", e.truncated(err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("filename is not valid UTF-8: %w", common.ErrCorruptArchive)
	}
	return string(buf), nil
}

// inflate routes the payload by compression method: stored bytes pass through
// untouched, everything else goes to the configured decompressor.
func (e *Engine) inflate(method uint16, data []byte) ([]byte, error) {
	if method == common.MethodStored {
		return data, nil
	}
	start := time.Now()
	out, err := e.decompress(method, data)
	e.metrics.RecordInflate(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("method %d: %w: %v", method, common.ErrDecompressionFailed, err)
	}
	return out, nil
}

// truncated maps end-of-stream inside a record or payload to
// ErrTruncatedArchive. Transport errors pass through unchanged.
func (e *Engine) truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return common.ErrTruncatedArchive
	}
	return err
}
