package zip

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/streamzip/pkg/common"
)

// fixtureEntry describes one member of a synthesized archive.
type fixtureEntry struct {
	name           string
	data           []byte
	method         uint16
	dataDescriptor bool

	// sizesInLocalHeader keeps the real sizes in the local header even when
	// a data descriptor follows, which some writers produce.
	sizesInLocalHeader bool
}

func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// buildZip assembles a complete archive: local headers and payloads, data
// descriptors where requested, the central directory, and the end record with
// an optional comment.
func buildZip(t *testing.T, entries []fixtureEntry, comment string) []byte {
	t.Helper()

	var out bytes.Buffer
	var centrals []*common.CentralFileHeader

	for _, fe := range entries {
		payload := fe.data
		if fe.method == common.MethodDeflate {
			payload = deflateBytes(t, fe.data)
		}
		crc := crc32.ChecksumIEEE(fe.data)
		offset := uint32(out.Len())

		local := &common.LocalFileHeader{}
		local.MinVersion = 20
		local.Method = fe.method
		local.CRC32 = crc
		local.CompressedSize = uint32(len(payload))
		local.UncompressedSize = uint32(len(fe.data))
		local.Filename = fe.name
		if fe.dataDescriptor {
			local.Flags |= 0x0008
			if !fe.sizesInLocalHeader {
				local.CRC32 = 0
				local.CompressedSize = 0
				local.UncompressedSize = 0
			}
		}
		out.Write(local.MarshalZip())
		out.Write(payload)

		if fe.dataDescriptor {
			dd := &common.DataDescriptor{
				CRC32:            crc,
				CompressedSize:   uint32(len(payload)),
				UncompressedSize: uint32(len(fe.data)),
			}
			out.Write(dd.MarshalZip())
		}

		central := &common.CentralFileHeader{}
		central.VersionMadeBy = 20
		central.MinVersion = 20
		central.Flags = local.Flags
		central.Method = fe.method
		central.CRC32 = crc
		central.CompressedSize = uint32(len(payload))
		central.UncompressedSize = uint32(len(fe.data))
		central.Filename = fe.name
		central.RelativeOffsetOfLocalHeader = offset
		centrals = append(centrals, central)
	}

	cdOffset := out.Len()
	for _, central := range centrals {
		out.Write(central.MarshalZip())
	}
	cdSize := out.Len() - cdOffset

	eocd := &common.EndOfCentralDirectory{
		EntriesOnThisDisk:    uint16(len(centrals)),
		TotalEntries:         uint16(len(centrals)),
		CentralDirectorySize: uint32(cdSize),
		CentralDirectoryOfs:  uint32(cdOffset),
		CommentLength:        uint16(len(comment)),
	}
	out.Write(eocd.MarshalZip())
	out.WriteString(comment)

	return out.Bytes()
}
