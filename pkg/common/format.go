package common

import (
	"encoding/binary"
	"io"
)

// Record signatures per the PKWARE APPNOTE, stored little-endian on disk.
const (
	LocalFileHeaderSignature        uint32 = 0x04034B50
	CentralFileHeaderSignature      uint32 = 0x02014B50
	EndOfCentralDirectorySignature  uint32 = 0x06054B50
	DataDescriptorSignature         uint32 = 0x08074B50
	EncryptedArchiveMarkerSignature uint32 = 0xE011CFD0
)

// Fixed record lengths, excluding variable tails (filename, extra field, comment).
const (
	LocalFileHeaderLen       = 30
	CentralFileHeaderLen     = 46
	EndOfCentralDirectoryLen = 22
	DataDescriptorLen        = 16
)

// Compression methods the engine routes on. Anything other than MethodStored
// is handed to the configured decompressor.
const (
	MethodStored    uint16 = 0
	MethodDeflate   uint16 = 8
	MethodDeflate64 uint16 = 9
)

const dataDescriptorFlag = 0x0008

// FileHeader holds the fields shared by local file headers and central
// directory file headers. Filename is the UTF-8 decoded variable tail; it is
// filled in by the reader, not by the fixed-length codec.
type FileHeader struct {
	Signature        uint32
	MinVersion       uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLength   uint16
	ExtraFieldLength uint16
	Filename         string
}

// HasDataDescriptor reports whether bit 3 of the general purpose flags is set,
// meaning the sizes and CRC follow the payload in a data descriptor record.
func (h *FileHeader) HasDataDescriptor() bool {
	return h.Flags&dataDescriptorFlag != 0
}

type LocalFileHeader struct {
	FileHeader
}

func (h *LocalFileHeader) FixedLen() int { return LocalFileHeaderLen }

func (h *LocalFileHeader) UnmarshalZip(b []byte) error {
	if len(b) < LocalFileHeaderLen {
		return io.ErrUnexpectedEOF
	}
	h.Signature = binary.LittleEndian.Uint32(b[0:4])
	h.MinVersion = binary.LittleEndian.Uint16(b[4:6])
	h.Flags = binary.LittleEndian.Uint16(b[6:8])
	h.Method = binary.LittleEndian.Uint16(b[8:10])
	h.ModifiedTime = binary.LittleEndian.Uint16(b[10:12])
	h.ModifiedDate = binary.LittleEndian.Uint16(b[12:14])
	h.CRC32 = binary.LittleEndian.Uint32(b[14:18])
	h.CompressedSize = binary.LittleEndian.Uint32(b[18:22])
	h.UncompressedSize = binary.LittleEndian.Uint32(b[22:26])
	h.FilenameLength = binary.LittleEndian.Uint16(b[26:28])
	h.ExtraFieldLength = binary.LittleEndian.Uint16(b[28:30])
	return nil
}

// MarshalZip encodes the fixed header followed by the filename bytes. The
// extra field is always encoded empty; ExtraFieldLength is preserved so tests
// can fabricate headers whose extra field is appended by the caller.
func (h *LocalFileHeader) MarshalZip() []byte {
	buf := make([]byte, LocalFileHeaderLen+len(h.Filename))
	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.MinVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint16(buf[8:10], h.Method)
	binary.LittleEndian.PutUint16(buf[10:12], h.ModifiedTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModifiedDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)
	copy(buf[LocalFileHeaderLen:], h.Filename)
	return buf
}

type CentralFileHeader struct {
	FileHeader
	VersionMadeBy               uint16
	FileCommentLength           uint16
	DiskNumberStart             uint16
	InternalAttributes          uint16
	ExternalAttributes          uint32
	RelativeOffsetOfLocalHeader uint32
}

func (h *CentralFileHeader) FixedLen() int { return CentralFileHeaderLen }

func (h *CentralFileHeader) UnmarshalZip(b []byte) error {
	if len(b) < CentralFileHeaderLen {
		return io.ErrUnexpectedEOF
	}
	h.Signature = binary.LittleEndian.Uint32(b[0:4])
	h.VersionMadeBy = binary.LittleEndian.Uint16(b[4:6])
	h.MinVersion = binary.LittleEndian.Uint16(b[6:8])
	h.Flags = binary.LittleEndian.Uint16(b[8:10])
	h.Method = binary.LittleEndian.Uint16(b[10:12])
	h.ModifiedTime = binary.LittleEndian.Uint16(b[12:14])
	h.ModifiedDate = binary.LittleEndian.Uint16(b[14:16])
	h.CRC32 = binary.LittleEndian.Uint32(b[16:20])
	h.CompressedSize = binary.LittleEndian.Uint32(b[20:24])
	h.UncompressedSize = binary.LittleEndian.Uint32(b[24:28])
	h.FilenameLength = binary.LittleEndian.Uint16(b[28:30])
	h.ExtraFieldLength = binary.LittleEndian.Uint16(b[30:32])
	h.FileCommentLength = binary.LittleEndian.Uint16(b[32:34])
	h.DiskNumberStart = binary.LittleEndian.Uint16(b[34:36])
	h.InternalAttributes = binary.LittleEndian.Uint16(b[36:38])
	h.ExternalAttributes = binary.LittleEndian.Uint32(b[38:42])
	h.RelativeOffsetOfLocalHeader = binary.LittleEndian.Uint32(b[42:46])
	return nil
}

func (h *CentralFileHeader) MarshalZip() []byte {
	buf := make([]byte, CentralFileHeaderLen+len(h.Filename))
	binary.LittleEndian.PutUint32(buf[0:4], CentralFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], h.MinVersion)
	binary.LittleEndian.PutUint16(buf[8:10], h.Flags)
	binary.LittleEndian.PutUint16(buf[10:12], h.Method)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModifiedTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.ModifiedDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], h.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], h.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], h.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], h.RelativeOffsetOfLocalHeader)
	copy(buf[CentralFileHeaderLen:], h.Filename)
	return buf
}

type EndOfCentralDirectory struct {
	Signature            uint32
	DiskNumber           uint16
	DiskWithCentralDir   uint16
	EntriesOnThisDisk    uint16
	TotalEntries         uint16
	CentralDirectorySize uint32
	CentralDirectoryOfs  uint32
	CommentLength        uint16
}

func (r *EndOfCentralDirectory) FixedLen() int { return EndOfCentralDirectoryLen }

func (r *EndOfCentralDirectory) UnmarshalZip(b []byte) error {
	if len(b) < EndOfCentralDirectoryLen {
		return io.ErrUnexpectedEOF
	}
	r.Signature = binary.LittleEndian.Uint32(b[0:4])
	r.DiskNumber = binary.LittleEndian.Uint16(b[4:6])
	r.DiskWithCentralDir = binary.LittleEndian.Uint16(b[6:8])
	r.EntriesOnThisDisk = binary.LittleEndian.Uint16(b[8:10])
	r.TotalEntries = binary.LittleEndian.Uint16(b[10:12])
	r.CentralDirectorySize = binary.LittleEndian.Uint32(b[12:16])
	r.CentralDirectoryOfs = binary.LittleEndian.Uint32(b[16:20])
	r.CommentLength = binary.LittleEndian.Uint16(b[20:22])
	return nil
}

func (r *EndOfCentralDirectory) MarshalZip() []byte {
	buf := make([]byte, EndOfCentralDirectoryLen)
	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], r.DiskNumber)
	binary.LittleEndian.PutUint16(buf[6:8], r.DiskWithCentralDir)
	binary.LittleEndian.PutUint16(buf[8:10], r.EntriesOnThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], r.TotalEntries)
	binary.LittleEndian.PutUint32(buf[12:16], r.CentralDirectorySize)
	binary.LittleEndian.PutUint32(buf[16:20], r.CentralDirectoryOfs)
	binary.LittleEndian.PutUint16(buf[20:22], r.CommentLength)
	return buf
}

type DataDescriptor struct {
	Signature        uint32
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

func (d *DataDescriptor) FixedLen() int { return DataDescriptorLen }

func (d *DataDescriptor) UnmarshalZip(b []byte) error {
	if len(b) < DataDescriptorLen {
		return io.ErrUnexpectedEOF
	}
	d.Signature = binary.LittleEndian.Uint32(b[0:4])
	d.CRC32 = binary.LittleEndian.Uint32(b[4:8])
	d.CompressedSize = binary.LittleEndian.Uint32(b[8:12])
	d.UncompressedSize = binary.LittleEndian.Uint32(b[12:16])
	return nil
}

func (d *DataDescriptor) MarshalZip() []byte {
	buf := make([]byte, DataDescriptorLen)
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], d.UncompressedSize)
	return buf
}
