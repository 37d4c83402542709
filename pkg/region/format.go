// Package region reads and writes terrain region files.
//
// A region file covers region_size x region_size chunks and starts with a
// fixed 32-byte file header followed by a 32-byte data header:
//
//	0   [4]  magic "TERR"
//	4   [1]  endianness tag, 'L' or 'B'
//	5   [1]  format: bit 4 packed layout, low 4 bits persisted LOD count
//	6   [4]  chunk size (u32)
//	10  [4]  region size (u32)
//	14  [18] reserved
//	32  [1]  presence flags (bit 0 minmax, 1 height, 2 splat, 3 meta)
//	33  [1]  version
//	34  [4]  height format, height sample size, splat format, splat sample size
//	38  [2]  reserved
//	40  [24] height, splat and meta offsets (u64)
//	64  ...  minmax block
//
// The minmax block stores, for every persisted LOD, (region_size>>lod)^2
// row-major entries of min then max as u16 in the file's byte order.
package region

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Layout constants.
const (
	Magic          = "TERR"
	FileHeaderSize = 32
	DataHeaderSize = 32
	MinmaxOffset   = FileHeaderSize + DataHeaderSize
	FormatVersion  = 1

	// MaxLODs is bounded by the 4-bit LOD field of the format byte.
	MaxLODs = 15

	minmaxEntryBytes = 4
)

// Endianness tags.
const (
	LittleEndian Endianness = 'L'
	BigEndian    Endianness = 'B'
)

// Format byte fields.
const (
	formatPacked  = 1 << 4
	formatLODMask = 0x0F
)

// Presence flags.
const (
	FlagMinmax uint8 = 1 << iota
	FlagHeight
	FlagSplat
	FlagMeta
)

// Region format errors.
var (
	ErrInvalidMagic       = errors.New("invalid region magic: expected 'TERR'")
	ErrInvalidEndianness  = errors.New("invalid region endianness tag")
	ErrUnsupportedVersion = errors.New("unsupported region version")
	ErrUnsupportedLayout  = errors.New("unsupported region layout")
	ErrInvalidGeometry    = errors.New("invalid region geometry")
	ErrTruncated          = errors.New("truncated region data")
	ErrNoMinmax           = errors.New("region has no minmax data")
	ErrLocked             = errors.New("region is locked")
)

// Endianness is the byte order tag stored in the header.
type Endianness byte

// Order returns the matching binary.ByteOrder.
func (e Endianness) Order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// String returns "little" or "big".
func (e Endianness) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(e))
	}
}

// DataHeader is the embedded header describing the data sections.
type DataHeader struct {
	Flags        uint8
	Version      uint8
	HeightFormat uint8
	HeightSize   uint8
	SplatFormat  uint8
	SplatSize    uint8
	HeightOffset uint64
	SplatOffset  uint64
	MetaOffset   uint64
}

// Header is the parsed fixed part of a region file.
type Header struct {
	Endian     Endianness
	Packed     bool
	LODs       int
	ChunkSize  uint32
	RegionSize uint32
	Data       DataHeader
}

// HasMinmax reports whether the minmax block is present.
func (h *Header) HasMinmax() bool {
	return h.Data.Flags&FlagMinmax != 0
}

// LevelSize returns the edge of persisted level lod in entries.
func (h *Header) LevelSize(lod int) int {
	return int(h.RegionSize) >> lod
}

// LevelOffset returns the byte offset of level lod inside the minmax block.
func (h *Header) LevelOffset(lod int) int64 {
	var off int64
	for i := 0; i < lod; i++ {
		n := int64(h.LevelSize(i))
		off += n * n * minmaxEntryBytes
	}
	return off
}

// MinmaxSize returns the byte size of the minmax block.
func (h *Header) MinmaxSize() int64 {
	if !h.HasMinmax() {
		return 0
	}
	return h.LevelOffset(h.LODs)
}

// Validate checks the header against what this package can read.
func (h *Header) Validate() error {
	if h.Endian != LittleEndian && h.Endian != BigEndian {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidEndianness, byte(h.Endian))
	}
	if h.Data.Version == 0 || h.Data.Version > FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Data.Version)
	}
	if !h.Packed {
		return fmt.Errorf("%w: sparse", ErrUnsupportedLayout)
	}
	if !isPowerOfTwo(h.ChunkSize) || !isPowerOfTwo(h.RegionSize) {
		return fmt.Errorf("%w: chunk size %d, region size %d", ErrInvalidGeometry, h.ChunkSize, h.RegionSize)
	}
	if h.LODs < 0 || h.LODs > MaxLODs || h.LODs > log2(h.RegionSize)+1 {
		return fmt.Errorf("%w: %d LODs for region size %d", ErrInvalidGeometry, h.LODs, h.RegionSize)
	}
	if h.HasMinmax() && h.LODs == 0 {
		return fmt.Errorf("%w: minmax present without LODs", ErrInvalidGeometry)
	}
	return nil
}

// MarshalBinary encodes the file and data headers.
func (h *Header) MarshalBinary() ([]byte, error) {
	if h.Endian != LittleEndian && h.Endian != BigEndian {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidEndianness, byte(h.Endian))
	}
	if h.LODs < 0 || h.LODs > MaxLODs {
		return nil, fmt.Errorf("%w: %d LODs", ErrInvalidGeometry, h.LODs)
	}

	buf := make([]byte, MinmaxOffset)
	order := h.Endian.Order()

	copy(buf[0:4], Magic)
	buf[4] = byte(h.Endian)
	format := byte(h.LODs) & formatLODMask
	if h.Packed {
		format |= formatPacked
	}
	buf[5] = format
	order.PutUint32(buf[6:10], h.ChunkSize)
	order.PutUint32(buf[10:14], h.RegionSize)

	d := buf[FileHeaderSize:]
	d[0] = h.Data.Flags
	d[1] = h.Data.Version
	d[2] = h.Data.HeightFormat
	d[3] = h.Data.HeightSize
	d[4] = h.Data.SplatFormat
	d[5] = h.Data.SplatSize
	order.PutUint64(d[8:16], h.Data.HeightOffset)
	order.PutUint64(d[16:24], h.Data.SplatOffset)
	order.PutUint64(d[24:32], h.Data.MetaOffset)

	return buf, nil
}

// UnmarshalBinary decodes the file and data headers. It checks the magic
// and endianness tag only; call Validate for the rest.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < MinmaxOffset {
		return fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, MinmaxOffset, len(data))
	}
	if string(data[0:4]) != Magic {
		return ErrInvalidMagic
	}

	endian := Endianness(data[4])
	if endian != LittleEndian && endian != BigEndian {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidEndianness, data[4])
	}
	order := endian.Order()

	h.Endian = endian
	h.Packed = data[5]&formatPacked != 0
	h.LODs = int(data[5] & formatLODMask)
	h.ChunkSize = order.Uint32(data[6:10])
	h.RegionSize = order.Uint32(data[10:14])

	d := data[FileHeaderSize:]
	h.Data = DataHeader{
		Flags:        d[0],
		Version:      d[1],
		HeightFormat: d[2],
		HeightSize:   d[3],
		SplatFormat:  d[4],
		SplatSize:    d[5],
		HeightOffset: order.Uint64(d[8:16]),
		SplatOffset:  order.Uint64(d[16:24]),
		MetaOffset:   order.Uint64(d[24:32]),
	}
	return nil
}

// NewHeader returns a packed little-endian header with minmax present.
func NewHeader(chunkSize, regionSize uint32, lods int) Header {
	return Header{
		Endian:     LittleEndian,
		Packed:     true,
		LODs:       lods,
		ChunkSize:  chunkSize,
		RegionSize: regionSize,
		Data: DataHeader{
			Flags:   FlagMinmax,
			Version: FormatVersion,
		},
	}
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

func log2(n uint32) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
