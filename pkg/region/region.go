package region

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	filePrefix = "region_"
	fileSuffix = ".bin"
)

// FileName returns the file name of region (x, z).
func FileName(x, z int) string {
	return fmt.Sprintf("%s%d_%d%s", filePrefix, x, z, fileSuffix)
}

// ParseFileName extracts region coordinates from a file name produced by
// FileName.
func ParseFileName(name string) (x, z int, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, 0, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	xs, zs, found := strings.Cut(body, "_")
	if !found {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(xs)
	z, errZ := strconv.Atoi(zs)
	if errX != nil || errZ != nil || x < 0 || z < 0 {
		return 0, 0, false
	}
	return x, z, true
}

// Region is an open region file. It keeps a read-only query handle for
// header access and a data handle for the minmax block, which is opened
// read-write unless the region is locked.
type Region struct {
	Path   string
	Header Header

	query  *os.File
	data   *os.File
	locked bool
}

// ReadHeader reads and validates the header of a region file.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	buf := make([]byte, MinmaxOffset)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return h, fmt.Errorf("%w: header", ErrTruncated)
		}
		return h, fmt.Errorf("reading header: %w", err)
	}
	if err := h.UnmarshalBinary(buf); err != nil {
		return h, err
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// Open opens a region file and parses its header. With locked set the data
// handle is read-only and writes fail with ErrLocked.
func Open(path string, locked bool) (*Region, error) {
	query, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening region: %w", err)
	}

	h, err := ReadHeader(query)
	if err != nil {
		query.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := query.Stat()
	if err != nil {
		query.Close()
		return nil, fmt.Errorf("stat region: %w", err)
	}
	if want := MinmaxOffset + h.MinmaxSize(); info.Size() < want {
		query.Close()
		return nil, fmt.Errorf("%s: %w: %d bytes, want at least %d", path, ErrTruncated, info.Size(), want)
	}

	flag := os.O_RDWR
	if locked {
		flag = os.O_RDONLY
	}
	data, err := os.OpenFile(path, flag, 0)
	if err != nil {
		query.Close()
		return nil, fmt.Errorf("opening region data: %w", err)
	}

	return &Region{
		Path:   path,
		Header: h,
		query:  query,
		data:   data,
		locked: locked,
	}, nil
}

// Create writes a new region file with the given header and minmax pyramid
// and returns it opened read-write. minmax holds every persisted level in
// order as (min, max) pairs; pass nil to write a region without minmax.
func Create(path string, h Header, minmax []uint16) (*Region, error) {
	if minmax != nil {
		h.Data.Flags |= FlagMinmax
	} else {
		h.Data.Flags &^= FlagMinmax
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if want := h.MinmaxSize() / 2; int64(len(minmax)) != want {
		return nil, fmt.Errorf("%w: minmax has %d elements, want %d", ErrInvalidGeometry, len(minmax), want)
	}

	header, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(header)+2*len(minmax))
	copy(buf, header)
	encodeElements(buf[len(header):], minmax, h.Endian)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return nil, fmt.Errorf("writing region: %w", err)
	}
	return Open(path, false)
}

// Locked reports whether the region was opened read-only.
func (r *Region) Locked() bool {
	return r.locked
}

// ReadMinmax reads every persisted level. The result holds the levels in
// order as (min, max) pairs.
func (r *Region) ReadMinmax() ([]uint16, error) {
	if !r.Header.HasMinmax() {
		return nil, ErrNoMinmax
	}
	return r.readElements(MinmaxOffset, r.Header.MinmaxSize())
}

// ReadMinmaxLevel reads one persisted level as (min, max) pairs.
func (r *Region) ReadMinmaxLevel(lod int) ([]uint16, error) {
	if !r.Header.HasMinmax() {
		return nil, ErrNoMinmax
	}
	if lod < 0 || lod >= r.Header.LODs {
		return nil, fmt.Errorf("%w: level %d of %d", ErrInvalidGeometry, lod, r.Header.LODs)
	}
	n := int64(r.Header.LevelSize(lod))
	return r.readElements(MinmaxOffset+r.Header.LevelOffset(lod), n*n*minmaxEntryBytes)
}

// WriteMinmaxLevel overwrites one persisted level.
func (r *Region) WriteMinmaxLevel(lod int, values []uint16) error {
	if r.locked {
		return ErrLocked
	}
	if !r.Header.HasMinmax() {
		return ErrNoMinmax
	}
	if lod < 0 || lod >= r.Header.LODs {
		return fmt.Errorf("%w: level %d of %d", ErrInvalidGeometry, lod, r.Header.LODs)
	}
	n := r.Header.LevelSize(lod)
	if len(values) != 2*n*n {
		return fmt.Errorf("%w: level %d has %d elements, want %d", ErrInvalidGeometry, lod, len(values), 2*n*n)
	}

	buf := make([]byte, 2*len(values))
	encodeElements(buf, values, r.Header.Endian)
	if _, err := r.data.WriteAt(buf, MinmaxOffset+r.Header.LevelOffset(lod)); err != nil {
		return fmt.Errorf("writing level %d: %w", lod, err)
	}
	return nil
}

// Sync flushes pending writes to disk.
func (r *Region) Sync() error {
	if r.locked {
		return nil
	}
	return r.data.Sync()
}

// Close releases both file handles.
func (r *Region) Close() error {
	return errors.Join(r.data.Close(), r.query.Close())
}

func (r *Region) readElements(offset, size int64) ([]uint16, error) {
	buf := make([]byte, size)
	if _, err := r.data.ReadAt(buf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: minmax block", ErrTruncated)
		}
		return nil, fmt.Errorf("reading minmax: %w", err)
	}

	order := r.Header.Endian.Order()
	out := make([]uint16, size/2)
	for i := range out {
		out[i] = order.Uint16(buf[2*i:])
	}
	return out, nil
}

func encodeElements(dst []byte, values []uint16, e Endianness) {
	order := e.Order()
	for i, v := range values {
		order.PutUint16(dst[2*i:], v)
	}
}
