// Package trace records per-frame selection results as zstd-compressed
// JSON lines, one Frame per line.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Faultbox/terrainer/internal/lod"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("trace writer is closed")

// Node is a selected node as recorded in a trace.
type Node struct {
	X     uint16 `json:"x"`
	Z     uint16 `json:"z"`
	Size  uint16 `json:"size"`
	MinY  uint16 `json:"min_y"`
	MaxY  uint16 `json:"max_y"`
	LOD   int    `json:"lod"`
	Flags uint8  `json:"flags"`
}

// Frame is one trace entry.
type Frame struct {
	Frame    uint64     `json:"frame"`
	Viewer   [3]float32 `json:"viewer"`
	Result   string     `json:"result"`
	Selected int        `json:"selected"`
	PerLevel []int      `json:"per_level"`
	MinLOD   int        `json:"min_lod"`
	MaxLOD   int        `json:"max_lod"`

	Loaded    int    `json:"loaded"`
	Loading   int    `json:"loading"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`

	Nodes []Node `json:"nodes,omitempty"`
}

// Nodes converts a selection into trace records.
func Nodes(sel []lod.Node) []Node {
	out := make([]Node, len(sel))
	for i, n := range sel {
		out[i] = Node{
			X:     n.X,
			Z:     n.Z,
			Size:  n.Size,
			MinY:  n.MinY,
			MaxY:  n.MaxY,
			LOD:   n.LOD(),
			Flags: uint8(n.Flags),
		}
	}
	return out
}

// Writer appends frames to a compressed trace file.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create truncates or creates the trace at path. level is 1 (fastest) to 4
// (best compression).
func Create(path string, level int) (*Writer, error) {
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		return nil, fmt.Errorf("invalid trace compression level %d", level)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Write appends one frame.
func (w *Writer) Write(fr Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		return ErrClosed
	}
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes the stream and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	err = errors.Join(err, w.enc.Close(), w.f.Close())
	w.w, w.enc, w.f = nil, nil, nil
	return err
}

// Read calls fn for every frame in the trace at path, stopping at the first
// error fn returns.
func Read(path string, fn func(Frame) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, fn)
}

// Decode reads frames from a compressed stream.
func Decode(r io.Reader, fn func(Frame) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var fr Frame
		if err := json.Unmarshal(sc.Bytes(), &fr); err != nil {
			return fmt.Errorf("trace line %d: %w", line, err)
		}
		if err := fn(fr); err != nil {
			return err
		}
	}
	return sc.Err()
}
