package lod

import "github.com/Faultbox/terrainer/internal/terrain"

// Result is the outcome of selecting a node.
type Result int

const (
	ResultUndefined Result = iota
	ResultOutOfFrustum
	ResultOutOfRange
	ResultOutOfMap
	ResultSelected
	ResultMaxReached
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultUndefined:
		return "undefined"
	case ResultOutOfFrustum:
		return "out_of_frustum"
	case ResultOutOfRange:
		return "out_of_range"
	case ResultOutOfMap:
		return "out_of_map"
	case ResultSelected:
		return "selected"
	case ResultMaxReached:
		return "max_reached"
	default:
		return "unknown"
	}
}

// covers reports whether a child result lets its parent skip that quadrant.
func (r Result) covers() bool {
	return r == ResultSelected || r == ResultOutOfFrustum || r == ResultOutOfMap
}

// Flags packs a node's LOD level and its quadrant bits.
type Flags uint8

// Quadrant bits are set when the child covering that quadrant was selected
// on its own, so the node itself must not draw it.
const (
	lodMask Flags = 0x0F

	FlagTL Flags = 1 << 4
	FlagTR Flags = 1 << 5
	FlagBL Flags = 1 << 6
	FlagBR Flags = 1 << 7
)

// Quadrant order used by the selection: TL, TR, BL, BR.
var quadrantFlags = [4]Flags{FlagTL, FlagTR, FlagBL, FlagBR}

// Quadrant offsets in child cells, indexed like quadrantFlags.
var quadrantOffsets = [4][2]uint16{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

func makeFlags(lod int, children [4]Result) Flags {
	f := Flags(lod) & lodMask
	for q, r := range children {
		if r == ResultSelected {
			f |= quadrantFlags[q]
		}
	}
	return f
}

// Node is one selection record.
type Node struct {
	Key  terrain.NodeKey
	X, Z uint16 // world chunk of the top-left corner
	Size uint16 // edge in chunks
	MinY uint16
	MaxY uint16

	Flags Flags
}

// LOD returns the node's level, 0 being the finest.
func (n Node) LOD() int {
	return int(n.Flags & lodMask)
}

// ChildSelected reports whether quadrant q (0..3, TL TR BL BR) was
// selected as a separate node.
func (n Node) ChildSelected(q int) bool {
	return n.Flags&quadrantFlags[q] != 0
}

// DrawsQuadrant reports whether the node itself covers quadrant q.
func (n Node) DrawsQuadrant(q int) bool {
	return !n.ChildSelected(q)
}

// DrawsAll reports whether no child was selected.
func (n Node) DrawsAll() bool {
	return n.Flags&^lodMask == 0
}
