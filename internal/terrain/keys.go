// Package terrain holds the addressing shared by LOD selection and minmax
// streaming: cell and node keys, the world/sector layout and the in-memory
// layout of a sector's minmax pyramid.
package terrain

import "fmt"

// CellKey is a packed pair of unsigned 16-bit grid coordinates. The grid
// resolution is implied by where the key is used (sector grid, or a
// sector's cell grid at some LOD).
type CellKey struct {
	X, Z uint16
}

// Add returns k + other.
func (k CellKey) Add(other CellKey) CellKey {
	return CellKey{k.X + other.X, k.Z + other.Z}
}

// Sub returns k - other.
func (k CellKey) Sub(other CellKey) CellKey {
	return CellKey{k.X - other.X, k.Z - other.Z}
}

// Hash packs both coordinates into one word.
func (k CellKey) Hash() uint32 {
	return uint32(k.X) | uint32(k.Z)<<16
}

// Child returns the key of one of the four children at the next finer
// level: (2x+dx, 2z+dz).
func (k CellKey) Child(dx, dz uint16) CellKey {
	return CellKey{2*k.X + dx, 2*k.Z + dz}
}

// String returns "(x,z)".
func (k CellKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.X, k.Z)
}

// NodeKey addresses a quadtree node by its sector and its cell inside the
// sector. The LOD level is carried next to the key because the same pair
// repeats at every level.
type NodeKey struct {
	Sector CellKey
	Cell   CellKey
}

// String returns "sector/cell".
func (k NodeKey) String() string {
	return k.Sector.String() + "/" + k.Cell.String()
}
