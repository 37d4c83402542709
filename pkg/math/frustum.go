package math

// Plane is an oriented plane. The normal points out of the enclosed volume,
// so points with a positive signed distance lie outside.
type Plane struct {
	Normal Vec3
	D      float32
}

// DistanceTo returns the signed distance from p to the plane.
func (p Plane) DistanceTo(point Vec3) float32 {
	return p.Normal.Dot(point) - p.D
}

// IsPointOver reports whether point lies on the outer side of the plane.
func (p Plane) IsPointOver(point Vec3) bool {
	return p.DistanceTo(point) > 0
}

// Normalized returns the plane scaled to a unit normal.
func (p Plane) Normalized() Plane {
	l := p.Normal.Length()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Scale(1 / l), D: p.D / l}
}

// Intersection classifies a box against a volume.
type Intersection int

const (
	Outside Intersection = iota
	Intersects
	Inside
)

// String returns the classification name.
func (i Intersection) String() string {
	switch i {
	case Outside:
		return "outside"
	case Intersects:
		return "intersects"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}

// FrustumPlaneCount is the number of planes in a view frustum.
const FrustumPlaneCount = 6

// Frustum is a convex volume bounded by six outward-facing planes.
type Frustum [FrustumPlaneCount]Plane

// FrustumFromFloats builds a frustum from 6 planes packed as
// (normal.x, normal.y, normal.z, d) quadruples.
func FrustumFromFloats(v [FrustumPlaneCount * 4]float32) Frustum {
	var f Frustum
	for i := range f {
		f[i] = Plane{
			Normal: Vec3{v[i*4], v[i*4+1], v[i*4+2]},
			D:      v[i*4+3],
		}
	}
	return f
}

// FrustumFromMatrix extracts the planes of a column-major view-projection
// matrix (OpenGL clip space).
func FrustumFromMatrix(m Mat4) Frustum {
	row := func(i int) [4]float32 {
		return [4]float32{m[i], m[4+i], m[8+i], m[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	combine := func(a, b [4]float32, sign float32) Plane {
		// a + sign*b is an inward plane (n.p + w >= 0 inside); flip it outward.
		n := Vec3{a[0] + sign*b[0], a[1] + sign*b[1], a[2] + sign*b[2]}
		w := a[3] + sign*b[3]
		return Plane{Normal: n.Scale(-1), D: w}.Normalized()
	}

	return Frustum{
		combine(r3, r0, 1),  // left
		combine(r3, r0, -1), // right
		combine(r3, r1, 1),  // bottom
		combine(r3, r1, -1), // top
		combine(r3, r2, 1),  // near
		combine(r3, r2, -1), // far
	}
}

// ClassifyAABB tests the box against every plane. A box is Outside when all
// of its corners are over a single plane and Inside when no corner is over
// any plane.
func (f *Frustum) ClassifyAABB(b AABB) Intersection {
	corners := b.Corners()
	result := Inside

	for _, plane := range f {
		over := 0
		for _, c := range corners {
			if plane.IsPointOver(c) {
				over++
			}
		}

		if over == len(corners) {
			return Outside
		}
		if over > 0 {
			result = Intersects
		}
	}

	return result
}

// ContainsPoint reports whether p is inside or on the frustum.
func (f *Frustum) ContainsPoint(p Vec3) bool {
	for _, plane := range f {
		if plane.IsPointOver(p) {
			return false
		}
	}
	return true
}
