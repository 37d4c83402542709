package math

// AABB is an axis-aligned bounding box given by its minimum corner and size.
type AABB struct {
	Position Vec3
	Size     Vec3
}

// End returns the maximum corner.
func (b AABB) End() Vec3 {
	return b.Position.Add(b.Size)
}

// Center returns the box center.
func (b AABB) Center() Vec3 {
	return b.Position.Add(b.Size.Scale(0.5))
}

// MinDistanceSquared returns the squared distance from p to the closest
// point of the box. Points inside the box are at distance zero.
func (b AABB) MinDistanceSquared(p Vec3) float32 {
	end := b.End()
	var d2 float32

	if p.X < b.Position.X {
		d := b.Position.X - p.X
		d2 += d * d
	} else if p.X > end.X {
		d := p.X - end.X
		d2 += d * d
	}

	if p.Y < b.Position.Y {
		d := b.Position.Y - p.Y
		d2 += d * d
	} else if p.Y > end.Y {
		d := p.Y - end.Y
		d2 += d * d
	}

	if p.Z < b.Position.Z {
		d := b.Position.Z - p.Z
		d2 += d * d
	} else if p.Z > end.Z {
		d := p.Z - end.Z
		d2 += d * d
	}

	return d2
}

// IntersectsSphere reports whether the box touches the sphere.
func (b AABB) IntersectsSphere(center Vec3, radius float32) bool {
	return b.MinDistanceSquared(center) <= radius*radius
}

// Corners returns the eight box corners.
func (b AABB) Corners() [8]Vec3 {
	e := b.End()
	p := b.Position
	return [8]Vec3{
		{p.X, p.Y, p.Z},
		{e.X, p.Y, p.Z},
		{p.X, e.Y, p.Z},
		{e.X, e.Y, p.Z},
		{p.X, p.Y, e.Z},
		{e.X, p.Y, e.Z},
		{p.X, e.Y, e.Z},
		{e.X, e.Y, e.Z},
	}
}
