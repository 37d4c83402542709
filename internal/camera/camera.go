// Package camera provides scripted viewers for driving terrain selection.
package camera

import (
	gomath "math"

	"github.com/Faultbox/terrainer/pkg/math"
)

// Viewer is what a frame of selection needs from a camera.
type Viewer interface {
	Position() math.Vec3
	Velocity() math.Vec3
	Forward() math.Vec3
	Frustum() math.Frustum
	Advance(dt float32)
}

// Lens holds the projection settings shared by all cameras.
type Lens struct {
	FovY   float32 // radians
	Aspect float32 // width/height
	Near   float32
	Far    float32
}

// DefaultLens returns a 60 degree 16:9 lens ending at far.
func DefaultLens(far float32) Lens {
	return Lens{
		FovY:   gomath.Pi / 3,
		Aspect: 16.0 / 9.0,
		Near:   1,
		Far:    far,
	}
}

// OrbitCamera circles a center point at a fixed pitch.
type OrbitCamera struct {
	Lens Lens

	Center math.Vec3

	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	AngularSpeed float32 // Yaw change per second

	prev math.Vec3
	vel  math.Vec3
}

// NewOrbitCamera creates an orbit camera looking down at center.
func NewOrbitCamera(center math.Vec3, distance float32, lens Lens) *OrbitCamera {
	c := &OrbitCamera{
		Lens:         lens,
		Center:       center,
		Distance:     distance,
		RotationX:    0.5,
		AngularSpeed: 0.2,
	}
	c.prev = c.Position()
	return c
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Sin(float64(c.RotationY)))
	y := c.Distance * float32(gomath.Sin(float64(c.RotationX)))
	z := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Cos(float64(c.RotationY)))

	return c.Center.Add(math.Vec3{X: x, Y: y, Z: z})
}

// Forward returns the unit view direction.
func (c *OrbitCamera) Forward() math.Vec3 {
	return c.Center.Sub(c.Position()).Normalize()
}

// Velocity returns the displacement rate over the last Advance.
func (c *OrbitCamera) Velocity() math.Vec3 {
	return c.vel
}

// Frustum returns the view frustum.
func (c *OrbitCamera) Frustum() math.Frustum {
	return math.ViewFrustum(c.Position(), c.Center, c.Lens.FovY, c.Lens.Aspect, c.Lens.Near, c.Lens.Far)
}

// Advance rotates the camera around its center.
func (c *OrbitCamera) Advance(dt float32) {
	c.RotationY += c.AngularSpeed * dt
	pos := c.Position()
	if dt > 0 {
		c.vel = pos.Sub(c.prev).Scale(1 / dt)
	}
	c.prev = pos
}

// FitToBounds centers the orbit on a world box.
func (c *OrbitCamera) FitToBounds(b math.AABB) {
	c.Center = b.Center()

	maxSize := max(b.Size.X, b.Size.Z)
	c.Distance = max(maxSize*0.3, 200)
	c.RotationX = 0.6 // Look down at ~35 degrees
	c.RotationY = 0
	c.prev = c.Position()
	c.vel = math.Vec3{}
}

// FlyCamera moves in a straight line at a fixed height, turning back when
// it leaves its bounds.
type FlyCamera struct {
	Lens Lens

	Pos   math.Vec3
	Yaw   float32 // Heading on the XZ plane (radians)
	Pitch float32 // Downward tilt (radians)
	Speed float32 // World units per second

	Bounds math.AABB
}

// NewFlyCamera creates a fly camera at pos heading along yaw.
func NewFlyCamera(pos math.Vec3, yaw, speed float32, bounds math.AABB, lens Lens) *FlyCamera {
	return &FlyCamera{
		Lens:   lens,
		Pos:    pos,
		Yaw:    yaw,
		Pitch:  0.3,
		Speed:  speed,
		Bounds: bounds,
	}
}

// Position returns the camera position.
func (c *FlyCamera) Position() math.Vec3 {
	return c.Pos
}

// Forward returns the unit view direction.
func (c *FlyCamera) Forward() math.Vec3 {
	cp := float32(gomath.Cos(float64(c.Pitch)))
	return math.Vec3{
		X: cp * float32(gomath.Sin(float64(c.Yaw))),
		Y: -float32(gomath.Sin(float64(c.Pitch))),
		Z: cp * float32(gomath.Cos(float64(c.Yaw))),
	}
}

// heading returns the unit movement direction on the XZ plane.
func (c *FlyCamera) heading() math.Vec3 {
	return math.Vec3{X: float32(gomath.Sin(float64(c.Yaw))), Z: float32(gomath.Cos(float64(c.Yaw)))}
}

// Velocity returns the movement per second.
func (c *FlyCamera) Velocity() math.Vec3 {
	return c.heading().Scale(c.Speed)
}

// Frustum returns the view frustum.
func (c *FlyCamera) Frustum() math.Frustum {
	return math.ViewFrustum(c.Pos, c.Pos.Add(c.Forward()), c.Lens.FovY, c.Lens.Aspect, c.Lens.Near, c.Lens.Far)
}

// Advance moves the camera and reverses its heading at the bounds.
func (c *FlyCamera) Advance(dt float32) {
	next := c.Pos.Add(c.Velocity().Scale(dt))
	end := c.Bounds.End()
	if next.X < c.Bounds.Position.X || next.X > end.X || next.Z < c.Bounds.Position.Z || next.Z > end.Z {
		c.Yaw += gomath.Pi
		return
	}
	c.Pos = next
}
