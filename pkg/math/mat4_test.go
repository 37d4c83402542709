package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestLookAtForward(t *testing.T) {
	view := LookAt(Vec3{0, 0, 0}, Vec3{0, 0, -1}, Vec3{0, 1, 0})
	if view != Identity() {
		t.Errorf("looking down -Z from origin should be identity, got %v", view)
	}
}

func TestPerspectiveProjectsCenter(t *testing.T) {
	proj := Perspective(float32(math.Pi/2), 1, 1, 100)
	p := proj.TransformVec3(Vec3{0, 0, -10})
	if p.X != 0 || p.Y != 0 {
		t.Errorf("center point should project to origin, got %v", p)
	}
	if p.Z <= -1 || p.Z >= 1 {
		t.Errorf("depth should be inside NDC range, got %v", p.Z)
	}
}

func testFrustum() Frustum {
	return ViewFrustum(Vec3{0, 0, 0}, Vec3{0, 0, -1}, float32(math.Pi/2), 1, 1, 100)
}

func TestFrustumClassifyAABB(t *testing.T) {
	f := testFrustum()

	tests := []struct {
		name string
		box  AABB
		want Intersection
	}{
		{"ahead", AABB{Position: Vec3{-1, -1, -20}, Size: Vec3{2, 2, 15}}, Inside},
		{"behind", AABB{Position: Vec3{-1, -1, 5}, Size: Vec3{2, 2, 5}}, Outside},
		{"beyond far", AABB{Position: Vec3{-1, -1, -300}, Size: Vec3{2, 2, 50}}, Outside},
		{"crossing near", AABB{Position: Vec3{-0.1, -0.1, -2}, Size: Vec3{0.2, 0.2, 2.5}}, Intersects},
		{"left of view", AABB{Position: Vec3{-60, -1, -20}, Size: Vec3{10, 2, 10}}, Outside},
		{"crossing left", AABB{Position: Vec3{-25, -1, -20}, Size: Vec3{10, 2, 5}}, Intersects},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ClassifyAABB(tt.box); got != tt.want {
				t.Errorf("ClassifyAABB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrustumContainsPoint(t *testing.T) {
	f := testFrustum()
	if !f.ContainsPoint(Vec3{0, 0, -50}) {
		t.Error("point ahead should be inside")
	}
	if f.ContainsPoint(Vec3{0, 0, 50}) {
		t.Error("point behind should be outside")
	}
}

func TestFrustumFromFloats(t *testing.T) {
	var v [24]float32
	for i := 0; i < 6; i++ {
		v[i*4] = float32(i)
		v[i*4+3] = float32(10 * i)
	}
	f := FrustumFromFloats(v)
	for i, p := range f {
		if p.Normal.X != float32(i) || p.D != float32(10*i) {
			t.Errorf("plane %d = %+v", i, p)
		}
	}
}
