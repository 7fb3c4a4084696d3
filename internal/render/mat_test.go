package render

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func vecNear(t *testing.T, got, want Vec4) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRotateZeroIsIdentity(t *testing.T) {
	if got := Rotate(Vec3{1, 1, 1}, 0); got != Identity() {
		t.Errorf("Rotate(axis, 0) = %v", got)
	}
}

func TestRotateQuarterTurnAboutZ(t *testing.T) {
	m := Rotate(Vec3{0, 0, 2}, math.Pi/2)
	vecNear(t, m.TransformPoint(Vec3{1, 0, 0}), Vec4{0, 1, 0, 1})
}

func TestRotateKeepsAxisFixed(t *testing.T) {
	axis := Vec3{1, 1, 1}
	m := Rotate(axis, 0.03)
	vecNear(t, m.TransformPoint(axis), Vec4{1, 1, 1, 1})
}

func TestRotationsCompose(t *testing.T) {
	axis := Vec3{1, 1, 1}
	step := Rotate(axis, 0.03)

	acc := Identity()
	for i := 0; i < 10; i++ {
		acc = acc.Mul(step)
	}
	want := Rotate(axis, 0.3)
	for i := range acc {
		if math.Abs(acc[i]-want[i]) > 1e-9 {
			t.Fatalf("ten steps = %v, want %v", acc, want)
		}
	}
}

func TestMulIdentity(t *testing.T) {
	m := Rotate(Vec3{0, 1, 0}, 1.2)
	if got := Identity().Mul(m); got != m {
		t.Errorf("I*m = %v, want %v", got, m)
	}
	if got := m.Mul(Identity()); got != m {
		t.Errorf("m*I = %v, want %v", got, m)
	}
}

func TestLookAt(t *testing.T) {
	eye := Vec3{3, 2, -3}
	view := LookAt(eye, Vec3{}, Vec3{0, 1, 0})

	vecNear(t, view.TransformPoint(eye), Vec4{0, 0, 0, 1})
	vecNear(t, view.TransformPoint(Vec3{}), Vec4{0, 0, -eye.Len(), 1})
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(60, 4.0/3.0, 0.1, 100)

	n := p.MulVec(Vec4{0, 0, -0.1, 1})
	if !near(n[2]/n[3], -1) {
		t.Errorf("near plane depth = %v, want -1", n[2]/n[3])
	}
	f := p.MulVec(Vec4{0, 0, -100, 1})
	if math.Abs(f[2]/f[3]-1) > 1e-6 {
		t.Errorf("far plane depth = %v, want 1", f[2]/f[3])
	}
}
